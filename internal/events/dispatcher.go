// Package events is the in-process publish/subscribe bus that ties state
// changes to their side effects.
package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"rently/internal/adapters/observability"
	"rently/internal/domain"
)

// Handler consumes one published event.
type Handler interface {
	Handle(ctx context.Context, e domain.Event) error
}

// HandlerFunc adapts a function to Handler. Function values are not
// comparable, so a HandlerFunc can never be matched by Unsubscribe.
type HandlerFunc func(ctx context.Context, e domain.Event) error

func (f HandlerFunc) Handle(ctx context.Context, e domain.Event) error { return f(ctx, e) }

// HandlerError reports which handler of an event failed.
type HandlerError struct {
	Key   domain.EventKey
	Index int
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("event %s: handler %d: %v", e.Key, e.Index, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Dispatcher maps event keys to an ordered list of handlers. It is built once
// at startup and passed to every component that publishes or subscribes.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.EventKey][]Handler
}

var _ domain.Publisher = (*Dispatcher)(nil)

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[domain.EventKey][]Handler)}
}

// Subscribe appends h to key's list. Subscribing the same handler twice
// makes it run twice.
func (d *Dispatcher) Subscribe(key domain.EventKey, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[key] = append(d.handlers[key], h)
}

// Unsubscribe removes the first handler equal to h. Unknown keys and
// handlers are ignored.
func (d *Dispatcher) Unsubscribe(key domain.EventKey, h Handler) {
	if h == nil || !reflect.TypeOf(h).Comparable() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.handlers[key]
	for i, cur := range list {
		if reflect.TypeOf(cur) == reflect.TypeOf(h) && cur == h {
			next := make([]Handler, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			d.handlers[key] = next
			return
		}
	}
}

// Handlers returns a copy of key's current subscription list.
func (d *Dispatcher) Handlers(key domain.EventKey) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Handler(nil), d.handlers[key]...)
}

// Publish runs every handler subscribed to key, in subscription order, on the
// caller's goroutine. A failing or panicking handler does not stop the ones
// after it; all failures are joined into the returned error. Publishing a key
// nobody listens to returns nil.
func (d *Dispatcher) Publish(ctx context.Context, key domain.EventKey, payload any) error {
	hs := d.Handlers(key)
	e := domain.Event{Key: key, Payload: payload}

	var errs []error
	for i, h := range hs {
		if err := invoke(ctx, h, e); err != nil {
			errs = append(errs, &HandlerError{Key: key, Index: i, Err: err})
		}
	}
	observability.ObservePublish(string(key), len(errs))
	return errors.Join(errs...)
}

func invoke(ctx context.Context, h Handler, e domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, e)
}

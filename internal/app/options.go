package app

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"rently/internal/domain"
)

type options struct {
	now             func() time.Time
	newCode         func() (string, error)
	properties      PropertySource
	stampEveryClose bool
}

// Option customizes a service at construction.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCodeGenerator replaces the confirmation code generator.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(o *options) { o.newCode = gen }
}

// WithPropertySource makes availability checks read properties through src,
// typically a cached QueryService.
func WithPropertySource(src PropertySource) Option {
	return func(o *options) { o.properties = src }
}

// WithStampEveryClose makes every transition into CLOSED set the ticket's
// closing date, not only SOLVED -> CLOSED.
func WithStampEveryClose(on bool) Option {
	return func(o *options) { o.stampEveryClose = on }
}

func buildOptions(opts []Option) options {
	o := options{
		now:     time.Now,
		newCode: generateConfirmationCode,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// PropertySource resolves a property by id.
type PropertySource interface {
	GetProperty(ctx context.Context, id string) (domain.Property, error)
}

// publish delivers an event for a change that is already committed. Handler
// faults are logged and never undo or fail the operation.
func publish(ctx context.Context, pub domain.Publisher, key domain.EventKey, payload any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, key, payload); err != nil {
		log.Warn().Err(err).Str("event", string(key)).Msg("event handler failed")
	}
}

// actionLabel is the metric label for a workflow action. Actions outside the
// workflow's vocabulary share the "unknown" label.
func actionLabel[A ~string](action A, known []A) string {
	if slices.Contains(known, action) {
		return string(action)
	}
	return "unknown"
}

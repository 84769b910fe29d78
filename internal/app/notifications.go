package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rently/internal/domain"
	"rently/internal/events"
)

// Notifier turns domain events into in-app notifications for every party the
// event concerns.
type Notifier struct {
	sink domain.NotificationSink
}

func NewNotifier(sink domain.NotificationSink) *Notifier {
	return &Notifier{sink: sink}
}

// Register subscribes n to every event it produces notifications for.
func (n *Notifier) Register(d *events.Dispatcher) {
	for _, key := range domain.EventKeys {
		d.Subscribe(key, n)
	}
}

type message struct {
	recipient string
	text      string
	severity  domain.Severity
}

// Handle implements events.Handler.
func (n *Notifier) Handle(ctx context.Context, e domain.Event) error {
	msgs, err := messagesFor(e)
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range msgs {
		if m.recipient == "" {
			continue
		}
		if err := n.sink.CreateNotification(ctx, m.recipient, m.text, m.severity); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", m.recipient, err))
		}
	}
	return errors.Join(errs...)
}

func messagesFor(e domain.Event) ([]message, error) {
	switch e.Key {
	case domain.EventBookingCreated, domain.EventBookingCanceled:
		b, ok := e.Payload.(domain.Booking)
		if !ok {
			return nil, fmt.Errorf("event %s: unexpected payload %T", e.Key, e.Payload)
		}
		return bookingMessages(e.Key, b), nil
	case domain.EventChangeRoleAccepted:
		r, ok := e.Payload.(domain.ChangeRoleRequest)
		if !ok {
			return nil, fmt.Errorf("event %s: unexpected payload %T", e.Key, e.Payload)
		}
		return []message{{r.UserID, "Your request to become a host has been accepted.", domain.SeverityInfo}}, nil
	case domain.EventChangeRoleRejected:
		r, ok := e.Payload.(domain.ChangeRoleRequest)
		if !ok {
			return nil, fmt.Errorf("event %s: unexpected payload %T", e.Key, e.Payload)
		}
		return []message{{r.UserID, "Your request to become a host has been rejected.", domain.SeverityWarning}}, nil
	}
	return nil, nil
}

func bookingMessages(key domain.EventKey, b domain.Booking) []message {
	stay := fmt.Sprintf("%s to %s", b.CheckIn.Format(time.DateOnly), b.CheckOut.Format(time.DateOnly))
	if key == domain.EventBookingCreated {
		return []message{
			{b.UserID, fmt.Sprintf("Your booking %s from %s is confirmed.", b.ConfirmationCode, stay), domain.SeverityInfo},
			{b.HostID, fmt.Sprintf("New booking %s for property %s from %s.", b.ConfirmationCode, b.PropertyID, stay), domain.SeverityInfo},
		}
	}
	return []message{
		{b.UserID, fmt.Sprintf("Booking %s from %s has been canceled.", b.ConfirmationCode, stay), domain.SeverityWarning},
		{b.HostID, fmt.Sprintf("Booking %s for property %s from %s has been canceled.", b.ConfirmationCode, b.PropertyID, stay), domain.SeverityWarning},
	}
}

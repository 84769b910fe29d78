package domain

import (
	"context"
	"time"
)

// EventKey identifies a domain occurrence. Keys are the wire contract
// between publishers and subscribers.
type EventKey string

const (
	EventBookingCreated     EventKey = "BOOKING_CREATED"
	EventBookingCanceled    EventKey = "BOOKING_CANCELED"
	EventChangeRoleAccepted EventKey = "CHANGEROLE_ACCEPTED"
	EventChangeRoleRejected EventKey = "CHANGEROLE_REJECTED"
)

var EventKeys = []EventKey{
	EventBookingCreated, EventBookingCanceled, EventChangeRoleAccepted, EventChangeRoleRejected,
}

// Event carries the full entity the occurrence is about (Booking or
// ChangeRoleRequest). It is never persisted.
type Event struct {
	Key     EventKey
	Payload any
}

// Publisher is the side of the dispatcher that state-changing code sees.
type Publisher interface {
	Publish(ctx context.Context, key EventKey, payload any) error
}

type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Notification is an in-app message for a single recipient.
type Notification struct {
	ID          string
	RecipientID string
	Message     string
	Severity    Severity
	CreatedAt   time.Time
}

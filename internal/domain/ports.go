package domain

import (
	"context"
	"time"
)

type BookingStore interface {
	// Read paths
	GetProperty(ctx context.Context, id string) (Property, error)
	FindOverlappingBookings(ctx context.Context, propertyID string, stay Stay) ([]Booking, error)
	GetBookingByCode(ctx context.Context, code string) (Booking, error)

	// Write paths
	// WithinPropertyTx runs fn as one atomic unit that is mutually exclusive
	// with every other unit for the same property. Nothing fn wrote is kept
	// if it returns an error.
	WithinPropertyTx(ctx context.Context, propertyID string, fn func(ctx context.Context, tx ReservationTx) error) error
	// CancelBooking flips a CONFIRMED booking to CANCELED. ErrNotFound when
	// no confirmed booking has that id.
	CancelBooking(ctx context.Context, id string, at time.Time) error
}

// ReservationTx is the view of the store inside a property unit.
type ReservationTx interface {
	LockProperty(ctx context.Context) (Property, error)
	FindOverlappingBookings(ctx context.Context, propertyID string, stay Stay) ([]Booking, error)
	FindCoupon(ctx context.Context, code string) (Coupon, error)
	// MarkCouponUsed consumes the coupon for userID according to its scope.
	// ErrCouponAlreadyUsed when it was already consumed.
	MarkCouponUsed(ctx context.Context, c Coupon, userID string, at time.Time) error
	// SaveBooking inserts b. ErrDuplicateConfirmationCode on a code collision;
	// the unit stays usable after that error.
	SaveBooking(ctx context.Context, b Booking) (Booking, error)
}

type TicketRepository interface {
	CreateTicket(ctx context.Context, t Ticket) error
	GetTicket(ctx context.Context, id string) (Ticket, error)
	// UpdateTicket persists t if the stored version still equals t.Version
	// and bumps it. ErrVersionConflict otherwise.
	UpdateTicket(ctx context.Context, t Ticket) (Ticket, error)
}

type RoleChangeRepository interface {
	CreateChangeRoleRequest(ctx context.Context, r ChangeRoleRequest) error
	GetChangeRoleRequest(ctx context.Context, id string) (ChangeRoleRequest, error)
	UpdateChangeRoleRequest(ctx context.Context, r ChangeRoleRequest) (ChangeRoleRequest, error)
}

type NotificationSink interface {
	CreateNotification(ctx context.Context, recipientID, message string, severity Severity) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Catalog holds the reference data the reservation core reads but does not own.
type Catalog interface {
	GetProperty(ctx context.Context, id string) (Property, error)
	UpsertProperty(ctx context.Context, p Property) error
	UpsertCoupon(ctx context.Context, c Coupon) error
}

// ListingSource is the upstream listings service properties and promotions
// are synced from. Records are returned as decoded JSON.
type ListingSource interface {
	GetListing(ctx context.Context, id string) (map[string]any, error)
	GetPromotions(ctx context.Context) ([]map[string]any, error)
}

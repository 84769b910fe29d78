package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rently/internal/adapters/observability"
	"rently/internal/domain"
)

// maxCodeAttempts bounds confirmation code regeneration on collisions.
const maxCodeAttempts = 5

// ReservationEngine owns the availability check and the check-then-insert
// sequence for bookings.
type ReservationEngine struct {
	store domain.BookingStore
	pub   domain.Publisher
	opts  options
}

func NewReservationEngine(store domain.BookingStore, pub domain.Publisher, opts ...Option) *ReservationEngine {
	o := buildOptions(opts)
	if o.properties == nil {
		o.properties = store
	}
	return &ReservationEngine{store: store, pub: pub, opts: o}
}

// CheckAvailability reports whether the property can host numGuests for the
// stay [checkIn, checkOut). It is advisory: CreateBooking checks again inside
// its atomic unit.
func (e *ReservationEngine) CheckAvailability(ctx context.Context, propertyID string, checkIn, checkOut time.Time, numGuests int) (bool, error) {
	stay := domain.NewStay(checkIn, checkOut)
	if !stay.CheckIn.Before(stay.CheckOut) {
		return false, fmt.Errorf("%w: check-out must be after check-in", domain.ErrInvalidRequest)
	}
	if numGuests < 1 {
		return false, fmt.Errorf("%w: at least one guest is required", domain.ErrInvalidRequest)
	}
	p, err := e.opts.properties.GetProperty(ctx, propertyID)
	if err != nil {
		return false, err
	}
	if !p.Available || numGuests > p.MaxGuests {
		return false, nil
	}
	existing, err := e.store.FindOverlappingBookings(ctx, propertyID, stay)
	if err != nil {
		return false, err
	}
	return len(overlapping(existing, stay)) == 0, nil
}

// CreateBooking reserves the stay, applies the coupon if any, and commits the
// booking. Exactly one BOOKING_CREATED is published on success, none on failure.
func (e *ReservationEngine) CreateBooking(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
	b, err := e.createBooking(ctx, req)
	observability.ObserveBooking("create", err)
	if err != nil {
		return domain.Booking{}, err
	}
	publish(ctx, e.pub, domain.EventBookingCreated, b)
	return b, nil
}

func (e *ReservationEngine) createBooking(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
	now := e.opts.now().UTC()
	stay := domain.NewStay(req.CheckIn, req.CheckOut)
	if err := validateRequest(req, stay, now); err != nil {
		return domain.Booking{}, err
	}
	guests := req.NumAdults + req.NumChildren
	coupon := strings.TrimSpace(req.CouponCode)

	var committed domain.Booking
	err := e.store.WithinPropertyTx(ctx, req.PropertyID, func(ctx context.Context, tx domain.ReservationTx) error {
		p, err := tx.LockProperty(ctx)
		if err != nil {
			return err
		}
		if !p.Available {
			return fmt.Errorf("property %s is not accepting bookings: %w", p.ID, domain.ErrUnavailableProperty)
		}
		if guests > p.MaxGuests {
			return fmt.Errorf("property %s hosts at most %d guests: %w", p.ID, p.MaxGuests, domain.ErrUnavailableProperty)
		}
		existing, err := tx.FindOverlappingBookings(ctx, p.ID, stay)
		if err != nil {
			return err
		}
		if len(overlapping(existing, stay)) > 0 {
			return fmt.Errorf("property %s is already booked for %s..%s: %w",
				p.ID, stay.CheckIn.Format(time.DateOnly), stay.CheckOut.Format(time.DateOnly), domain.ErrUnavailableProperty)
		}

		subtotal := p.NightlyPrice * int64(stay.Nights())
		b := domain.Booking{
			ID:          uuid.NewString(),
			PropertyID:  p.ID,
			HostID:      p.HostID,
			UserID:      req.UserID,
			CheckIn:     stay.CheckIn,
			CheckOut:    stay.CheckOut,
			NumAdults:   req.NumAdults,
			NumChildren: req.NumChildren,
			TotalAmount: subtotal,
			Status:      domain.BookingConfirmed,
			CreatedAt:   now,
		}

		if coupon != "" {
			c, err := tx.FindCoupon(ctx, coupon)
			if err != nil {
				return err
			}
			if c.Expired(now) {
				return fmt.Errorf("coupon %s expired at %s: %w", c.Code, c.ExpiresAt.Format(time.RFC3339), domain.ErrCouponExpired)
			}
			if err := tx.MarkCouponUsed(ctx, c, req.UserID, now); err != nil {
				return err
			}
			b.TotalAmount = c.Apply(subtotal)
			b.DiscountAmount = subtotal - b.TotalAmount
			b.AppliedCouponCode = &c.Code
		}

		saved, err := e.saveWithFreshCode(ctx, tx, b)
		if err != nil {
			return err
		}
		committed = saved
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return committed, nil
}

func (e *ReservationEngine) saveWithFreshCode(ctx context.Context, tx domain.ReservationTx, b domain.Booking) (domain.Booking, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := e.opts.newCode()
		if err != nil {
			return domain.Booking{}, fmt.Errorf("generating confirmation code: %w", err)
		}
		b.ConfirmationCode = code
		saved, err := tx.SaveBooking(ctx, b)
		if errors.Is(err, domain.ErrDuplicateConfirmationCode) {
			continue
		}
		if err != nil {
			return domain.Booking{}, fmt.Errorf("saving booking: %w", err)
		}
		return saved, nil
	}
	return domain.Booking{}, fmt.Errorf("no unique confirmation code after %d attempts", maxCodeAttempts)
}

// CancelBooking cancels the booking with the given confirmation code on
// behalf of its guest or the property's host.
func (e *ReservationEngine) CancelBooking(ctx context.Context, code, requestingUserID string) error {
	b, err := e.cancelBooking(ctx, code, requestingUserID)
	observability.ObserveBooking("cancel", err)
	if err != nil {
		return err
	}
	publish(ctx, e.pub, domain.EventBookingCanceled, b)
	return nil
}

func (e *ReservationEngine) cancelBooking(ctx context.Context, code, requestingUserID string) (domain.Booking, error) {
	b, err := e.store.GetBookingByCode(ctx, code)
	if err != nil {
		return domain.Booking{}, err
	}
	if b.Status != domain.BookingConfirmed {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", code, domain.ErrNotFound)
	}
	// the property's current host, not the one copied onto the booking
	host := ""
	p, err := e.store.GetProperty(ctx, b.PropertyID)
	switch {
	case err == nil:
		host = p.HostID
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Booking{}, err
	}
	if requestingUserID == "" || (requestingUserID != b.UserID && requestingUserID != host) {
		return domain.Booking{}, fmt.Errorf("user %q may not cancel booking %s: %w", requestingUserID, code, domain.ErrUnauthorized)
	}
	at := e.opts.now().UTC()
	if err := e.store.CancelBooking(ctx, b.ID, at); err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingCanceled
	b.CanceledAt = &at
	return b, nil
}

func validateRequest(req domain.BookingRequest, stay domain.Stay, now time.Time) error {
	switch {
	case strings.TrimSpace(req.PropertyID) == "":
		return fmt.Errorf("%w: property id is required", domain.ErrInvalidRequest)
	case strings.TrimSpace(req.UserID) == "":
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	case !stay.CheckIn.Before(stay.CheckOut):
		return fmt.Errorf("%w: check-out must be after check-in", domain.ErrInvalidRequest)
	case stay.CheckIn.Before(domain.Day(now)):
		return fmt.Errorf("%w: check-in is in the past", domain.ErrInvalidRequest)
	case req.NumAdults < 1:
		return fmt.Errorf("%w: at least one adult is required", domain.ErrInvalidRequest)
	case req.NumChildren < 0:
		return fmt.Errorf("%w: number of children cannot be negative", domain.ErrInvalidRequest)
	}
	return nil
}

// overlapping filters bookings down to confirmed ones that share a night with
// stay. Stores already filter; this keeps the predicate in one place.
func overlapping(bs []domain.Booking, stay domain.Stay) []domain.Booking {
	var out []domain.Booking
	for _, b := range bs {
		if b.Status == domain.BookingConfirmed && b.Stay().Overlaps(stay) {
			out = append(out, b)
		}
	}
	return out
}

package domain

import "time"

// Property is the read-only view of a listing the reservation engine needs.
type Property struct {
	ID           string
	HostID       string
	MaxGuests    int
	Available    bool
	NightlyPrice int64 // minor units
}

// Stay is a half-open range of calendar days [CheckIn, CheckOut).
type Stay struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// NewStay normalizes both ends to UTC midnight.
func NewStay(checkIn, checkOut time.Time) Stay {
	return Stay{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
}

// Overlaps reports whether two stays share at least one night.
// Checking out on the day another stay checks in is not an overlap.
func (s Stay) Overlaps(o Stay) bool {
	return s.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(s.CheckOut)
}

// Nights is the number of nights in the stay.
func (s Stay) Nights() int {
	return int(s.CheckOut.Sub(s.CheckIn).Hours() / 24)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCanceled  BookingStatus = "CANCELED"
)

type Booking struct {
	ID                string
	PropertyID        string
	HostID            string
	UserID            string
	CheckIn           time.Time
	CheckOut          time.Time
	NumAdults         int
	NumChildren       int
	ConfirmationCode  string
	TotalAmount       int64
	DiscountAmount    int64
	AppliedCouponCode *string
	Status            BookingStatus
	CreatedAt         time.Time
	CanceledAt        *time.Time
}

func (b Booking) Stay() Stay { return Stay{CheckIn: b.CheckIn, CheckOut: b.CheckOut} }

func (b Booking) Guests() int { return b.NumAdults + b.NumChildren }

// BookingRequest is the input to a reservation.
type BookingRequest struct {
	PropertyID  string
	UserID      string
	CheckIn     time.Time
	CheckOut    time.Time
	NumAdults   int
	NumChildren int
	CouponCode  string
}

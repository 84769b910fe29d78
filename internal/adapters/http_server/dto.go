package httpserver

import (
	"time"

	"rently/internal/domain"
)

type createBookingRequest struct {
	PropertyID  string `json:"propertyId"`
	CheckIn     string `json:"checkIn"`
	CheckOut    string `json:"checkOut"`
	NumAdults   int    `json:"numAdults"`
	NumChildren int    `json:"numChildren"`
	CouponCode  string `json:"couponCode,omitempty"`
}

type openTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type submitRoleRequest struct {
	Motivation string `json:"motivation"`
}

type availabilityResponse struct {
	PropertyID string `json:"propertyId"`
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
	Guests     int    `json:"guests"`
	Available  bool   `json:"available"`
}

type bookingResponse struct {
	ConfirmationCode  string     `json:"confirmationCode"`
	PropertyID        string     `json:"propertyId"`
	UserID            string     `json:"userId"`
	CheckIn           string     `json:"checkIn"`
	CheckOut          string     `json:"checkOut"`
	NumAdults         int        `json:"numAdults"`
	NumChildren       int        `json:"numChildren"`
	TotalAmount       int64      `json:"totalAmount"`
	DiscountAmount    int64      `json:"discountAmount"`
	AppliedCouponCode *string    `json:"appliedCouponCode,omitempty"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	CanceledAt        *time.Time `json:"canceledAt,omitempty"`
}

func toBooking(b domain.Booking) bookingResponse {
	return bookingResponse{
		ConfirmationCode:  b.ConfirmationCode,
		PropertyID:        b.PropertyID,
		UserID:            b.UserID,
		CheckIn:           b.CheckIn.Format(time.DateOnly),
		CheckOut:          b.CheckOut.Format(time.DateOnly),
		NumAdults:         b.NumAdults,
		NumChildren:       b.NumChildren,
		TotalAmount:       b.TotalAmount,
		DiscountAmount:    b.DiscountAmount,
		AppliedCouponCode: b.AppliedCouponCode,
		Status:            string(b.Status),
		CreatedAt:         b.CreatedAt,
		CanceledAt:        b.CanceledAt,
	}
}

type ticketResponse struct {
	ID          string     `json:"id"`
	CreatorID   string     `json:"creatorId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClosingDate *time.Time `json:"closingDate,omitempty"`
}

func toTicket(t domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:          t.ID,
		CreatorID:   t.CreatorID,
		Title:       t.Title,
		Description: t.Description,
		State:       string(t.State),
		CreatedAt:   t.CreatedAt,
		ClosingDate: t.ClosingDate,
	}
}

type roleRequestResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Motivation string    `json:"motivation"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toRoleRequest(c domain.ChangeRoleRequest) roleRequestResponse {
	return roleRequestResponse{
		ID:         c.ID,
		UserID:     c.UserID,
		Motivation: c.Motivation,
		State:      string(c.State),
		CreatedAt:  c.CreatedAt,
	}
}

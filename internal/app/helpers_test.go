package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"rently/internal/app"
	"rently/internal/domain"
	"rently/internal/events"
	"rently/internal/storage/memory"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// recorder is a dispatcher subscriber that keeps every event it sees.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Handle(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) keys() []domain.EventKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKey, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Key)
	}
	return out
}

func (r *recorder) count(key domain.EventKey) int {
	n := 0
	for _, k := range r.keys() {
		if k == key {
			n++
		}
	}
	return n
}

type fixture struct {
	store  *memory.Store
	bus    *events.Dispatcher
	seen   *recorder
	engine *app.ReservationEngine
}

func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()
	s := memory.New()
	s.PutProperty(domain.Property{ID: "P", HostID: "host", MaxGuests: 4, Available: true, NightlyPrice: 12000})
	s.PutProperty(domain.Property{ID: "closed", HostID: "host", MaxGuests: 4, Available: false, NightlyPrice: 12000})
	s.PutCoupon(domain.Coupon{Code: "TENOFF", Type: domain.DiscountPercentage, Value: 10, ExpiresAt: day("2026-01-01"), Scope: domain.CouponGlobal})
	s.PutCoupon(domain.Coupon{Code: "OLD", Type: domain.DiscountFixed, Value: 1000, ExpiresAt: day("2025-05-01"), Scope: domain.CouponGlobal})
	s.PutCoupon(domain.Coupon{Code: "WELCOME", Type: domain.DiscountFixed, Value: 5000, ExpiresAt: day("2026-01-01"), Scope: domain.CouponPerUser})

	bus := events.NewDispatcher()
	seen := &recorder{}
	for _, k := range domain.EventKeys {
		bus.Subscribe(k, seen)
	}
	opts = append([]app.Option{app.WithClock(clock)}, opts...)
	return &fixture{
		store:  s,
		bus:    bus,
		seen:   seen,
		engine: app.NewReservationEngine(s, bus, opts...),
	}
}

func request(in, out string) domain.BookingRequest {
	return domain.BookingRequest{
		PropertyID: "P",
		UserID:     "guest",
		CheckIn:    day(in),
		CheckOut:   day(out),
		NumAdults:  2,
	}
}

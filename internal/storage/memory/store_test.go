package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rently/internal/domain"
	"rently/internal/storage/memory"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seeded() *memory.Store {
	s := memory.New()
	s.PutProperty(domain.Property{ID: "p1", HostID: "h1", MaxGuests: 4, Available: true, NightlyPrice: 10000})
	s.PutCoupon(domain.Coupon{Code: "ONCE", Type: domain.DiscountFixed, Value: 500, ExpiresAt: day("2030-01-01"), Scope: domain.CouponGlobal})
	s.PutCoupon(domain.Coupon{Code: "EACH", Type: domain.DiscountPercentage, Value: 10, ExpiresAt: day("2030-01-01"), Scope: domain.CouponPerUser})
	return s
}

func booking(id, code string, in, out string) domain.Booking {
	return domain.Booking{
		ID: id, PropertyID: "p1", HostID: "h1", UserID: "u1",
		CheckIn: day(in), CheckOut: day(out), NumAdults: 1,
		ConfirmationCode: code, Status: domain.BookingConfirmed,
	}
}

func TestWithinPropertyTx_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	err := s.WithinPropertyTx(ctx, "p1", func(ctx context.Context, tx domain.ReservationTx) error {
		_, err := tx.SaveBooking(ctx, booking("b1", "AAAAAAAAAA", "2025-07-01", "2025-07-05"))
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err = s.WithinPropertyTx(ctx, "p1", func(ctx context.Context, tx domain.ReservationTx) error {
		c, err := tx.FindCoupon(ctx, "ONCE")
		if err != nil {
			return err
		}
		if err := tx.MarkCouponUsed(ctx, c, "u1", day("2025-06-01")); err != nil {
			return err
		}
		if _, err := tx.SaveBooking(ctx, booking("b2", "BBBBBBBBBB", "2025-08-01", "2025-08-02")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	if got := s.ListBookings("p1"); len(got) != 1 || got[0].ID != "b1" {
		t.Fatalf("rolled back booking leaked: %+v", got)
	}
	if c, _ := s.Coupon("ONCE"); c.UsedAt != nil {
		t.Fatal("rolled back coupon redemption leaked")
	}
	if _, err := s.GetBookingByCode(ctx, "BBBBBBBBBB"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rolled back code should be free, got %v", err)
	}
}

func TestWithinPropertyTx_PanicReleasesClaims(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Fatalf("panic not propagated: %v", r)
			}
		}()
		_ = s.WithinPropertyTx(ctx, "p1", func(ctx context.Context, tx domain.ReservationTx) error {
			c, err := tx.FindCoupon(ctx, "ONCE")
			if err != nil {
				return err
			}
			if err := tx.MarkCouponUsed(ctx, c, "u1", day("2025-06-01")); err != nil {
				return err
			}
			if _, err := tx.SaveBooking(ctx, booking("b1", "PPPPPPPPPP", "2025-07-01", "2025-07-05")); err != nil {
				return err
			}
			panic("kaboom")
		})
	}()

	if c, _ := s.Coupon("ONCE"); c.UsedAt != nil {
		t.Fatal("coupon stayed claimed after panic")
	}
	// lock released and code free again
	err := s.WithinPropertyTx(ctx, "p1", func(ctx context.Context, tx domain.ReservationTx) error {
		_, err := tx.SaveBooking(ctx, booking("b2", "PPPPPPPPPP", "2025-07-01", "2025-07-05"))
		return err
	})
	if err != nil {
		t.Fatalf("unit after panic: %v", err)
	}
	if got := s.ListBookings("p1"); len(got) != 1 || got[0].ID != "b2" {
		t.Fatalf("bookings %+v", got)
	}
}

func TestSaveBooking_DuplicateCodeKeepsUnitUsable(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	_ = s.WithinPropertyTx(ctx, "p1", func(ctx context.Context, tx domain.ReservationTx) error {
		_, err := tx.SaveBooking(ctx, booking("b1", "AAAAAAAAAA", "2025-07-01", "2025-07-05"))
		return err
	})

	err := s.WithinPropertyTx(ctx, "p1", func(ctx context.Context, tx domain.ReservationTx) error {
		if _, err := tx.SaveBooking(ctx, booking("b2", "AAAAAAAAAA", "2025-08-01", "2025-08-02")); !errors.Is(err, domain.ErrDuplicateConfirmationCode) {
			t.Fatalf("want duplicate code, got %v", err)
		}
		_, err := tx.SaveBooking(ctx, booking("b2", "CCCCCCCCCC", "2025-08-01", "2025-08-02"))
		return err
	})
	if err != nil {
		t.Fatalf("retry with fresh code: %v", err)
	}
	if b, err := s.GetBookingByCode(ctx, "CCCCCCCCCC"); err != nil || b.ID != "b2" {
		t.Fatalf("got %+v, %v", b, err)
	}
}

func TestFindOverlappingBookings_SkipsCanceledAndTurnover(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	_ = s.WithinPropertyTx(ctx, "p1", func(ctx context.Context, tx domain.ReservationTx) error {
		if _, err := tx.SaveBooking(ctx, booking("b1", "AAAAAAAAAA", "2025-06-10", "2025-06-15")); err != nil {
			return err
		}
		_, err := tx.SaveBooking(ctx, booking("b2", "BBBBBBBBBB", "2025-06-20", "2025-06-25"))
		return err
	})
	if err := s.CancelBooking(ctx, "b2", day("2025-06-01")); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := s.FindOverlappingBookings(ctx, "p1", domain.NewStay(day("2025-06-15"), day("2025-06-30")))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("want no overlaps, got %+v", got)
	}
	got, _ = s.FindOverlappingBookings(ctx, "p1", domain.NewStay(day("2025-06-14"), day("2025-06-16")))
	if len(got) != 1 || got[0].ID != "b1" {
		t.Fatalf("want b1, got %+v", got)
	}
}

func TestCancelBooking_Twice(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	_ = s.WithinPropertyTx(ctx, "p1", func(ctx context.Context, tx domain.ReservationTx) error {
		_, err := tx.SaveBooking(ctx, booking("b1", "AAAAAAAAAA", "2025-06-10", "2025-06-15"))
		return err
	})
	if err := s.CancelBooking(ctx, "b1", day("2025-06-01")); err != nil {
		t.Fatal(err)
	}
	if err := s.CancelBooking(ctx, "b1", day("2025-06-01")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestMarkCouponUsed_Scopes(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	at := day("2025-06-01")

	mark := func(code, user string) error {
		return s.WithinPropertyTx(ctx, "p1", func(ctx context.Context, tx domain.ReservationTx) error {
			c, err := tx.FindCoupon(ctx, code)
			if err != nil {
				return err
			}
			return tx.MarkCouponUsed(ctx, c, user, at)
		})
	}

	if err := mark("ONCE", "u1"); err != nil {
		t.Fatal(err)
	}
	if err := mark("ONCE", "u2"); !errors.Is(err, domain.ErrCouponAlreadyUsed) {
		t.Fatalf("global coupon reused: %v", err)
	}

	if err := mark("EACH", "u1"); err != nil {
		t.Fatal(err)
	}
	if err := mark("EACH", "u2"); err != nil {
		t.Fatalf("per-user coupon for another user: %v", err)
	}
	if err := mark("EACH", "u1"); !errors.Is(err, domain.ErrCouponAlreadyUsed) {
		t.Fatalf("per-user coupon reused: %v", err)
	}
	if err := mark("NOPE", "u1"); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestUpdateTicket_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	tk := domain.NewTicket("t1", "u1", "leak", "", time.Now())
	if err := s.CreateTicket(ctx, tk); err != nil {
		t.Fatal(err)
	}

	tk.State = domain.TicketInProgress
	saved, err := s.UpdateTicket(ctx, tk)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Version != tk.Version+1 {
		t.Fatalf("version not bumped: %d", saved.Version)
	}
	if _, err := s.UpdateTicket(ctx, tk); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale write accepted: %v", err)
	}
}

func TestUpdateChangeRoleRequest_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := domain.NewChangeRoleRequest("r1", "u1", "", time.Now())
	_ = s.CreateChangeRoleRequest(ctx, r)

	r.State = domain.RoleChangeAccepted
	if _, err := s.UpdateChangeRoleRequest(ctx, r); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateChangeRoleRequest(ctx, r); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale write accepted: %v", err)
	}
	if _, err := s.GetChangeRoleRequest(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

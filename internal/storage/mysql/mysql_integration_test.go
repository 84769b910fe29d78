//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"golang.org/x/sync/errgroup"

	"rently/internal/app"
	"rently/internal/domain"
	"rently/internal/events"
	mysqlrepo "rently/internal/storage/mysql"
)

// ---------- small helpers ----------
func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// startMySQL runs an isolated MySQL and returns a migrated repo on it.
func startMySQL(t *testing.T) *mysqlrepo.Repo {
	t.Helper()
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=rently",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Skipf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "rently")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := mysqlrepo.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := mysqlrepo.New(db)
	ctx := context.Background()
	seed := []domain.Property{
		{ID: "P", HostID: "host", MaxGuests: 4, Available: true, NightlyPrice: 12000},
		{ID: "Q", HostID: "host", MaxGuests: 2, Available: true, NightlyPrice: 8000},
	}
	for _, p := range seed {
		if err := repo.UpsertProperty(ctx, p); err != nil {
			t.Fatalf("UpsertProperty: %v", err)
		}
	}
	coupons := []domain.Coupon{
		{Code: "TENOFF", Type: domain.DiscountPercentage, Value: 10, ExpiresAt: day("2030-01-01"), Scope: domain.CouponGlobal},
		{Code: "WELCOME", Type: domain.DiscountFixed, Value: 5000, ExpiresAt: day("2030-01-01"), Scope: domain.CouponPerUser},
	}
	for _, c := range coupons {
		if err := repo.UpsertCoupon(ctx, c); err != nil {
			t.Fatalf("UpsertCoupon: %v", err)
		}
	}
	return repo
}

func request(pid, in, out string) domain.BookingRequest {
	return domain.BookingRequest{PropertyID: pid, UserID: "guest", CheckIn: day(in), CheckOut: day(out), NumAdults: 2}
}

// ---------- the test ----------
func TestRepo_MySQL_Reservations(t *testing.T) {
	repo := startMySQL(t)
	ctx := context.Background()
	now := func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	engine := app.NewReservationEngine(repo, events.NewDispatcher(), app.WithClock(now))

	t.Run("create and read back", func(t *testing.T) {
		r := request("P", "2025-07-01", "2025-07-05")
		r.CouponCode = "TENOFF"
		b, err := engine.CreateBooking(ctx, r)
		if err != nil {
			t.Fatalf("CreateBooking: %v", err)
		}
		got, err := repo.GetBookingByCode(ctx, b.ConfirmationCode)
		if err != nil {
			t.Fatalf("GetBookingByCode: %v", err)
		}
		if !got.CheckIn.Equal(day("2025-07-01")) || !got.CheckOut.Equal(day("2025-07-05")) {
			t.Fatalf("dates %v..%v", got.CheckIn, got.CheckOut)
		}
		if got.TotalAmount != 43200 || got.AppliedCouponCode == nil || *got.AppliedCouponCode != "TENOFF" {
			t.Fatalf("unexpected booking: %+v", got)
		}
	})

	t.Run("global coupon is single use", func(t *testing.T) {
		r := request("Q", "2025-07-01", "2025-07-02")
		r.CouponCode = "TENOFF"
		if _, err := engine.CreateBooking(ctx, r); !errors.Is(err, domain.ErrCouponAlreadyUsed) {
			t.Fatalf("want already used, got %v", err)
		}
	})

	t.Run("per-user coupon", func(t *testing.T) {
		r := request("Q", "2025-08-01", "2025-08-02")
		r.CouponCode = "WELCOME"
		if _, err := engine.CreateBooking(ctx, r); err != nil {
			t.Fatal(err)
		}
		r = request("Q", "2025-08-02", "2025-08-03")
		r.CouponCode = "WELCOME"
		if _, err := engine.CreateBooking(ctx, r); !errors.Is(err, domain.ErrCouponAlreadyUsed) {
			t.Fatalf("want already used, got %v", err)
		}
	})

	t.Run("concurrent overlapping requests", func(t *testing.T) {
		const n = 8
		var ok atomic.Int32
		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				_, err := engine.CreateBooking(ctx, request("P", "2025-09-01", "2025-09-04"))
				if err == nil {
					ok.Add(1)
					return nil
				}
				if errors.Is(err, domain.ErrUnavailableProperty) {
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatal(err)
		}
		if ok.Load() != 1 {
			t.Fatalf("%d overlapping bookings committed", ok.Load())
		}
	})

	t.Run("cancel frees the stay", func(t *testing.T) {
		b, err := engine.CreateBooking(ctx, request("P", "2025-10-01", "2025-10-03"))
		if err != nil {
			t.Fatal(err)
		}
		if err := engine.CancelBooking(ctx, b.ConfirmationCode, "host"); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if err := repo.CancelBooking(ctx, b.ID, now()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("second cancel: %v", err)
		}
		if _, err := engine.CreateBooking(ctx, request("P", "2025-10-02", "2025-10-03")); err != nil {
			t.Fatalf("rebook: %v", err)
		}
	})
}

func TestRepo_MySQL_Workflows(t *testing.T) {
	repo := startMySQL(t)
	ctx := context.Background()

	tickets := app.NewTicketService(repo)
	tk, err := tickets.Open(ctx, "u1", "Broken heater", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tickets.Solve(ctx, tk.ID); err != nil {
		t.Fatal(err)
	}
	tk, err = tickets.Close(ctx, tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := repo.GetTicket(ctx, tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != domain.TicketClosed || stored.ClosingDate == nil || stored.Version != 2 {
		t.Fatalf("stored ticket %+v", stored)
	}
	stale := stored
	stale.Version = 0
	if _, err := repo.UpdateTicket(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale update: %v", err)
	}
	if _, err := repo.UpdateTicket(ctx, domain.Ticket{ID: "missing"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing update: %v", err)
	}

	bus := events.NewDispatcher()
	app.NewNotifier(repo).Register(bus)
	roles := app.NewRoleChangeService(repo, bus)
	r, err := roles.Submit(ctx, "u1", "I host a cabin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := roles.Accept(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := roles.Reject(ctx, r.ID); !errors.Is(err, domain.ErrIllegalStateTransition) {
		t.Fatalf("reject after accept: %v", err)
	}
	notes, err := repo.ListNotifications(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Severity != domain.SeverityInfo {
		t.Fatalf("notifications %+v", notes)
	}
}

package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"rently/internal/app"
	"rently/internal/domain"
	"rently/internal/events"
	"rently/internal/storage/memory"
)

func newRoleFixture() (*app.RoleChangeService, *recorder) {
	bus := events.NewDispatcher()
	seen := &recorder{}
	for _, k := range domain.EventKeys {
		bus.Subscribe(k, seen)
	}
	return app.NewRoleChangeService(memory.New(), bus, app.WithClock(clock)), seen
}

func TestRoleChange_AcceptOnce(t *testing.T) {
	ctx := context.Background()
	svc, seen := newRoleFixture()

	r, err := svc.Submit(ctx, "u1", "I own a cabin")
	if err != nil {
		t.Fatal(err)
	}
	if r.State != domain.RoleChangePending {
		t.Fatalf("state %s", r.State)
	}

	r, err = svc.Accept(ctx, r.ID)
	if err != nil || r.State != domain.RoleChangeAccepted {
		t.Fatalf("accept: %+v, %v", r, err)
	}
	if _, err := svc.Accept(ctx, r.ID); !errors.Is(err, domain.ErrIllegalStateTransition) {
		t.Fatalf("second accept: %v", err)
	}
	if _, err := svc.Reject(ctx, r.ID); !errors.Is(err, domain.ErrIllegalStateTransition) {
		t.Fatalf("reject after accept: %v", err)
	}

	if got := seen.keys(); len(got) != 1 || got[0] != domain.EventChangeRoleAccepted {
		t.Fatalf("events %v", got)
	}
	if p, ok := seen.events[0].Payload.(domain.ChangeRoleRequest); !ok || p.UserID != "u1" {
		t.Fatalf("payload %+v", seen.events[0].Payload)
	}
}

func TestRoleChange_Reject(t *testing.T) {
	ctx := context.Background()
	svc, seen := newRoleFixture()

	r, _ := svc.Submit(ctx, "u1", "")
	if _, err := svc.Reject(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Accept(ctx, r.ID); domain.KindOf(err) != domain.KindIllegalStateTransition {
		t.Fatalf("accept after reject: %v", err)
	}
	if got := seen.keys(); len(got) != 1 || got[0] != domain.EventChangeRoleRejected {
		t.Fatalf("events %v", got)
	}
}

func TestRoleChange_PendingIsNeverADestination(t *testing.T) {
	ctx := context.Background()
	svc, seen := newRoleFixture()
	r, _ := svc.Submit(ctx, "u1", "")

	if _, err := svc.Apply(ctx, r.ID, domain.RoleChangeActionPending); !errors.Is(err, domain.ErrIllegalStateTransition) {
		t.Fatalf("pending: %v", err)
	}
	if len(seen.keys()) != 0 {
		t.Fatal("rejected action published an event")
	}
}

func TestRoleChange_Unknown(t *testing.T) {
	svc, _ := newRoleFixture()
	if _, err := svc.Accept(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if _, err := svc.Submit(context.Background(), "", "x"); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("blank user: %v", err)
	}
}

func TestRoleChange_ConcurrentAcceptSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	svc, seen := newRoleFixture()

	const rounds, n = 20, 8
	for round := 0; round < rounds; round++ {
		r, err := svc.Submit(ctx, "u1", "")
		if err != nil {
			t.Fatal(err)
		}

		var ok, illegal atomic.Int32
		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				_, err := svc.Accept(ctx, r.ID)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, domain.ErrIllegalStateTransition):
					illegal.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatal(err)
		}
		if ok.Load() != 1 || illegal.Load() != n-1 {
			t.Fatalf("round %d: ok=%d illegal=%d", round, ok.Load(), illegal.Load())
		}
	}
	if got := seen.count(domain.EventChangeRoleAccepted); got != rounds {
		t.Fatalf("CHANGEROLE_ACCEPTED published %d times, want %d", got, rounds)
	}
}

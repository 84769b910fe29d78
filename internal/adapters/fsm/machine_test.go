package fsm_test

import (
	"context"
	"errors"
	"testing"

	adapter "rently/internal/adapters/fsm"
	"rently/internal/domain"
)

func TestTicketMachine_TransitionTable(t *testing.T) {
	m := adapter.NewTicketMachine()
	ctx := context.Background()

	const illegal = domain.TicketState("")
	table := map[domain.TicketState]map[domain.TicketAction]domain.TicketState{
		domain.TicketOpen: {
			domain.TicketActionOpen:       illegal,
			domain.TicketActionInProgress: domain.TicketInProgress,
			domain.TicketActionSolved:     domain.TicketSolved,
			domain.TicketActionClosed:     domain.TicketClosed,
		},
		domain.TicketInProgress: {
			domain.TicketActionOpen:       illegal,
			domain.TicketActionInProgress: illegal,
			domain.TicketActionSolved:     domain.TicketSolved,
			domain.TicketActionClosed:     domain.TicketClosed,
		},
		domain.TicketSolved: {
			domain.TicketActionOpen:       illegal,
			domain.TicketActionInProgress: domain.TicketInProgress,
			domain.TicketActionSolved:     illegal,
			domain.TicketActionClosed:     domain.TicketClosed,
		},
		domain.TicketClosed: {
			domain.TicketActionOpen:       illegal,
			domain.TicketActionInProgress: illegal,
			domain.TicketActionSolved:     illegal,
			domain.TicketActionClosed:     illegal,
		},
	}

	for from, row := range table {
		for _, action := range domain.TicketActions {
			want := row[action]
			got, err := m.Apply(ctx, from, action)
			if want == illegal {
				var trErr *domain.TransitionError
				if !errors.As(err, &trErr) {
					t.Errorf("Apply(%q, %q): expected TransitionError, got %v", from, action, err)
					continue
				}
				if trErr.Current != string(from) || trErr.Action != string(action) {
					t.Errorf("Apply(%q, %q): error carries %+v", from, action, trErr)
				}
				if got != from {
					t.Errorf("Apply(%q, %q) changed state to %q on failure", from, action, got)
				}
				continue
			}
			if err != nil {
				t.Errorf("Apply(%q, %q) unexpected error: %v", from, action, err)
				continue
			}
			if got != want {
				t.Errorf("Apply(%q, %q) = %q, want %q", from, action, got, want)
			}
		}
	}
}

func TestRoleChangeMachine_TransitionTable(t *testing.T) {
	m := adapter.NewRoleChangeMachine()
	ctx := context.Background()

	got, err := m.Apply(ctx, domain.RoleChangePending, domain.RoleChangeActionAccept)
	if err != nil || got != domain.RoleChangeAccepted {
		t.Fatalf("accept from PENDING = %q, %v", got, err)
	}
	got, err = m.Apply(ctx, domain.RoleChangePending, domain.RoleChangeActionReject)
	if err != nil || got != domain.RoleChangeRejected {
		t.Fatalf("reject from PENDING = %q, %v", got, err)
	}

	illegal := []struct {
		from   domain.RoleChangeState
		action domain.RoleChangeAction
	}{
		{domain.RoleChangePending, domain.RoleChangeActionPending},
		{domain.RoleChangeAccepted, domain.RoleChangeActionPending},
		{domain.RoleChangeAccepted, domain.RoleChangeActionAccept},
		{domain.RoleChangeAccepted, domain.RoleChangeActionReject},
		{domain.RoleChangeRejected, domain.RoleChangeActionPending},
		{domain.RoleChangeRejected, domain.RoleChangeActionAccept},
		{domain.RoleChangeRejected, domain.RoleChangeActionReject},
	}
	for _, tc := range illegal {
		_, err := m.Apply(ctx, tc.from, tc.action)
		if !errors.Is(err, domain.ErrIllegalStateTransition) {
			t.Errorf("Apply(%q, %q): expected illegal transition, got %v", tc.from, tc.action, err)
		}
	}
}

func TestMachine_Can(t *testing.T) {
	m := adapter.NewTicketMachine()
	if !m.Can(domain.TicketSolved, domain.TicketActionClosed) {
		t.Error("closed should be allowed from SOLVED")
	}
	if m.Can(domain.TicketClosed, domain.TicketActionClosed) {
		t.Error("closed should not be allowed from CLOSED")
	}
}

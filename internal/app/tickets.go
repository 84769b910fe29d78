package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rently/internal/adapters/fsm"
	"rently/internal/adapters/observability"
	"rently/internal/domain"
)

// maxConflictRetries bounds reload-and-reapply after a lost optimistic update.
const maxConflictRetries = 3

// TicketService owns the ticket lifecycle. Transitions are the only way a
// ticket changes after it is opened.
type TicketService struct {
	repo    domain.TicketRepository
	machine *fsm.Machine[domain.TicketState, domain.TicketAction]
	opts    options
}

func NewTicketService(repo domain.TicketRepository, opts ...Option) *TicketService {
	return &TicketService{repo: repo, machine: fsm.NewTicketMachine(), opts: buildOptions(opts)}
}

// Open creates a ticket in the OPEN state.
func (s *TicketService) Open(ctx context.Context, creatorID, title, description string) (domain.Ticket, error) {
	if strings.TrimSpace(creatorID) == "" || strings.TrimSpace(title) == "" {
		return domain.Ticket{}, fmt.Errorf("%w: creator and title are required", domain.ErrInvalidRequest)
	}
	t := domain.NewTicket(uuid.NewString(), creatorID, title, description, s.opts.now())
	if err := s.repo.CreateTicket(ctx, t); err != nil {
		return domain.Ticket{}, fmt.Errorf("creating ticket: %w", err)
	}
	return t, nil
}

func (s *TicketService) Get(ctx context.Context, id string) (domain.Ticket, error) {
	return s.repo.GetTicket(ctx, id)
}

func (s *TicketService) StartProgress(ctx context.Context, id string) (domain.Ticket, error) {
	return s.Apply(ctx, id, domain.TicketActionInProgress)
}

func (s *TicketService) Solve(ctx context.Context, id string) (domain.Ticket, error) {
	return s.Apply(ctx, id, domain.TicketActionSolved)
}

func (s *TicketService) Close(ctx context.Context, id string) (domain.Ticket, error) {
	return s.Apply(ctx, id, domain.TicketActionClosed)
}

// Reopen always fails: OPEN is only ever the initial state.
func (s *TicketService) Reopen(ctx context.Context, id string) (domain.Ticket, error) {
	return s.Apply(ctx, id, domain.TicketActionOpen)
}

// Apply takes action on the ticket and persists the new state.
func (s *TicketService) Apply(ctx context.Context, id string, action domain.TicketAction) (domain.Ticket, error) {
	t, err := s.apply(ctx, id, action)
	observability.ObserveTransition(s.machine.Entity(), actionLabel(action, domain.TicketActions), err)
	return t, err
}

func (s *TicketService) apply(ctx context.Context, id string, action domain.TicketAction) (domain.Ticket, error) {
	for attempt := 0; ; attempt++ {
		t, err := s.repo.GetTicket(ctx, id)
		if err != nil {
			return domain.Ticket{}, err
		}
		next, err := s.machine.Apply(ctx, t.State, action)
		if err != nil {
			return domain.Ticket{}, err
		}
		if next == domain.TicketClosed && (t.State == domain.TicketSolved || s.opts.stampEveryClose) {
			at := s.opts.now().UTC()
			t.ClosingDate = &at
		}
		t.State = next

		saved, err := s.repo.UpdateTicket(ctx, t)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return domain.Ticket{}, fmt.Errorf("updating ticket %s: %w", id, err)
		}
		return saved, nil
	}
}

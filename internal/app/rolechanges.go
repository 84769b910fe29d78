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

// RoleChangeService owns the change-role request workflow and announces its
// terminal decisions.
type RoleChangeService struct {
	repo    domain.RoleChangeRepository
	pub     domain.Publisher
	machine *fsm.Machine[domain.RoleChangeState, domain.RoleChangeAction]
	opts    options
}

func NewRoleChangeService(repo domain.RoleChangeRepository, pub domain.Publisher, opts ...Option) *RoleChangeService {
	return &RoleChangeService{
		repo:    repo,
		pub:     pub,
		machine: fsm.NewRoleChangeMachine(),
		opts:    buildOptions(opts),
	}
}

// Submit files a new PENDING request for userID.
func (s *RoleChangeService) Submit(ctx context.Context, userID, motivation string) (domain.ChangeRoleRequest, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.ChangeRoleRequest{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	r := domain.NewChangeRoleRequest(uuid.NewString(), userID, motivation, s.opts.now())
	if err := s.repo.CreateChangeRoleRequest(ctx, r); err != nil {
		return domain.ChangeRoleRequest{}, fmt.Errorf("creating change role request: %w", err)
	}
	return r, nil
}

func (s *RoleChangeService) Get(ctx context.Context, id string) (domain.ChangeRoleRequest, error) {
	return s.repo.GetChangeRoleRequest(ctx, id)
}

func (s *RoleChangeService) Accept(ctx context.Context, id string) (domain.ChangeRoleRequest, error) {
	return s.Apply(ctx, id, domain.RoleChangeActionAccept)
}

func (s *RoleChangeService) Reject(ctx context.Context, id string) (domain.ChangeRoleRequest, error) {
	return s.Apply(ctx, id, domain.RoleChangeActionReject)
}

// Apply takes action on the request. Accepting or rejecting publishes
// CHANGEROLE_ACCEPTED or CHANGEROLE_REJECTED once the new state is saved.
func (s *RoleChangeService) Apply(ctx context.Context, id string, action domain.RoleChangeAction) (domain.ChangeRoleRequest, error) {
	r, err := s.apply(ctx, id, action)
	observability.ObserveTransition(s.machine.Entity(), actionLabel(action, domain.RoleChangeActions), err)
	if err != nil {
		return domain.ChangeRoleRequest{}, err
	}
	switch r.State {
	case domain.RoleChangeAccepted:
		publish(ctx, s.pub, domain.EventChangeRoleAccepted, r)
	case domain.RoleChangeRejected:
		publish(ctx, s.pub, domain.EventChangeRoleRejected, r)
	}
	return r, nil
}

func (s *RoleChangeService) apply(ctx context.Context, id string, action domain.RoleChangeAction) (domain.ChangeRoleRequest, error) {
	for attempt := 0; ; attempt++ {
		r, err := s.repo.GetChangeRoleRequest(ctx, id)
		if err != nil {
			return domain.ChangeRoleRequest{}, err
		}
		next, err := s.machine.Apply(ctx, r.State, action)
		if err != nil {
			return domain.ChangeRoleRequest{}, err
		}
		r.State = next

		saved, err := s.repo.UpdateChangeRoleRequest(ctx, r)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return domain.ChangeRoleRequest{}, fmt.Errorf("updating change role request %s: %w", id, err)
		}
		return saved, nil
	}
}

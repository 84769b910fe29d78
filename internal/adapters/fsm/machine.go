package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"rently/internal/domain"
)

// Machine validates transitions of one workflow using looplab/fsm.
// A short-lived FSM is built per Apply call from the entity's current state,
// since looplab/fsm tracks the current state internally. Machine itself is
// stateless and safe for concurrent use.
type Machine[S ~string, A ~string] struct {
	entity string
	events []loopfsm.EventDesc
}

// New builds a machine from a domain workflow table.
func New[S ~string, A ~string](wf domain.Workflow[S, A]) *Machine[S, A] {
	return &Machine[S, A]{entity: wf.Entity, events: buildEvents(wf.Transitions)}
}

// NewTicketMachine and NewRoleChangeMachine are the two instantiations used by the app.
func NewTicketMachine() *Machine[domain.TicketState, domain.TicketAction] {
	return New(domain.TicketWorkflow)
}

func NewRoleChangeMachine() *Machine[domain.RoleChangeState, domain.RoleChangeAction] {
	return New(domain.RoleChangeWorkflow)
}

// buildEvents groups transitions with the same action and destination into a
// single EventDesc with several source states.
func buildEvents[S ~string, A ~string](ts []domain.Transition[S, A]) []loopfsm.EventDesc {
	type key struct {
		action string
		dst    string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range ts {
		k := key{action: string(t.Action), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{Name: k.action, Src: grouped[k], Dst: k.dst})
	}
	return out
}

// Apply returns the state reached by taking action from current, or a
// *domain.TransitionError if the action is illegal there. It has no side effects.
func (m *Machine[S, A]) Apply(ctx context.Context, current S, action A) (S, error) {
	machine := loopfsm.NewFSM(string(current), m.events, nil)

	if err := machine.Event(ctx, string(action)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return current, &domain.TransitionError{
				Entity:  m.entity,
				Current: string(current),
				Action:  string(action),
			}
		}
		return current, err
	}

	return S(machine.Current()), nil
}

// Can reports whether action is legal from current.
func (m *Machine[S, A]) Can(current S, action A) bool {
	return loopfsm.NewFSM(string(current), m.events, nil).Can(string(action))
}

// Entity names the workflow, e.g. for metrics labels.
func (m *Machine[S, A]) Entity() string { return m.entity }

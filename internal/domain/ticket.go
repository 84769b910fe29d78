package domain

import "time"

// TicketState is the lifecycle state of a support ticket.
type TicketState string

const (
	TicketOpen       TicketState = "OPEN"
	TicketInProgress TicketState = "IN_PROGRESS"
	TicketSolved     TicketState = "SOLVED"
	TicketClosed     TicketState = "CLOSED"
)

// TicketAction triggers a ticket transition.
type TicketAction string

const (
	TicketActionOpen       TicketAction = "open"
	TicketActionInProgress TicketAction = "in_progress"
	TicketActionSolved     TicketAction = "solved"
	TicketActionClosed     TicketAction = "closed"
)

// TicketActions lists every action, including ones that are never legal.
var TicketActions = []TicketAction{
	TicketActionOpen, TicketActionInProgress, TicketActionSolved, TicketActionClosed,
}

// TicketWorkflow is the ticket lifecycle. open is never a legal action:
// OPEN is only the initial state.
var TicketWorkflow = Workflow[TicketState, TicketAction]{
	Entity: "ticket",
	Transitions: []Transition[TicketState, TicketAction]{
		{Action: TicketActionInProgress, Src: TicketOpen, Dst: TicketInProgress},
		{Action: TicketActionInProgress, Src: TicketSolved, Dst: TicketInProgress},
		{Action: TicketActionSolved, Src: TicketOpen, Dst: TicketSolved},
		{Action: TicketActionSolved, Src: TicketInProgress, Dst: TicketSolved},
		{Action: TicketActionClosed, Src: TicketOpen, Dst: TicketClosed},
		{Action: TicketActionClosed, Src: TicketInProgress, Dst: TicketClosed},
		{Action: TicketActionClosed, Src: TicketSolved, Dst: TicketClosed},
	},
}

type Ticket struct {
	ID          string
	CreatorID   string
	Title       string
	Description string
	State       TicketState
	CreatedAt   time.Time
	ClosingDate *time.Time
	Version     int
}

// NewTicket creates a ticket in the OPEN state.
func NewTicket(id, creatorID, title, description string, now time.Time) Ticket {
	return Ticket{
		ID:          id,
		CreatorID:   creatorID,
		Title:       title,
		Description: description,
		State:       TicketOpen,
		CreatedAt:   now.UTC(),
	}
}

package domain

import "time"

type RoleChangeState string

const (
	RoleChangePending  RoleChangeState = "PENDING"
	RoleChangeAccepted RoleChangeState = "ACCEPTED"
	RoleChangeRejected RoleChangeState = "REJECTED"
)

type RoleChangeAction string

const (
	RoleChangeActionPending RoleChangeAction = "pending"
	RoleChangeActionAccept  RoleChangeAction = "accept"
	RoleChangeActionReject  RoleChangeAction = "reject"
)

var RoleChangeActions = []RoleChangeAction{
	RoleChangeActionPending, RoleChangeActionAccept, RoleChangeActionReject,
}

// RoleChangeWorkflow: ACCEPTED and REJECTED are terminal.
var RoleChangeWorkflow = Workflow[RoleChangeState, RoleChangeAction]{
	Entity: "change_role_request",
	Transitions: []Transition[RoleChangeState, RoleChangeAction]{
		{Action: RoleChangeActionAccept, Src: RoleChangePending, Dst: RoleChangeAccepted},
		{Action: RoleChangeActionReject, Src: RoleChangePending, Dst: RoleChangeRejected},
	},
}

// ChangeRoleRequest is a user's request to become a host.
type ChangeRoleRequest struct {
	ID         string
	UserID     string
	Motivation string
	State      RoleChangeState
	CreatedAt  time.Time
	Version    int
}

func NewChangeRoleRequest(id, userID, motivation string, now time.Time) ChangeRoleRequest {
	return ChangeRoleRequest{
		ID:         id,
		UserID:     userID,
		Motivation: motivation,
		State:      RoleChangePending,
		CreatedAt:  now.UTC(),
	}
}

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for every failure kind the core can report. Callers wrap
// them with %w so the kind survives whatever message is attached.
var (
	ErrUnavailableProperty    = errors.New("property unavailable")
	ErrCouponNotFound         = errors.New("coupon not found")
	ErrCouponExpired          = errors.New("coupon expired")
	ErrCouponAlreadyUsed      = errors.New("coupon already used")
	ErrNotFound               = errors.New("entity not found")
	ErrUnauthorized           = errors.New("user unauthorized")
	ErrIllegalStateTransition = errors.New("illegal state transition")
	ErrInvalidRequest         = errors.New("invalid request")
)

// Storage-level conditions. They are resolved inside the app layer and are
// never reported to callers as a Kind.
var (
	ErrVersionConflict           = errors.New("version conflict")
	ErrDuplicateConfirmationCode = errors.New("duplicate confirmation code")
)

// Kind is the stable category of an error, independent of its message.
type Kind string

const (
	KindUnavailableProperty    Kind = "UNAVAILABLE_PROPERTY"
	KindCouponNotFound         Kind = "COUPON_NOT_FOUND"
	KindCouponExpired          Kind = "COUPON_EXPIRED"
	KindCouponAlreadyUsed      Kind = "COUPON_ALREADY_USED"
	KindNotFound               Kind = "ENTITY_NOT_FOUND"
	KindUnauthorized           Kind = "USER_UNAUTHORIZED"
	KindIllegalStateTransition Kind = "ILLEGAL_STATE_TRANSITION"
	KindInvalidRequest         Kind = "INVALID_REQUEST"
	KindInternal               Kind = "INTERNAL"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnavailableProperty, KindUnavailableProperty},
	{ErrCouponNotFound, KindCouponNotFound},
	{ErrCouponExpired, KindCouponExpired},
	{ErrCouponAlreadyUsed, KindCouponAlreadyUsed},
	{ErrNotFound, KindNotFound},
	{ErrUnauthorized, KindUnauthorized},
	{ErrIllegalStateTransition, KindIllegalStateTransition},
	{ErrInvalidRequest, KindInvalidRequest},
}

// KindOf classifies err. A nil error has an empty Kind; anything not matching
// a known sentinel is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// TransitionError is returned when a workflow action is not legal from the
// entity's current state.
type TransitionError struct {
	Entity  string
	Current string
	Action  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: action %q is not valid from state %q", e.Entity, e.Action, e.Current)
}

// Is makes errors.Is(err, ErrIllegalStateTransition) hold for any TransitionError.
func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalStateTransition
}

package appointment

import "github.com/BruksfildServices01/slot-coordinator/internal/httperr"

// ===============================
// Scheduling state
// ===============================

type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateViewing    State = "viewing"
	StateLocking    State = "locking"
	StateLocked     State = "locked"
	StateConflict   State = "conflict"
	StateConfirming State = "confirming"
	StateConfirmed  State = "confirmed"
)

type CancelReason string

const (
	ReasonUserInitiated CancelReason = "user-initiated"
	ReasonExpiration    CancelReason = "expiration"
	ReasonOverride      CancelReason = "override"
)

// ===============================
// Validations
// ===============================

// CanSelect reports whether a new date or slot may be chosen.
func CanSelect(current State) error {
	switch current {
	case StateLocking, StateConfirming:
		return httperr.ErrBusiness(httperr.CodeSchedulingInProgress)
	}
	return nil
}

func CanResolveConflict(current State) error {
	if current != StateConflict {
		return httperr.ErrBusiness(httperr.CodeNoConflict)
	}
	return nil
}

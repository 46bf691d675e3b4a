package httperr

import "errors"

type BusinessError struct {
	Code string
}

func (e BusinessError) Error() string {
	return e.Code
}

func ErrBusiness(code string) error {
	return BusinessError{Code: code}
}

func IsBusiness(err error, code string) bool {
	var be BusinessError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// AsBusiness returns the business code carried by err, if any.
func AsBusiness(err error) (string, bool) {
	var be BusinessError
	if errors.As(err, &be) {
		return be.Code, true
	}
	return "", false
}

// Local precondition and state codes.
const (
	CodeMissingToken         = "missing_token"
	CodeMissingUser          = "missing_user"
	CodeMissingStaff         = "missing_staff"
	CodeMissingDate          = "missing_date"
	CodeMissingReason        = "missing_reason"
	CodeNoActiveLock         = "no_active_lock"
	CodeSchedulingInProgress = "scheduling_in_progress"
	CodeUnknownSlot          = "unknown_slot"
	CodeSlotUnavailable      = "slot_unavailable"
	CodeNoConflict           = "no_conflict"
	CodeAlreadyConfirmed     = "already_confirmed"
	CodeInvalidDate          = "invalid_date"
)

var messages = map[string]string{
	CodeMissingToken:         "You need to sign in again.",
	CodeMissingUser:          "Your user could not be identified.",
	CodeMissingStaff:         "Choose a staff member first.",
	CodeMissingDate:          "Choose a date first.",
	CodeMissingReason:        "Please describe the reason for the visit.",
	CodeNoActiveLock:         "There is no held time slot.",
	CodeSchedulingInProgress: "Another scheduling step is still running.",
	CodeUnknownSlot:          "That time slot does not exist.",
	CodeSlotUnavailable:      "That time slot is not available.",
	CodeNoConflict:           "There is no conflicting booking to resolve.",
	CodeAlreadyConfirmed:     "This appointment is already confirmed.",
	CodeInvalidDate:          "The date is not valid.",
}

// Message is the user facing text for a business code.
func Message(code string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return code
}

package broadcast

import (
	"time"

	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
)

type Type string

const (
	LockSlot           Type = "LOCK_SLOT"
	SlotLockedByOther  Type = "SLOT_LOCKED_BY_OTHER"
	CancelSlot         Type = "CANCEL_SLOT"
	ConfirmStart       Type = "CONFIRM_START"
	ConfirmEnd         Type = "CONFIRM_END"
	ConfirmAppointment Type = "CONFIRM_APPOINTMENT"
)

// Message is one cross-tab event. Origin is the sending tab's session id.
type Message struct {
	Type             Type                `json:"type"`
	StaffID          string              `json:"staffId"`
	SelectedDate     string              `json:"selectedDate,omitempty"`
	AppointmentID    string              `json:"appointmentId,omitempty"`
	LockedUntil      *time.Time          `json:"lockedUntil,omitempty"`
	TimeSlot         string              `json:"timeSlot,omitempty"`
	CanceledTimeSlot string              `json:"canceledTimeSlot,omitempty"`
	Reason           domain.CancelReason `json:"reason,omitempty"`
	Origin           string              `json:"origin"`
	SentAt           time.Time           `json:"sentAt"`
}

func (t Type) Valid() bool {
	switch t {
	case LockSlot, SlotLockedByOther, CancelSlot, ConfirmStart, ConfirmEnd, ConfirmAppointment:
		return true
	}
	return false
}

// Relevant reports whether msg concerns the receiver's current view. A
// message without a date only needs the staff to match.
func Relevant(msg Message, staffID, date string) bool {
	if msg.StaffID == "" || msg.StaffID != staffID {
		return false
	}
	if msg.SelectedDate != "" && msg.SelectedDate != date {
		return false
	}
	return true
}

// Slot returns the slot label the message is about.
func (m Message) Slot() string {
	if m.Type == CancelSlot && m.CanceledTimeSlot != "" {
		return m.CanceledTimeSlot
	}
	return m.TimeSlot
}

package scheduling

import (
	"time"

	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
)

// Session is one tab's attempt to book a slot.
type Session struct {
	SessionID        string       `json:"sessionId"`
	StaffID          string       `json:"staffId"`
	SelectedDate     string       `json:"selectedDate"`
	SelectedTimeSlot string       `json:"selectedTimeSlot"`
	IntendedTimeSlot string       `json:"intendedTimeSlot,omitempty"`
	AppointmentID    string       `json:"appointmentId"`
	LockedUntil      *time.Time   `json:"lockedUntil"`
	IsConfirming     bool         `json:"isConfirming"`
	IsConfirmed      bool         `json:"isConfirmed"`
	State            domain.State `json:"state"`

	// ExpirationHandled latches once per lock.
	ExpirationHandled bool `json:"-"`
}

func (s Session) clone() Session {
	if s.LockedUntil != nil {
		t := *s.LockedUntil
		s.LockedUntil = &t
	}
	return s
}

// State is what the page renders.
type State struct {
	Session              Session           `json:"session"`
	Loading              bool              `json:"loading"`
	SchedulingInProgress bool              `json:"schedulingInProgress"`
	Slots                []domain.TimeSlot `json:"slots"`
	RemainingSeconds     *int              `json:"remainingSeconds"`
	Conflict             *ConflictInfo     `json:"conflict,omitempty"`
	SlotCounts           map[string]*int   `json:"slotCounts,omitempty"`
	RedirectTo           string            `json:"redirectTo,omitempty"`
}

type Trigger string

const (
	TriggerValidate Trigger = "validate"
	TriggerAcquire  Trigger = "acquire"
)

// ConflictInfo describes the lock the user already holds next to the slot
// they tried to take.
type ConflictInfo struct {
	Trigger               Trigger    `json:"trigger"`
	ExistingAppointmentID string     `json:"existingAppointmentId"`
	StaffID               string     `json:"staffId,omitempty"`
	StaffName             string     `json:"staffName,omitempty"`
	Date                  string     `json:"date,omitempty"`
	TimeSlot              string     `json:"timeSlot,omitempty"`
	LockedUntil           *time.Time `json:"lockedUntil,omitempty"`
	IntendedStaffID       string     `json:"intendedStaffId"`
	IntendedDate          string     `json:"intendedDate"`
	IntendedTimeSlot      string     `json:"intendedTimeSlot"`
}

type heldLock struct {
	appointmentID string
	timeSlot      string
	lockedUntil   *time.Time
}

func (h heldLock) held() bool {
	return h.appointmentID != ""
}

// attempt carries one lock acquisition through validate, release and acquire.
type attempt struct {
	token     string
	userID    string
	sessionID string
	staffID   string
	date      string
	timeSlot  string
	reason    string

	prev     heldLock
	released bool
	// overriding is set once the user chose to replace the conflicting lock.
	// A failure from then on never restores the previous lock.
	overriding bool
}

// attemptRef is the audit view of a slot operation.
type attemptRef struct {
	staffID       string
	date          string
	timeSlot      string
	appointmentID string
}

func (a *attempt) ref() attemptRef {
	return attemptRef{staffID: a.staffID, date: a.date, timeSlot: a.timeSlot}
}

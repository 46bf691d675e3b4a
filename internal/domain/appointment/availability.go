package appointment

import "time"

// TimeSlot is one catalog interval as displayed for the selected date.
type TimeSlot struct {
	TimeSlot            string `json:"timeSlot"`
	IsAvailable         bool   `json:"isAvailable"`
	IsLocked            bool   `json:"isLocked"`
	LockedByCurrentUser bool   `json:"lockedByCurrentUser"`
	IsConfirmed         bool   `json:"isConfirmed"`
}

// Availability is the backend view of a staff member's day. LockedAppointmentID
// is set when the caller already holds a lock on that date.
type Availability struct {
	AvailableSlots      []TimeSlot `json:"availableSlots"`
	LockedAppointmentID string     `json:"lockedAppointmentId,omitempty"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`
}

// Unavailable is the fail-closed value for a slot the server did not report.
func Unavailable(label string) TimeSlot {
	return TimeSlot{TimeSlot: label}
}

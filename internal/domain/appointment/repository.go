package appointment

import "context"

// Backend is the remote owner of appointments and lock records. It is the
// sole arbiter of who holds a slot.
type Backend interface {
	// -------- Availability --------
	GetAvailableTimeSlots(ctx context.Context, staffID, date, token string) (*Availability, error)
	GetAvailableSlotCount(ctx context.Context, staffID, date, token string) (int, error)

	// -------- Locking --------
	ValidateAppointmentRequest(ctx context.Context, req Request, token string) error
	ScheduleAppointment(ctx context.Context, req Request, token string) (*Lock, error)
	CancelPreviousLockedAppointment(ctx context.Context, sessionID, token string) error
	CancelExpiredLockedAppointment(ctx context.Context, appointmentID, token string) error

	// -------- Confirmation --------
	ConfirmAppointment(ctx context.Context, appointmentID, token, reason string) error

	// -------- Lookups --------
	GetAppointment(ctx context.Context, id, token string) (*Appointment, error)
	GetHealthcareStaffByID(ctx context.Context, id, token string) (*Staff, error)
}

package appointment

import "time"

// Request is the body of validate and schedule calls.
type Request struct {
	UserID                  string `json:"userId"`
	StaffID                 string `json:"staffId"`
	AppointmentDate         string `json:"appointmentDate"`
	Reason                  string `json:"reason"`
	SendEmailToUser         bool   `json:"sendEmailToUser"`
	SendNotificationToUser  bool   `json:"sendNotificationToUser"`
	SendEmailToStaff        bool   `json:"sendEmailToStaff"`
	SendNotificationToStaff bool   `json:"sendNotificationToStaff"`
	SessionID               string `json:"sessionId"`
}

// Lock is the backend lock record returned when a slot is acquired.
type Lock struct {
	ID          string    `json:"id"`
	LockedUntil time.Time `json:"lockedUntil"`
	Status      string    `json:"status,omitempty"`
}

// Appointment is a lock or appointment record as looked up by id.
type Appointment struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	StaffID         string     `json:"staffId"`
	AppointmentDate time.Time  `json:"appointmentDate"`
	Status          string     `json:"status"`
	LockedUntil     *time.Time `json:"lockedUntil,omitempty"`
}

type Staff struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

// Preferences are the notification flags sent with every request.
type Preferences struct {
	SendEmailToUser         bool
	SendNotificationToUser  bool
	SendEmailToStaff        bool
	SendNotificationToStaff bool
}

func (p Preferences) Apply(r *Request) {
	r.SendEmailToUser = p.SendEmailToUser
	r.SendNotificationToUser = p.SendNotificationToUser
	r.SendEmailToStaff = p.SendEmailToStaff
	r.SendNotificationToStaff = p.SendNotificationToStaff
}

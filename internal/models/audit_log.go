package models

import "time"

// AuditLog is one scheduling transition of a tab session.
type AuditLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	SessionID string `gorm:"size:64;index" json:"session_id"`
	UserID    string `gorm:"size:64;index" json:"user_id"`
	StaffID   string `gorm:"size:64" json:"staff_id"`
	Action    string `gorm:"size:50;not null" json:"action"`

	AppointmentID string `gorm:"size:64" json:"appointment_id"`
	SlotDate      string `gorm:"size:10" json:"slot_date"`
	TimeSlot      string `gorm:"size:20" json:"time_slot"`
	Metadata      string `gorm:"type:text" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}

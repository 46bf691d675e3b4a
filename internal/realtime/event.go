package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EventType string

const (
	SlotLocked           EventType = "SlotLocked"
	LockExpired          EventType = "LockExpired"
	AppointmentConfirmed EventType = "AppointmentConfirmed"
)

// Event is a server push about a slot of the watched staff member.
type Event struct {
	Type          EventType  `json:"-"`
	Date          string     `json:"date"`
	TimeSlot      string     `json:"timeSlot"`
	AppointmentID string     `json:"appointmentId"`
	StaffID       string     `json:"staffId,omitempty"`
	UserID        string     `json:"userId,omitempty"`
	LockedUntil   *time.Time `json:"lockedUntil,omitempty"`
}

type envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// decodeFrame parses one hub frame. Dates may arrive as full timestamps and
// are cut down to the calendar day.
func decodeFrame(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Type {
	case SlotLocked, LockExpired, AppointmentConfirmed:
	default:
		return Event{}, fmt.Errorf("unknown event %q", env.Type)
	}

	var ev Event
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	ev.Type = env.Type

	if len(ev.Date) > len("2006-01-02") {
		ev.Date = ev.Date[:len("2006-01-02")]
	}
	ev.TimeSlot = strings.TrimSpace(ev.TimeSlot)

	if ev.Date == "" || ev.TimeSlot == "" {
		return Event{}, fmt.Errorf("%s without date or time slot", env.Type)
	}
	return ev, nil
}

func GroupName(staffID string) string {
	return "staff:" + staffID
}

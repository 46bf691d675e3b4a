package audit

import (
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BruksfildServices01/slot-coordinator/internal/models"
)

// Sink persists audit events.
type Sink interface {
	Log(ev Event) error
}

// Logger writes audit rows through gorm.
type Logger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

func (l *Logger) Log(ev Event) error {
	row := models.AuditLog{
		SessionID:     ev.SessionID,
		UserID:        ev.UserID,
		StaffID:       ev.StaffID,
		Action:        ev.Action,
		AppointmentID: ev.AppointmentID,
		SlotDate:      ev.Date,
		TimeSlot:      ev.TimeSlot,
		Metadata:      encodeMetadata(ev.Metadata),
	}

	return l.db.Create(&row).Error
}

// ZapSink records audit events in the process log when no database is set.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.With(zap.String("component", "audit"))}
}

func (s *ZapSink) Log(ev Event) error {
	s.logger.Info(ev.Action,
		zap.String("session_id", ev.SessionID),
		zap.String("user_id", ev.UserID),
		zap.String("staff_id", ev.StaffID),
		zap.String("appointment_id", ev.AppointmentID),
		zap.String("date", ev.Date),
		zap.String("time_slot", ev.TimeSlot),
		zap.String("metadata", encodeMetadata(ev.Metadata)),
	)
	return nil
}

func encodeMetadata(metadata any) string {
	if metadata == nil {
		return ""
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(b)
}

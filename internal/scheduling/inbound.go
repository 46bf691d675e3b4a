package scheduling

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BruksfildServices01/slot-coordinator/internal/broadcast"
	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
	"github.com/BruksfildServices01/slot-coordinator/internal/realtime"
)

const (
	sourceTab  = "tab"
	sourcePush = "push"
)

// HandleBroadcast applies a message from a sibling tab of the same user.
// Messages for another staff member or day are ignored.
func (o *Orchestrator) HandleBroadcast(_ context.Context, msg broadcast.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := &o.session
	if !broadcast.Relevant(msg, s.StaffID, s.SelectedDate) {
		o.metrics.ObserveInbound(sourceTab, string(msg.Type), false)
		return
	}
	date := s.SelectedDate
	slot, known := o.catalog.Canonical(msg.Slot())
	applied := true

	switch msg.Type {
	case broadcast.LockSlot:
		if !known || msg.AppointmentID == "" || s.IsConfirmed {
			applied = false
			break
		}
		if s.AppointmentID != "" && !domain.SameSlot(s.SelectedTimeSlot, slot) {
			o.table.MarkAvailable(date, s.SelectedTimeSlot)
		}
		o.table.ClearOwnership(slot)
		o.table.MarkLockedByMe(date, slot)
		s.AppointmentID = msg.AppointmentID
		s.LockedUntil = cloneTime(msg.LockedUntil)
		s.SelectedTimeSlot = slot
		s.ExpirationHandled = false
		if s.State != domain.StateConflict && !o.schedulingInProgress {
			s.State = domain.StateLocked
		}

	case broadcast.SlotLockedByOther:
		if !known || (s.AppointmentID != "" && domain.SameSlot(s.SelectedTimeSlot, slot)) {
			applied = false
			break
		}
		o.table.MarkLockedByOther(date, slot)

	case broadcast.CancelSlot:
		if !known {
			applied = false
			break
		}
		o.table.MarkAvailable(date, slot)
		ours := domain.SameSlot(s.SelectedTimeSlot, slot) &&
			(msg.AppointmentID == "" || msg.AppointmentID == s.AppointmentID)
		if ours && !o.schedulingInProgress {
			o.resetSessionLocked()
		}

	case broadcast.ConfirmStart:
		if !o.matchesSessionLocked(msg.AppointmentID, slot) {
			applied = false
			break
		}
		s.IsConfirming = true
		s.State = domain.StateConfirming

	case broadcast.ConfirmEnd:
		if !s.IsConfirming || !o.matchesSessionLocked(msg.AppointmentID, slot) {
			applied = false
			break
		}
		s.IsConfirming = false
		s.State = o.restingStateLocked()

	case broadcast.ConfirmAppointment:
		if known {
			o.table.MarkConfirmed(date, slot)
		}
		if o.matchesSessionLocked(msg.AppointmentID, slot) {
			o.resetSessionLocked()
		}

	default:
		applied = false
	}

	o.syncTimerLocked()
	o.metrics.ObserveInbound(sourceTab, string(msg.Type), applied)
	o.logger.Debug("tab message",
		zap.String("type", string(msg.Type)),
		zap.String("origin", msg.Origin),
		zap.Bool("applied", applied))
}

// HandleRemote applies a server push for the watched staff member and
// relays it to sibling tabs.
func (o *Orchestrator) HandleRemote(ctx context.Context, ev realtime.Event) {
	o.mu.Lock()
	s := &o.session
	if s.SelectedDate == "" || ev.Date != s.SelectedDate || (ev.StaffID != "" && ev.StaffID != s.StaffID) {
		o.mu.Unlock()
		o.metrics.ObserveInbound(sourcePush, string(ev.Type), false)
		return
	}
	slot, known := o.catalog.Canonical(ev.TimeSlot)
	if !known {
		o.mu.Unlock()
		o.metrics.ObserveInbound(sourcePush, string(ev.Type), false)
		return
	}
	date := s.SelectedDate
	mine := ev.AppointmentID != "" && ev.AppointmentID == s.AppointmentID

	var relay *broadcast.Message
	applied := true

	switch ev.Type {
	case realtime.SlotLocked:
		if mine {
			applied = false
			break
		}
		o.table.MarkLockedByOther(date, slot)
		m := o.message(broadcast.SlotLockedByOther)
		m.TimeSlot = slot
		relay = &m

	case realtime.LockExpired:
		o.table.MarkAvailable(date, slot)
		if mine {
			o.resetSessionLocked()
		}
		m := o.message(broadcast.CancelSlot)
		m.CanceledTimeSlot = slot
		m.AppointmentID = ev.AppointmentID
		m.Reason = domain.ReasonExpiration
		relay = &m

	case realtime.AppointmentConfirmed:
		o.table.MarkConfirmed(date, slot)
		if mine {
			o.resetSessionLocked()
			s.IsConfirmed = true
			s.State = o.restingStateLocked()
		}

	default:
		applied = false
	}

	o.syncTimerLocked()
	o.mu.Unlock()

	o.metrics.ObserveInbound(sourcePush, string(ev.Type), applied)
	if relay != nil {
		o.publish(ctx, *relay)
	}
}

// matchesSessionLocked reports whether a sibling's message is about the
// lock this session holds.
func (o *Orchestrator) matchesSessionLocked(appointmentID, slot string) bool {
	s := o.session
	if s.AppointmentID == "" {
		return false
	}
	if appointmentID != "" {
		return appointmentID == s.AppointmentID
	}
	return domain.SameSlot(s.SelectedTimeSlot, slot)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

package scheduling

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BruksfildServices01/slot-coordinator/internal/audit"
	"github.com/BruksfildServices01/slot-coordinator/internal/backend"
	"github.com/BruksfildServices01/slot-coordinator/internal/broadcast"
	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
)

// Confirm turns the held lock into an appointment. Sibling tabs see
// CONFIRM_START before the call and CONFIRM_END after it, whatever the
// outcome.
func (o *Orchestrator) Confirm(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		o.feed.Error(httperr.Message(httperr.CodeMissingReason))
		return httperr.ErrBusiness(httperr.CodeMissingReason)
	}

	o.mu.Lock()
	s := &o.session
	switch {
	case s.IsConfirmed:
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeAlreadyConfirmed)
	case s.AppointmentID == "":
		o.mu.Unlock()
		o.feed.Error(httperr.Message(httperr.CodeNoActiveLock))
		return httperr.ErrBusiness(httperr.CodeNoActiveLock)
	case o.cfg.Token == "":
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeMissingToken)
	case s.IsConfirming || o.schedulingInProgress:
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeSchedulingInProgress)
	}

	s.IsConfirming = true
	s.State = domain.StateConfirming
	o.draftReason = reason
	o.syncTimerLocked()

	ref := attemptRef{
		staffID:       s.StaffID,
		date:          s.SelectedDate,
		timeSlot:      s.SelectedTimeSlot,
		appointmentID: s.AppointmentID,
	}
	token := o.cfg.Token

	start := o.message(broadcast.ConfirmStart)
	start.AppointmentID = ref.appointmentID
	start.TimeSlot = ref.timeSlot
	end := start
	end.Type = broadcast.ConfirmEnd
	o.mu.Unlock()

	o.publish(ctx, start)
	defer o.publish(ctx, end)

	if err := o.backend.ConfirmAppointment(ctx, ref.appointmentID, token, reason); err != nil {
		o.mu.Lock()
		if o.session.AppointmentID == ref.appointmentID {
			o.resetSessionLocked()
		}
		o.mu.Unlock()

		o.feed.Error(backend.UserMessage(err, "Could not confirm the appointment."))
		o.record(audit.ActionConfirmFailed, ref, map[string]any{"error": err.Error()})
		o.metrics.ObserveConfirmation("failed")
		o.logger.Warn("confirmation failed",
			zap.String("appointment_id", ref.appointmentID), zap.Error(err))

		// The lock is presumed gone; reload the day to see what is left.
		o.fetch.Trigger()
		return err
	}

	o.mu.Lock()
	o.table.MarkConfirmed(ref.date, ref.timeSlot)
	o.resetSessionLocked()
	o.session.IsConfirmed = true
	o.session.State = o.restingStateLocked()
	o.syncTimerLocked()

	done := o.message(broadcast.ConfirmAppointment)
	done.AppointmentID = ref.appointmentID
	done.TimeSlot = ref.timeSlot
	o.scheduleRedirectLocked()
	o.mu.Unlock()

	o.publish(ctx, done)
	o.record(audit.ActionConfirmed, ref, map[string]any{"reason": reason})
	o.metrics.ObserveConfirmation("confirmed")
	o.invalidateCount(ctx, ref.staffID, ref.date)
	o.feed.Success("Your appointment is confirmed.")

	o.logger.Info("appointment confirmed",
		zap.String("appointment_id", ref.appointmentID),
		zap.String("staff_id", ref.staffID),
		zap.String("date", ref.date),
		zap.String("time_slot", ref.timeSlot))
	return nil
}

func (o *Orchestrator) scheduleRedirectLocked() {
	if o.redirect != nil {
		o.redirect.Stop()
	}
	path := o.cfg.RedirectPath
	o.redirect = time.AfterFunc(o.cfg.RedirectDelay, func() {
		o.mu.Lock()
		o.redirectTo = path
		o.mu.Unlock()

		if o.navigator != nil {
			o.navigator.Redirect(path)
		}
	})
}

package scheduling

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BruksfildServices01/slot-coordinator/internal/audit"
	"github.com/BruksfildServices01/slot-coordinator/internal/backend"
	"github.com/BruksfildServices01/slot-coordinator/internal/broadcast"
	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
	"github.com/BruksfildServices01/slot-coordinator/internal/timezone"
)

// enterConflict opens the conflict dialog for an attempt that found another
// lock of this user. Validation and acquisition share this path.
func (o *Orchestrator) enterConflict(ctx context.Context, trigger Trigger, a *attempt, ce *backend.ConflictError) error {
	if ce.ExistingAppointmentID == "" {
		err := fmt.Errorf("%w: existing appointment id missing", ce)
		o.abortLock(ctx, a, err, "You already hold another time slot.")
		return err
	}

	info := o.describeExisting(ctx, ce.ExistingAppointmentID, a.token)
	info.Trigger = trigger
	info.IntendedStaffID = a.staffID
	info.IntendedDate = a.date
	info.IntendedTimeSlot = a.timeSlot

	var released []broadcast.Message
	o.mu.Lock()
	if a.released && a.prev.held() {
		// The release step already ran; the old lock is gone.
		o.table.MarkAvailable(a.date, a.prev.timeSlot)
		released = append(released, releasedMessage(a))
		a.prev = heldLock{}
		o.session.AppointmentID = ""
		o.session.LockedUntil = nil
		o.table.ClearOwnership("")
	}
	o.schedulingInProgress = false
	o.conflict = &info
	o.pending = a
	if !a.prev.held() {
		o.session.SelectedTimeSlot = a.timeSlot
	}
	o.session.IntendedTimeSlot = a.timeSlot
	o.session.State = domain.StateConflict
	o.syncTimerLocked()
	o.mu.Unlock()

	o.publish(ctx, released...)
	o.feed.Warning("You already hold another time slot. Keep it or switch to the new one.")
	ref := a.ref()
	ref.appointmentID = info.ExistingAppointmentID
	o.record(audit.ActionConflict, ref, map[string]any{"trigger": trigger})
	o.metrics.ObserveConflict(string(trigger), "opened")
	o.logger.Info("existing lock conflict",
		zap.String("trigger", string(trigger)),
		zap.String("existing_appointment_id", info.ExistingAppointmentID),
		zap.String("time_slot", a.timeSlot))
	return ErrConflictPending
}

// describeExisting looks up the conflicting lock for the dialog. Lookup
// failures leave the fields they would have filled empty.
func (o *Orchestrator) describeExisting(ctx context.Context, appointmentID, token string) ConflictInfo {
	info := ConflictInfo{ExistingAppointmentID: appointmentID}

	appt, err := o.backend.GetAppointment(ctx, appointmentID, token)
	if err != nil {
		o.logger.Warn("lookup of conflicting appointment failed",
			zap.String("appointment_id", appointmentID), zap.Error(err))
		return info
	}

	info.StaffID = appt.StaffID
	info.LockedUntil = appt.LockedUntil
	local := appt.AppointmentDate.In(timezone.Location(o.cfg.Timezone))
	info.Date = local.Format(timezone.DateLayout)
	start := local.Format("15:04")
	for _, label := range o.catalog.Labels() {
		if s, _ := o.catalog.StartOf(label); s == start {
			info.TimeSlot = label
			break
		}
	}

	if appt.StaffID == "" {
		return info
	}
	staff, err := o.backend.GetHealthcareStaffByID(ctx, appt.StaffID, token)
	if err != nil {
		o.logger.Warn("lookup of conflicting staff failed",
			zap.String("staff_id", appt.StaffID), zap.Error(err))
		return info
	}
	info.StaffName = staff.FullName
	return info
}

// ResolveConflict answers the conflict dialog. Keeping drops the new
// selection. Overriding releases the existing lock, tells the sibling tabs
// and then acquires the intended slot; nothing is acquired if the release
// fails.
func (o *Orchestrator) ResolveConflict(ctx context.Context, override bool) error {
	o.mu.Lock()
	if err := domain.CanResolveConflict(o.session.State); err != nil || o.conflict == nil || o.pending == nil {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeNoConflict)
	}
	if o.schedulingInProgress {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeSchedulingInProgress)
	}
	info := *o.conflict
	a := o.pending

	if !override {
		o.keepExistingLocked(a)
		o.mu.Unlock()

		o.feed.Info("Kept your existing time slot.")
		ref := a.ref()
		ref.appointmentID = info.ExistingAppointmentID
		o.record(audit.ActionConflictKept, ref, nil)
		o.metrics.ObserveConflict(string(info.Trigger), "kept")
		return nil
	}

	o.schedulingInProgress = true
	o.session.State = domain.StateLocking
	a.overriding = true
	o.mu.Unlock()

	if err := o.backend.CancelExpiredLockedAppointment(ctx, info.ExistingAppointmentID, a.token); err != nil {
		o.failOverride(ctx, a, err)
		o.metrics.ObserveConflict(string(info.Trigger), "override_failed")
		return err
	}

	o.mu.Lock()
	if info.StaffID == o.session.StaffID && info.Date == o.session.SelectedDate && info.TimeSlot != "" {
		o.table.MarkAvailable(info.Date, info.TimeSlot)
	}
	if a.prev.held() && a.prev.appointmentID == info.ExistingAppointmentID {
		// The conflicting lock was our own held lock and is gone now.
		o.table.MarkAvailable(a.date, a.prev.timeSlot)
		o.table.ClearOwnership("")
		a.prev = heldLock{}
		o.session.AppointmentID = ""
		o.session.LockedUntil = nil
		o.session.ExpirationHandled = false
		o.session.SelectedTimeSlot = a.timeSlot
		o.syncTimerLocked()
	}
	o.conflict = nil
	releasePrev := a.prev.held() && !a.released
	o.mu.Unlock()

	staffID := info.StaffID
	if staffID == "" {
		staffID = a.staffID
	}
	o.publish(ctx, broadcast.Message{
		Type:             broadcast.CancelSlot,
		StaffID:          staffID,
		SelectedDate:     info.Date,
		AppointmentID:    info.ExistingAppointmentID,
		CanceledTimeSlot: info.TimeSlot,
		Reason:           domain.ReasonUserInitiated,
	})
	o.invalidateCount(ctx, info.StaffID, info.Date)

	ref := a.ref()
	ref.appointmentID = info.ExistingAppointmentID
	o.record(audit.ActionConflictOverride, ref, map[string]any{
		"existing_date":      info.Date,
		"existing_time_slot": info.TimeSlot,
	})
	o.metrics.ObserveConflict(string(info.Trigger), "override")
	o.metrics.ObserveRelease(string(domain.ReasonOverride), "released")

	if releasePrev {
		if err := o.backend.CancelPreviousLockedAppointment(ctx, a.sessionID, a.token); err != nil {
			o.abortLock(ctx, a, err, "Could not release your previous time slot.")
			return err
		}
		a.released = true
	}

	return o.acquire(ctx, a)
}

// keepExistingLocked clears only the new selection.
func (o *Orchestrator) keepExistingLocked(a *attempt) {
	s := &o.session
	o.conflict = nil
	o.pending = nil
	s.IntendedTimeSlot = ""
	if a.prev.held() {
		s.SelectedTimeSlot = a.prev.timeSlot
		s.AppointmentID = a.prev.appointmentID
		s.LockedUntil = a.prev.lockedUntil
	} else {
		s.SelectedTimeSlot = ""
	}
	s.State = o.restingStateLocked()
	o.syncTimerLocked()
}

// failOverride clears all selection state after the existing lock could not
// be released. The user starts over.
func (o *Orchestrator) failOverride(ctx context.Context, a *attempt, err error) {
	o.logger.Warn("override release failed",
		zap.String("time_slot", a.timeSlot),
		zap.Error(err))
	o.abortLock(ctx, a, err, "Could not release your other time slot. Please choose again.")
}

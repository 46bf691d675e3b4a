package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BruksfildServices01/slot-coordinator/internal/audit"
	"github.com/BruksfildServices01/slot-coordinator/internal/backend"
	"github.com/BruksfildServices01/slot-coordinator/internal/broadcast"
	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
	"github.com/BruksfildServices01/slot-coordinator/internal/timezone"
)

// SelectSlot is a tap on a time slot. Tapping the slot this session holds
// releases it; any other free slot goes through validate, release of the
// previous lock and acquire, in that order.
func (o *Orchestrator) SelectSlot(ctx context.Context, timeSlot string) error {
	label, ok := o.catalog.Canonical(timeSlot)
	if !ok {
		return httperr.ErrBusiness(httperr.CodeUnknownSlot)
	}

	o.mu.Lock()
	if err := o.requireSessionLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.session.IsConfirmed {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeAlreadyConfirmed)
	}
	if o.schedulingInProgress || o.session.IsConfirming {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeSchedulingInProgress)
	}

	if o.session.AppointmentID != "" && domain.SameSlot(o.session.SelectedTimeSlot, label) {
		o.mu.Unlock()
		return o.CancelLock(ctx)
	}

	slot, _ := o.table.Get(label)
	if !slot.IsAvailable {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeSlotUnavailable)
	}

	a := &attempt{
		token:     o.cfg.Token,
		userID:    o.cfg.UserID,
		sessionID: o.cfg.SessionID,
		staffID:   o.session.StaffID,
		date:      o.session.SelectedDate,
		timeSlot:  label,
		reason:    o.draftReason,
		prev: heldLock{
			appointmentID: o.session.AppointmentID,
			timeSlot:      o.session.SelectedTimeSlot,
			lockedUntil:   o.session.LockedUntil,
		},
	}
	if a.prev.appointmentID == "" {
		a.prev = heldLock{}
	}

	// A new pick abandons any open conflict dialog.
	o.conflict = nil
	o.pending = nil

	// The selected slot stays on a held lock until the new one is granted.
	if !a.prev.held() {
		o.session.SelectedTimeSlot = label
	}
	o.session.IntendedTimeSlot = label
	o.session.State = domain.StateLocking
	o.schedulingInProgress = true
	o.mu.Unlock()

	return o.lockSlot(ctx, a)
}

func (o *Orchestrator) requireSessionLocked() error {
	switch {
	case o.cfg.Token == "":
		return httperr.ErrBusiness(httperr.CodeMissingToken)
	case o.cfg.UserID == "":
		return httperr.ErrBusiness(httperr.CodeMissingUser)
	case o.session.StaffID == "":
		return httperr.ErrBusiness(httperr.CodeMissingStaff)
	case o.session.SelectedDate == "":
		return httperr.ErrBusiness(httperr.CodeMissingDate)
	}
	return nil
}

func (o *Orchestrator) buildRequest(a *attempt) (domain.Request, error) {
	start, ok := o.catalog.StartOf(a.timeSlot)
	if !ok {
		return domain.Request{}, httperr.ErrBusiness(httperr.CodeUnknownSlot)
	}
	at, err := timezone.At(a.date, start, o.cfg.Timezone)
	if err != nil {
		return domain.Request{}, httperr.ErrBusiness(httperr.CodeInvalidDate)
	}

	req := domain.Request{
		UserID:          a.userID,
		StaffID:         a.staffID,
		AppointmentDate: at.Format(time.RFC3339),
		Reason:          a.reason,
		SessionID:       a.sessionID,
	}
	o.cfg.Preferences.Apply(&req)
	return req, nil
}

// lockSlot runs validate, release-previous and acquire. Called with the
// in-progress flag set and mu released.
func (o *Orchestrator) lockSlot(ctx context.Context, a *attempt) error {
	req, err := o.buildRequest(a)
	if err != nil {
		o.abortLock(ctx, a, err, "")
		return err
	}

	if err := o.backend.ValidateAppointmentRequest(ctx, req, a.token); err != nil {
		if ce, ok := backend.AsConflict(err); ok {
			return o.enterConflict(ctx, TriggerValidate, a, ce)
		}
		o.abortLock(ctx, a, err, "This time slot cannot be booked.")
		return err
	}

	if err := o.backend.CancelPreviousLockedAppointment(ctx, a.sessionID, a.token); err != nil {
		o.abortLock(ctx, a, err, "Could not release your previous time slot.")
		return err
	}
	a.released = true

	return o.acquire(ctx, a)
}

// acquire takes the lock on the intended slot and publishes it.
func (o *Orchestrator) acquire(ctx context.Context, a *attempt) error {
	req, err := o.buildRequest(a)
	if err != nil {
		o.abortLock(ctx, a, err, "")
		return err
	}

	lock, err := o.backend.ScheduleAppointment(ctx, req, a.token)
	if err != nil {
		if ce, ok := backend.AsConflict(err); ok {
			return o.enterConflict(ctx, TriggerAcquire, a, ce)
		}
		o.abortLock(ctx, a, err, "Could not hold this time slot.")
		return err
	}

	until := lock.LockedUntil

	o.mu.Lock()
	s := &o.session
	if a.prev.held() && !domain.SameSlot(a.prev.timeSlot, a.timeSlot) {
		o.table.MarkAvailable(a.date, a.prev.timeSlot)
	}
	s.AppointmentID = lock.ID
	s.LockedUntil = &until
	s.SelectedTimeSlot = a.timeSlot
	s.IntendedTimeSlot = ""
	s.ExpirationHandled = false
	s.IsConfirmed = false
	s.State = domain.StateLocked
	o.conflict = nil
	o.pending = nil
	o.schedulingInProgress = false

	o.table.ClearOwnership(a.timeSlot)
	o.table.MarkLockedByMe(a.date, a.timeSlot)
	o.syncTimerLocked()

	msg := o.message(broadcast.LockSlot)
	msg.AppointmentID = lock.ID
	msg.LockedUntil = &until
	msg.TimeSlot = a.timeSlot
	o.mu.Unlock()

	o.publish(ctx, msg)

	ref := a.ref()
	ref.appointmentID = lock.ID
	o.record(audit.ActionSlotLocked, ref, map[string]any{"locked_until": until})
	o.metrics.ObserveLock("acquired")
	o.invalidateCount(ctx, a.staffID, a.date)
	o.feed.Success(fmt.Sprintf("Time slot %s is held for you.", a.timeSlot))

	o.logger.Info("slot locked",
		zap.String("appointment_id", lock.ID),
		zap.String("staff_id", a.staffID),
		zap.String("date", a.date),
		zap.String("time_slot", a.timeSlot),
		zap.Time("locked_until", until))
	return nil
}

// abortLock rolls the session back after a failed attempt. The previous
// lock is restored only if the release step never ran and no override was
// chosen. A previous lock that was released is announced to sibling tabs.
func (o *Orchestrator) abortLock(ctx context.Context, a *attempt, err error, fallback string) {
	o.mu.Lock()
	s := &o.session
	o.schedulingInProgress = false
	s.IntendedTimeSlot = ""

	var released []broadcast.Message
	refetch := false
	if a.prev.held() && !a.released && !a.overriding {
		s.SelectedTimeSlot = a.prev.timeSlot
		s.AppointmentID = a.prev.appointmentID
		s.LockedUntil = a.prev.lockedUntil
	} else {
		if a.prev.held() && a.released {
			o.table.MarkAvailable(a.date, a.prev.timeSlot)
			released = append(released, releasedMessage(a))
		}
		// The backend may still hold a lock we dropped locally.
		refetch = a.prev.held() && !a.released
		s.SelectedTimeSlot = ""
		s.AppointmentID = ""
		s.LockedUntil = nil
		s.ExpirationHandled = false
		o.table.ClearOwnership("")
	}
	o.conflict = nil
	o.pending = nil
	s.State = o.restingStateLocked()
	o.syncTimerLocked()
	o.mu.Unlock()

	o.publish(ctx, released...)
	if refetch {
		o.fetch.Trigger()
	}

	var msg string
	if code, ok := httperr.AsBusiness(err); ok {
		msg = httperr.Message(code)
	} else {
		msg = backend.UserMessage(err, fallback)
	}
	if msg != "" {
		o.feed.Error(msg)
	}

	o.record(audit.ActionLockFailed, a.ref(), map[string]any{"error": err.Error()})
	o.metrics.ObserveLock("failed")
	o.logger.Warn("slot lock failed",
		zap.String("staff_id", a.staffID),
		zap.String("date", a.date),
		zap.String("time_slot", a.timeSlot),
		zap.Error(err))
}

// CancelLock releases the lock this session holds.
func (o *Orchestrator) CancelLock(ctx context.Context) error {
	o.mu.Lock()
	if o.session.AppointmentID == "" {
		o.mu.Unlock()
		o.feed.Error(httperr.Message(httperr.CodeNoActiveLock))
		return httperr.ErrBusiness(httperr.CodeNoActiveLock)
	}
	if o.cfg.Token == "" {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeMissingToken)
	}
	if o.schedulingInProgress || o.session.IsConfirming {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeSchedulingInProgress)
	}
	o.schedulingInProgress = true
	ref := attemptRef{
		staffID:       o.session.StaffID,
		date:          o.session.SelectedDate,
		timeSlot:      o.session.SelectedTimeSlot,
		appointmentID: o.session.AppointmentID,
	}
	token := o.cfg.Token
	o.mu.Unlock()

	if err := o.backend.CancelExpiredLockedAppointment(ctx, ref.appointmentID, token); err != nil {
		o.mu.Lock()
		o.schedulingInProgress = false
		o.mu.Unlock()

		o.feed.Error(backend.UserMessage(err, "Could not release the time slot."))
		o.metrics.ObserveRelease(string(domain.ReasonUserInitiated), "failed")
		return err
	}

	o.mu.Lock()
	o.schedulingInProgress = false
	if o.session.AppointmentID == ref.appointmentID {
		o.resetSessionLocked()
	}
	o.table.MarkAvailable(ref.date, ref.timeSlot)
	msg := broadcast.Message{
		Type:             broadcast.CancelSlot,
		StaffID:          ref.staffID,
		SelectedDate:     ref.date,
		AppointmentID:    ref.appointmentID,
		CanceledTimeSlot: ref.timeSlot,
		Reason:           domain.ReasonUserInitiated,
	}
	o.mu.Unlock()

	o.publish(ctx, msg)
	o.record(audit.ActionLockReleased, ref, map[string]any{"reason": domain.ReasonUserInitiated})
	o.metrics.ObserveRelease(string(domain.ReasonUserInitiated), "released")
	o.invalidateCount(ctx, ref.staffID, ref.date)
	o.feed.Info(fmt.Sprintf("Time slot %s was released.", ref.timeSlot))
	return nil
}

// HandleLockExpiration releases a lock whose countdown ran out. It acts at
// most once per lock and never retries a failed release.
func (o *Orchestrator) HandleLockExpiration(ctx context.Context) error {
	o.mu.Lock()
	s := &o.session
	if s.ExpirationHandled {
		o.mu.Unlock()
		return nil
	}
	if o.cfg.Token == "" || s.SelectedTimeSlot == "" || s.SelectedDate == "" || s.AppointmentID == "" {
		o.mu.Unlock()
		return nil
	}
	s.ExpirationHandled = true
	ref := attemptRef{
		staffID:       s.StaffID,
		date:          s.SelectedDate,
		timeSlot:      s.SelectedTimeSlot,
		appointmentID: s.AppointmentID,
	}
	token := o.cfg.Token
	o.mu.Unlock()

	if err := o.backend.CancelExpiredLockedAppointment(ctx, ref.appointmentID, token); err != nil {
		o.feed.Error(backend.UserMessage(err, "Could not release the expired time slot."))
		o.metrics.ObserveRelease(string(domain.ReasonExpiration), "failed")
		return err
	}

	o.mu.Lock()
	if o.session.AppointmentID == ref.appointmentID {
		o.resetSessionLocked()
	}
	o.table.MarkAvailable(ref.date, ref.timeSlot)
	msg := broadcast.Message{
		Type:             broadcast.CancelSlot,
		StaffID:          ref.staffID,
		SelectedDate:     ref.date,
		AppointmentID:    ref.appointmentID,
		CanceledTimeSlot: ref.timeSlot,
		Reason:           domain.ReasonExpiration,
	}
	o.mu.Unlock()

	o.publish(ctx, msg)
	o.record(audit.ActionLockExpired, ref, nil)
	o.metrics.ObserveRelease(string(domain.ReasonExpiration), "released")
	o.invalidateCount(ctx, ref.staffID, ref.date)
	o.feed.Warning(fmt.Sprintf("Your hold on %s expired.", strings.TrimSpace(ref.timeSlot)))
	return nil
}

// releasedMessage announces the previous lock of a that the release step
// already dropped.
func releasedMessage(a *attempt) broadcast.Message {
	return broadcast.Message{
		Type:             broadcast.CancelSlot,
		StaffID:          a.staffID,
		SelectedDate:     a.date,
		AppointmentID:    a.prev.appointmentID,
		CanceledTimeSlot: a.prev.timeSlot,
		Reason:           domain.ReasonUserInitiated,
	}
}

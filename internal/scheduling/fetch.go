package scheduling

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BruksfildServices01/slot-coordinator/internal/audit"
	"github.com/BruksfildServices01/slot-coordinator/internal/backend"
	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
	"github.com/BruksfildServices01/slot-coordinator/internal/timezone"
)

// SelectStaff switches the page to another staff member. The tab follows
// that staff member's push group from here on.
func (o *Orchestrator) SelectStaff(ctx context.Context, staffID string) error {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return httperr.ErrBusiness(httperr.CodeMissingStaff)
	}

	o.mu.Lock()
	if o.schedulingInProgress {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeSchedulingInProgress)
	}
	if o.session.StaffID == staffID {
		o.mu.Unlock()
		return nil
	}

	o.session.StaffID = staffID
	o.resetSessionLocked()
	o.table.Reset(o.session.SelectedDate)
	hasDate := o.session.SelectedDate != ""
	if hasDate {
		o.session.State = domain.StateFetching
	}
	o.mu.Unlock()

	o.logger.Info("staff selected", zap.String("staff_id", staffID))

	if o.listener != nil {
		o.listener.Watch(ctx, staffID)
	}
	if hasDate {
		o.fetch.Trigger()
	}
	return nil
}

// SelectDate shows another day. Picking the day already shown refreshes it.
func (o *Orchestrator) SelectDate(ctx context.Context, date string) error {
	date = strings.TrimSpace(date)
	if _, err := timezone.ParseDate(date); err != nil {
		return httperr.ErrBusiness(httperr.CodeInvalidDate)
	}

	o.mu.Lock()
	if o.schedulingInProgress {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeSchedulingInProgress)
	}
	if err := domain.CanSelect(o.session.State); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.session.StaffID == "" {
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeMissingStaff)
	}

	if o.session.SelectedDate != date {
		o.session.SelectedDate = date
		o.resetSessionLocked()
		o.table.Reset(date)
		o.session.State = domain.StateFetching
	}
	o.mu.Unlock()

	o.fetch.Trigger()
	return nil
}

// Refresh schedules a debounced refetch of the shown day.
func (o *Orchestrator) Refresh() {
	o.fetch.Trigger()
}

func (o *Orchestrator) runScheduledFetch() {
	if !o.enterBackground() {
		return
	}
	defer o.background.Done()

	ctx, cancel := o.detached()
	defer cancel()

	if err := o.FetchSlots(ctx); err != nil {
		o.logger.Warn("scheduled slot fetch failed", zap.Error(err))
	}
}

// FetchSlots loads the shown day from the backend and reconciles it with
// the session. It is skipped while a lock or conflict step is running so
// a stale answer cannot overwrite an optimistic update.
func (o *Orchestrator) FetchSlots(ctx context.Context) error {
	o.mu.Lock()
	if o.schedulingInProgress {
		o.mu.Unlock()
		o.logger.Debug("slot fetch skipped while scheduling is in progress")
		return nil
	}
	token := o.cfg.Token
	staffID := o.session.StaffID
	date := o.session.SelectedDate
	switch {
	case token == "":
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeMissingToken)
	case staffID == "":
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeMissingStaff)
	case date == "":
		o.mu.Unlock()
		return httperr.ErrBusiness(httperr.CodeMissingDate)
	}
	o.loading = true
	o.mu.Unlock()

	av, err := o.backend.GetAvailableTimeSlots(ctx, staffID, date, token)

	o.mu.Lock()
	o.loading = false
	stale := o.session.StaffID != staffID || o.session.SelectedDate != date || o.schedulingInProgress
	if stale {
		o.mu.Unlock()
		o.logger.Debug("discarding stale slot fetch",
			zap.String("staff_id", staffID), zap.String("date", date))
		return nil
	}
	if err != nil {
		if o.session.State == domain.StateFetching {
			o.session.State = o.restingStateLocked()
		}
		o.mu.Unlock()
		o.feed.Error(backend.UserMessage(err, "Could not load the available time slots."))
		return err
	}

	o.table.ReplaceAll(date, av.AvailableSlots)
	adopted := o.reconcileLocked(av)
	if o.session.State != domain.StateConflict {
		o.session.State = o.restingStateLocked()
	}
	o.syncTimerLocked()
	o.mu.Unlock()

	if adopted != nil {
		o.record(audit.ActionAdoptedLock, *adopted, nil)
		o.logger.Info("adopted existing lock",
			zap.String("appointment_id", adopted.appointmentID),
			zap.String("time_slot", adopted.timeSlot))
	}

	o.refreshCount(ctx, staffID, date, token)
	return nil
}

// reconcileLocked lines the fetched table up with the session. A lock the
// server reports for this user is adopted when the session holds none.
func (o *Orchestrator) reconcileLocked(av *domain.Availability) *attemptRef {
	s := &o.session

	if s.AppointmentID != "" {
		o.table.MarkLockedByMe(s.SelectedDate, s.SelectedTimeSlot)
		o.table.ClearOwnership(s.SelectedTimeSlot)
		return nil
	}

	if av.LockedAppointmentID == "" || s.IsConfirmed {
		o.table.ClearOwnership("")
		return nil
	}

	var owned string
	for _, slot := range o.table.Snapshot() {
		if slot.LockedByCurrentUser {
			owned = slot.TimeSlot
			break
		}
	}
	if owned == "" || av.LockedUntil == nil || !av.LockedUntil.After(o.cfg.Now()) {
		o.table.ClearOwnership("")
		return nil
	}

	until := *av.LockedUntil
	s.AppointmentID = av.LockedAppointmentID
	s.LockedUntil = &until
	s.SelectedTimeSlot = owned
	s.ExpirationHandled = false
	o.table.ClearOwnership(owned)

	return &attemptRef{
		staffID:       s.StaffID,
		date:          s.SelectedDate,
		timeSlot:      owned,
		appointmentID: s.AppointmentID,
	}
}

// RefreshSlotCounts loads free-slot counts for calendar days.
func (o *Orchestrator) RefreshSlotCounts(ctx context.Context, dates []string) (map[string]*int, error) {
	o.mu.Lock()
	token := o.cfg.Token
	staffID := o.session.StaffID
	o.mu.Unlock()

	if staffID == "" {
		return nil, httperr.ErrBusiness(httperr.CodeMissingStaff)
	}
	if o.counts == nil {
		return map[string]*int{}, nil
	}
	for _, d := range dates {
		if _, err := timezone.ParseDate(d); err != nil {
			return nil, httperr.ErrBusiness(httperr.CodeInvalidDate)
		}
	}
	out := make(map[string]*int, len(dates))
	for _, d := range dates {
		o.refreshCount(ctx, staffID, d, token)
		out[d], _ = o.counts.Get(d)
	}
	return out, nil
}

func (o *Orchestrator) refreshCount(ctx context.Context, staffID, date, token string) {
	if o.counts == nil {
		return
	}
	if _, err := o.counts.Refresh(ctx, staffID, date, token); err != nil {
		o.logger.Warn("slot count refresh failed",
			zap.String("staff_id", staffID), zap.String("date", date), zap.Error(err))
	}
}

package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BruksfildServices01/slot-coordinator/internal/audit"
	"github.com/BruksfildServices01/slot-coordinator/internal/backend"
	"github.com/BruksfildServices01/slot-coordinator/internal/broadcast"
	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
)

func conflictErr(op string) error {
	return &backend.ConflictError{
		Op:                    op,
		ExistingAppointmentID: "appt-x",
		Message:               "You already have a locked appointment",
	}
}

func withExistingLock(h *harness) {
	until := time.Now().Add(2 * time.Minute)
	h.backend.set(func(f *fakeBackend) {
		f.appointments["appt-x"] = &domain.Appointment{
			ID:              "appt-x",
			UserID:          testUser,
			StaffID:         "staff-2",
			AppointmentDate: time.Date(2030, 1, 14, 10, 0, 0, 0, time.UTC),
			Status:          "Locked",
			LockedUntil:     &until,
		}
		f.staff["staff-2"] = &domain.Staff{ID: "staff-2", FullName: "Dr. Ana Ribeiro"}
	})
}

func TestValidateConflictOpensDialogAndOverride(t *testing.T) {
	h := newHarness(t)
	withExistingLock(h)
	openDay(t, h.o)
	ctx := context.Background()

	h.backend.set(func(f *fakeBackend) { f.validateErrs = []error{conflictErr("validate")} })

	err := h.o.SelectSlot(ctx, slotNine)
	require.ErrorIs(t, err, ErrConflictPending)
	assert.Zero(t, h.backend.Count("schedule"))
	assert.Zero(t, h.backend.Count("cancel_previous"))

	info := h.o.Conflict()
	require.NotNil(t, info)
	assert.Equal(t, TriggerValidate, info.Trigger)
	assert.Equal(t, "appt-x", info.ExistingAppointmentID)
	assert.Equal(t, "staff-2", info.StaffID)
	assert.Equal(t, "Dr. Ana Ribeiro", info.StaffName)
	assert.Equal(t, "2030-01-14", info.Date)
	assert.Equal(t, slotTen, info.TimeSlot)
	assert.Equal(t, slotNine, info.IntendedTimeSlot)

	st := h.o.Snapshot()
	assert.Equal(t, domain.StateConflict, st.Session.State)
	assert.False(t, st.SchedulingInProgress)
	assert.Equal(t, slotNine, st.Session.IntendedTimeSlot)

	require.NoError(t, h.o.ResolveConflict(ctx, true))

	assert.Equal(t, []string{
		"validate",
		"appointment:appt-x",
		"staff:staff-2",
		"cancel:appt-x",
		"schedule",
	}, lockCalls(h.backend))

	st = h.o.Snapshot()
	assert.Equal(t, domain.StateLocked, st.Session.State)
	assert.Equal(t, "appt-1", st.Session.AppointmentID)
	assert.Equal(t, slotNine, st.Session.SelectedTimeSlot)
	assert.Nil(t, st.Conflict)

	require.Eventually(t, func() bool {
		types := h.observer.Types()
		return len(types) == 2
	}, waitFor, tick)
	assert.Equal(t, []broadcast.Type{broadcast.CancelSlot, broadcast.LockSlot}, h.observer.Types())

	cancel, _ := h.observer.Last(broadcast.CancelSlot)
	assert.Equal(t, "staff-2", cancel.StaffID)
	assert.Equal(t, "2030-01-14", cancel.SelectedDate)
	assert.Equal(t, slotTen, cancel.CanceledTimeSlot)
	assert.Equal(t, "appt-x", cancel.AppointmentID)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(
			[]string{audit.ActionConflict, audit.ActionConflictOverride, audit.ActionSlotLocked},
			h.sink.Actions(),
		)
	}, waitFor, tick)
}

func TestAcquireConflictUsesSameFlow(t *testing.T) {
	h := newHarness(t)
	withExistingLock(h)
	openDay(t, h.o)
	ctx := context.Background()

	h.backend.set(func(f *fakeBackend) { f.scheduleErrs = []error{conflictErr("schedule")} })

	require.ErrorIs(t, h.o.SelectSlot(ctx, slotNine), ErrConflictPending)

	info := h.o.Conflict()
	require.NotNil(t, info)
	assert.Equal(t, TriggerAcquire, info.Trigger)
	assert.Equal(t, "Dr. Ana Ribeiro", info.StaffName)

	require.NoError(t, h.o.ResolveConflict(ctx, true))
	assert.Equal(t, 2, h.backend.Count("schedule"))
	assert.Equal(t, domain.StateLocked, h.o.Snapshot().Session.State)
}

func TestKeepExistingClearsNewSelection(t *testing.T) {
	h := newHarness(t)
	withExistingLock(h)
	openDay(t, h.o)
	ctx := context.Background()

	h.backend.set(func(f *fakeBackend) { f.validateErrs = []error{conflictErr("validate")} })
	require.ErrorIs(t, h.o.SelectSlot(ctx, slotNine), ErrConflictPending)

	require.NoError(t, h.o.ResolveConflict(ctx, false))

	st := h.o.Snapshot()
	assert.Equal(t, domain.StateViewing, st.Session.State)
	assert.Empty(t, st.Session.SelectedTimeSlot)
	assert.Empty(t, st.Session.IntendedTimeSlot)
	assert.Nil(t, st.Conflict)
	assert.Zero(t, h.backend.Count("cancel:"))
	assert.Zero(t, h.backend.Count("schedule"))

	err := h.o.ResolveConflict(ctx, false)
	assert.True(t, httperr.IsBusiness(err, httperr.CodeNoConflict))
}

func TestOverrideReleaseFailureNeverAcquires(t *testing.T) {
	h := newHarness(t)
	withExistingLock(h)
	openDay(t, h.o)
	ctx := context.Background()

	h.backend.set(func(f *fakeBackend) {
		f.validateErrs = []error{conflictErr("validate")}
		f.cancelErr = errors.New("cannot cancel")
	})
	require.ErrorIs(t, h.o.SelectSlot(ctx, slotNine), ErrConflictPending)
	require.Error(t, h.o.ResolveConflict(ctx, true))

	assert.Equal(t, 1, h.backend.Count("cancel:appt-x"))
	assert.Zero(t, h.backend.Count("schedule"))

	st := h.o.Snapshot()
	assert.Equal(t, domain.StateViewing, st.Session.State)
	assert.Empty(t, st.Session.SelectedTimeSlot)
	assert.Empty(t, st.Session.AppointmentID)
	assert.Nil(t, st.Conflict)
	assert.False(t, st.SchedulingInProgress)

	_, sent := h.observer.Last(broadcast.CancelSlot)
	assert.False(t, sent)
}

func TestConflictWithoutLookupStillResolvable(t *testing.T) {
	h := newHarness(t)
	openDay(t, h.o)
	ctx := context.Background()

	h.backend.set(func(f *fakeBackend) { f.validateErrs = []error{conflictErr("validate")} })
	require.ErrorIs(t, h.o.SelectSlot(ctx, slotNine), ErrConflictPending)

	info := h.o.Conflict()
	require.NotNil(t, info)
	assert.Empty(t, info.StaffName)
	assert.Empty(t, info.Date)

	require.NoError(t, h.o.ResolveConflict(ctx, true))
	assert.Equal(t, domain.StateLocked, h.o.Snapshot().Session.State)
}

func TestConflictWithoutExistingIDAborts(t *testing.T) {
	h := newHarness(t)
	openDay(t, h.o)

	h.backend.set(func(f *fakeBackend) {
		f.validateErrs = []error{&backend.ConflictError{Op: "validate", Message: "You already have a locked appointment"}}
	})
	err := h.o.SelectSlot(context.Background(), slotNine)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflictPending)
	assert.Nil(t, h.o.Conflict())
	assert.Equal(t, domain.StateViewing, h.o.Snapshot().Session.State)
}

func TestNewSelectionAbandonsConflict(t *testing.T) {
	h := newHarness(t)
	withExistingLock(h)
	openDay(t, h.o)
	ctx := context.Background()

	h.backend.set(func(f *fakeBackend) { f.validateErrs = []error{conflictErr("validate")} })
	require.ErrorIs(t, h.o.SelectSlot(ctx, slotNine), ErrConflictPending)

	require.NoError(t, h.o.SelectSlot(ctx, slotTen))
	assert.Nil(t, h.o.Conflict())
	assert.Equal(t, slotTen, h.o.Snapshot().Session.SelectedTimeSlot)
}

func TestOverrideOfOwnLockThenAcquireFailureClearsSelection(t *testing.T) {
	h := newHarness(t)
	openDay(t, h.o)
	ctx := context.Background()

	require.NoError(t, h.o.SelectSlot(ctx, slotTen))
	require.Equal(t, "appt-1", h.o.Snapshot().Session.AppointmentID)

	until := time.Now().Add(2 * time.Minute)
	h.backend.set(func(f *fakeBackend) {
		f.appointments["appt-1"] = &domain.Appointment{
			ID:              "appt-1",
			UserID:          testUser,
			StaffID:         testStaff,
			AppointmentDate: time.Date(2030, 1, 15, 10, 0, 0, 0, time.UTC),
			Status:          "Locked",
			LockedUntil:     &until,
		}
		f.validateErrs = []error{&backend.ConflictError{Op: "validate", ExistingAppointmentID: "appt-1"}}
	})
	require.ErrorIs(t, h.o.SelectSlot(ctx, slotNine), ErrConflictPending)

	h.backend.set(func(f *fakeBackend) {
		f.scheduleErrs = []error{&backend.APIError{Op: "schedule", Status: 500, Code: 500}}
	})
	require.Error(t, h.o.ResolveConflict(ctx, true))

	assert.Equal(t, 1, h.backend.Count("cancel:appt-1"))
	assert.Zero(t, h.backend.Count("cancel_previous"))

	st := h.o.Snapshot()
	assert.Equal(t, domain.StateViewing, st.Session.State)
	assert.Empty(t, st.Session.AppointmentID)
	assert.Empty(t, st.Session.SelectedTimeSlot)
	assert.Empty(t, st.Session.IntendedTimeSlot)
	assert.Nil(t, st.Session.LockedUntil)
	assert.Nil(t, st.RemainingSeconds)
	assert.Nil(t, st.Conflict)
	assert.Empty(t, ownedSlots(h.o))

	ten := slotState(t, h.o, slotTen)
	assert.True(t, ten.IsAvailable)
	assert.False(t, ten.LockedByCurrentUser)

	err := h.o.Confirm(ctx, "Check-up")
	assert.True(t, httperr.IsBusiness(err, httperr.CodeNoActiveLock))
}

func TestOverrideReleaseFailureDropsHeldLock(t *testing.T) {
	h := newHarness(t)
	withExistingLock(h)
	openDay(t, h.o)
	ctx := context.Background()

	require.NoError(t, h.o.SelectSlot(ctx, slotTen))
	fetches := h.backend.Count("slots")

	h.backend.set(func(f *fakeBackend) {
		f.validateErrs = []error{conflictErr("validate")}
		f.cancelErr = errors.New("cannot cancel")
	})
	require.ErrorIs(t, h.o.SelectSlot(ctx, slotNine), ErrConflictPending)
	require.Error(t, h.o.ResolveConflict(ctx, true))

	assert.Equal(t, 1, h.backend.Count("cancel:appt-x"))
	assert.Equal(t, 1, h.backend.Count("schedule"))

	st := h.o.Snapshot()
	assert.Empty(t, st.Session.AppointmentID)
	assert.Empty(t, st.Session.SelectedTimeSlot)
	assert.Nil(t, st.RemainingSeconds)
	assert.Empty(t, ownedSlots(h.o))

	// The day is fetched again so a lock the backend still holds is adopted.
	require.Eventually(t, func() bool {
		return h.backend.Count("slots") > fetches
	}, waitFor, tick)
}

func TestOverrideReleasesPreviousLockBeforeAcquire(t *testing.T) {
	h := newHarness(t)
	withExistingLock(h)
	openDay(t, h.o)
	ctx := context.Background()

	require.NoError(t, h.o.SelectSlot(ctx, slotTen))

	h.backend.set(func(f *fakeBackend) { f.validateErrs = []error{conflictErr("validate")} })
	require.ErrorIs(t, h.o.SelectSlot(ctx, slotNine), ErrConflictPending)
	require.NoError(t, h.o.ResolveConflict(ctx, true))

	calls := lockCalls(h.backend)
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, []string{"cancel:appt-x", "cancel_previous", "schedule"}, calls[len(calls)-3:])

	st := h.o.Snapshot()
	assert.Equal(t, domain.StateLocked, st.Session.State)
	assert.Equal(t, "appt-2", st.Session.AppointmentID)
	assert.Equal(t, slotNine, st.Session.SelectedTimeSlot)
	assert.Equal(t, []string{slotNine}, ownedSlots(h.o))
	assert.True(t, slotState(t, h.o, slotTen).IsAvailable)
}

package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
)

const day = "2026-10-20"

func newTable(t *testing.T) *Table {
	t.Helper()
	c, err := domain.NewCatalog(domain.DefaultWorkingHours())
	require.NoError(t, err)
	return NewTable(c)
}

func TestReplaceAllFailsClosed(t *testing.T) {
	tbl := newTable(t)

	tbl.ReplaceAll(day, []domain.TimeSlot{
		{TimeSlot: "09:00 - 09:30", IsAvailable: true},
		{TimeSlot: "10:00-10:30", IsLocked: true},
		{TimeSlot: "12:00 - 12:30", IsAvailable: true},
	})

	snap := tbl.Snapshot()
	require.Len(t, snap, 16)

	seen := map[string]int{}
	for _, s := range snap {
		seen[s.TimeSlot]++
	}
	for label, n := range seen {
		assert.Equal(t, 1, n, label)
	}

	s, ok := tbl.Get("09:00 - 09:30")
	require.True(t, ok)
	assert.True(t, s.IsAvailable)

	s, _ = tbl.Get("10:00 - 10:30")
	assert.True(t, s.IsLocked)
	assert.False(t, s.IsAvailable)

	s, _ = tbl.Get("14:00 - 14:30")
	assert.Equal(t, domain.TimeSlot{TimeSlot: "14:00 - 14:30"}, s)

	assert.Equal(t, 1, tbl.freeCount())
	assert.Equal(t, day, tbl.date)
}

func TestReplaceAllEmptyPayload(t *testing.T) {
	tbl := newTable(t)
	tbl.ReplaceAll(day, nil)

	for _, s := range tbl.Snapshot() {
		assert.False(t, s.IsAvailable, s.TimeSlot)
		assert.False(t, s.IsLocked, s.TimeSlot)
	}
}

func TestPatchIgnoresOtherDates(t *testing.T) {
	tbl := newTable(t)
	tbl.ReplaceAll(day, []domain.TimeSlot{{TimeSlot: "09:00 - 09:30", IsAvailable: true}})

	assert.False(t, tbl.MarkLockedByOther("2026-10-21", "09:00 - 09:30"))
	assert.False(t, tbl.MarkLockedByOther(day, "07:00 - 07:30"))

	s, _ := tbl.Get("09:00 - 09:30")
	assert.True(t, s.IsAvailable)
}

func TestPatchKeepsInvariants(t *testing.T) {
	tbl := newTable(t)
	tbl.ReplaceAll(day, []domain.TimeSlot{{TimeSlot: "09:00 - 09:30", IsAvailable: true}})

	require.True(t, tbl.MarkLockedByMe(day, "09:00-09:30"))
	s, _ := tbl.Get("09:00 - 09:30")
	assert.Equal(t, domain.TimeSlot{TimeSlot: "09:00 - 09:30", IsLocked: true, LockedByCurrentUser: true}, s)
	assert.Equal(t, 1, tbl.ownedCount())

	require.True(t, tbl.MarkConfirmed(day, "09:00 - 09:30"))
	s, _ = tbl.Get("09:00 - 09:30")
	assert.Equal(t, domain.TimeSlot{TimeSlot: "09:00 - 09:30", IsLocked: true, IsConfirmed: true}, s)

	assert.False(t, tbl.MarkAvailable(day, "09:00 - 09:30"))
	assert.False(t, tbl.MarkLockedByOther(day, "09:00 - 09:30"))
	s, _ = tbl.Get("09:00 - 09:30")
	assert.True(t, s.IsConfirmed)
}

func TestClearOwnershipKeepsOne(t *testing.T) {
	tbl := newTable(t)
	tbl.ReplaceAll(day, []domain.TimeSlot{
		{TimeSlot: "09:00 - 09:30", LockedByCurrentUser: true},
		{TimeSlot: "10:00 - 10:30", LockedByCurrentUser: true},
	})
	require.Equal(t, 2, tbl.ownedCount())

	tbl.ClearOwnership("10:00 - 10:30")

	assert.Equal(t, 1, tbl.ownedCount())
	s, _ := tbl.Get("10:00 - 10:30")
	assert.True(t, s.LockedByCurrentUser)
	s, _ = tbl.Get("09:00 - 09:30")
	assert.True(t, s.IsLocked)
	assert.False(t, s.LockedByCurrentUser)
}

package slots

import (
	"sync"

	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
)

// Update is a partial TimeSlot; nil fields are left untouched.
type Update struct {
	IsAvailable         *bool
	IsLocked            *bool
	LockedByCurrentUser *bool
	IsConfirmed         *bool
}

func flag(v bool) *bool { return &v }

var (
	lockedByMe    = Update{IsAvailable: flag(false), IsLocked: flag(true), LockedByCurrentUser: flag(true), IsConfirmed: flag(false)}
	lockedByOther = Update{IsAvailable: flag(false), IsLocked: flag(true), LockedByCurrentUser: flag(false)}
	available     = Update{IsAvailable: flag(true), IsLocked: flag(false), LockedByCurrentUser: flag(false), IsConfirmed: flag(false)}
	confirmed     = Update{IsAvailable: flag(false), IsLocked: flag(true), LockedByCurrentUser: flag(false), IsConfirmed: flag(true)}
)

// Table holds the display state of every catalog slot for one date.
type Table struct {
	catalog *domain.Catalog

	mu    sync.RWMutex
	date  string
	slots []domain.TimeSlot
	index map[string]int
}

func NewTable(catalog *domain.Catalog) *Table {
	t := &Table{catalog: catalog}
	t.Reset("")
	return t
}

// Reset shows date with every slot unavailable until a fetch lands.
func (t *Table) Reset(date string) {
	t.ReplaceAll(date, nil)
}

// ReplaceAll rebuilds the table from the server list. Slots the server did not
// report are unavailable.
func (t *Table) ReplaceAll(date string, serverSlots []domain.TimeSlot) {
	reported := make(map[string]domain.TimeSlot, len(serverSlots))
	for _, s := range serverSlots {
		if label, ok := t.catalog.Canonical(s.TimeSlot); ok {
			s.TimeSlot = label
			reported[label] = sanitize(s)
		}
	}

	labels := t.catalog.Labels()
	next := make([]domain.TimeSlot, 0, len(labels))
	index := make(map[string]int, len(labels))
	for i, label := range labels {
		s, ok := reported[label]
		if !ok {
			s = domain.Unavailable(label)
		}
		next = append(next, s)
		index[label] = i
	}

	t.mu.Lock()
	t.date = date
	t.slots = next
	t.index = index
	t.mu.Unlock()
}

// Patch merges u into one slot. It is a no-op when date is not the displayed
// date or the slot is not in the catalog.
func (t *Table) Patch(date, timeSlot string, u Update) bool {
	label, ok := t.catalog.Canonical(timeSlot)
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if date == "" || date != t.date {
		return false
	}

	i := t.index[label]
	s := t.slots[i]
	if u.IsAvailable != nil {
		s.IsAvailable = *u.IsAvailable
	}
	if u.IsLocked != nil {
		s.IsLocked = *u.IsLocked
	}
	if u.LockedByCurrentUser != nil {
		s.LockedByCurrentUser = *u.LockedByCurrentUser
	}
	if u.IsConfirmed != nil {
		s.IsConfirmed = *u.IsConfirmed
	}
	t.slots[i] = sanitize(s)
	return true
}

func (t *Table) MarkLockedByMe(date, timeSlot string) bool {
	return t.Patch(date, timeSlot, lockedByMe)
}

// MarkLockedByOther never downgrades a confirmed slot.
func (t *Table) MarkLockedByOther(date, timeSlot string) bool {
	if s, ok := t.Get(timeSlot); ok && s.IsConfirmed {
		return false
	}
	return t.Patch(date, timeSlot, lockedByOther)
}

// MarkAvailable releases a slot. Confirmed slots stay confirmed.
func (t *Table) MarkAvailable(date, timeSlot string) bool {
	if s, ok := t.Get(timeSlot); ok && s.IsConfirmed {
		return false
	}
	return t.Patch(date, timeSlot, available)
}

func (t *Table) MarkConfirmed(date, timeSlot string) bool {
	return t.Patch(date, timeSlot, confirmed)
}

// ClearOwnership drops lockedByCurrentUser from every slot except keep.
func (t *Table) ClearOwnership(keep string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.slots {
		if s.LockedByCurrentUser && !domain.SameSlot(s.TimeSlot, keep) {
			s.LockedByCurrentUser = false
			t.slots[i] = s
		}
	}
}

func (t *Table) Get(timeSlot string) (domain.TimeSlot, bool) {
	label, ok := t.catalog.Canonical(timeSlot)
	if !ok {
		return domain.TimeSlot{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slots[t.index[label]], true
}

func (t *Table) Snapshot() []domain.TimeSlot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.TimeSlot, len(t.slots))
	copy(out, t.slots)
	return out
}

// ownedCount is the number of slots held by this session.
func (t *Table) ownedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, s := range t.slots {
		if s.LockedByCurrentUser {
			n++
		}
	}
	return n
}

// freeCount is the number of slots anyone may lock.
func (t *Table) freeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, s := range t.slots {
		if s.IsAvailable {
			n++
		}
	}
	return n
}

// sanitize restores the flag invariants after a merge.
func sanitize(s domain.TimeSlot) domain.TimeSlot {
	if s.IsConfirmed {
		s.IsLocked = true
		s.IsAvailable = false
	}
	if s.LockedByCurrentUser {
		s.IsLocked = true
	}
	if s.IsLocked {
		s.IsAvailable = false
	}
	return s
}

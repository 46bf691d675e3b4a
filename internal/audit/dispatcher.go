package audit

import (
	"sync"

	"go.uber.org/zap"
)

const (
	ActionSlotLocked       = "slot_locked"
	ActionLockReleased     = "lock_released"
	ActionLockExpired      = "lock_expired"
	ActionLockFailed       = "lock_failed"
	ActionConflict         = "lock_conflict"
	ActionConflictOverride = "conflict_override"
	ActionConflictKept     = "conflict_kept"
	ActionConfirmed        = "appointment_confirmed"
	ActionConfirmFailed    = "confirm_failed"
	ActionAdoptedLock      = "lock_adopted"
)

type Event struct {
	SessionID     string
	UserID        string
	StaffID       string
	Action        string
	AppointmentID string
	Date          string
	TimeSlot      string
	Metadata      any
}

type Dispatcher struct {
	sink   Sink
	logger *zap.Logger
	queue  chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(sink Sink, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		queue:  make(chan Event, 100),
		done:   make(chan struct{}),
	}

	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.queue {
		if err := d.sink.Log(ev); err != nil {
			d.logger.Warn("audit error", zap.String("action", ev.Action), zap.Error(err))
		}
	}
}

// Dispatch never blocks; events are dropped when the queue is full or the
// dispatcher is closed.
func (d *Dispatcher) Dispatch(ev Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("audit dispatcher closed, dropping event", zap.String("action", ev.Action))
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("audit queue full, dropping event", zap.String("action", ev.Action))
	}
}

// Close flushes queued events.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

package countdown

import (
	"math"
	"sync"
	"time"
)

// Input is everything the countdown depends on. The timer only runs while a
// lock is held and no confirmation is underway.
type Input struct {
	LockedUntil   *time.Time
	AppointmentID string
	TimeSlot      string
	Confirming    bool
	Confirmed     bool
}

func (in Input) relevant() bool {
	return in.LockedUntil != nil &&
		in.AppointmentID != "" &&
		in.TimeSlot != "" &&
		!in.Confirming &&
		!in.Confirmed
}

func (in Input) key() string {
	return in.AppointmentID + "|" + in.LockedUntil.UTC().Format(time.RFC3339Nano)
}

type Option func(*Timer)

func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// WithTick registers a callback receiving the seconds left after every tick.
func WithTick(fn func(remaining int)) Option {
	return func(t *Timer) { t.onTick = fn }
}

// Timer turns a lock expiry into a seconds-remaining countdown and calls the
// expiration callback once per lock.
type Timer struct {
	interval time.Duration
	now      func() time.Time
	onTick   func(int)
	onExpire func()

	mu        sync.Mutex
	key       string
	handled   bool
	remaining *int
	stop      chan struct{}
}

func New(onExpire func(), opts ...Option) *Timer {
	t := &Timer{
		interval: time.Second,
		now:      time.Now,
		onExpire: onExpire,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Sync re-evaluates the inputs. Calling it again with the same lock is a no-op.
func (t *Timer) Sync(in Input) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !in.relevant() {
		t.stopLocked()
		t.key = ""
		return
	}

	key := in.key()
	if key == t.key && (t.stop != nil || t.handled) {
		return
	}

	t.stopLocked()
	t.key = key
	t.handled = false

	diff := in.LockedUntil.Sub(t.now())
	if diff <= 0 {
		t.fireLocked()
		return
	}

	secs := ceilSeconds(diff)
	t.remaining = &secs

	stop := make(chan struct{})
	t.stop = stop
	go t.run(stop, key, *in.LockedUntil)
}

// Remaining is nil when no countdown is running.
func (t *Timer) Remaining() *int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.remaining == nil {
		return nil
	}
	v := *t.remaining
	return &v
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.key = ""
}

func (t *Timer) run(stop <-chan struct{}, key string, until time.Time) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		diff := until.Sub(t.now())

		t.mu.Lock()
		if t.key != key || t.stop != stop {
			t.mu.Unlock()
			return
		}
		if diff <= 0 {
			t.stopLocked()
			t.fireLocked()
			t.mu.Unlock()
			return
		}
		secs := ceilSeconds(diff)
		t.remaining = &secs
		onTick := t.onTick
		t.mu.Unlock()

		if onTick != nil {
			onTick(secs)
		}
	}
}

// fireLocked runs the expiration callback on its own goroutine so it may call
// back into Sync.
func (t *Timer) fireLocked() {
	t.remaining = nil
	if t.handled {
		return
	}
	t.handled = true
	if t.onExpire != nil {
		go t.onExpire()
	}
}

func (t *Timer) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.remaining = nil
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

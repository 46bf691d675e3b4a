package scheduling

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BruksfildServices01/slot-coordinator/internal/audit"
	"github.com/BruksfildServices01/slot-coordinator/internal/broadcast"
	"github.com/BruksfildServices01/slot-coordinator/internal/countdown"
	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
	"github.com/BruksfildServices01/slot-coordinator/internal/metrics"
	"github.com/BruksfildServices01/slot-coordinator/internal/notify"
	"github.com/BruksfildServices01/slot-coordinator/internal/realtime"
	"github.com/BruksfildServices01/slot-coordinator/internal/slotcount"
	"github.com/BruksfildServices01/slot-coordinator/internal/slots"
)

// ErrConflictPending is returned when a lock attempt opened the conflict
// dialog; the caller has to resolve it with ResolveConflict.
var ErrConflictPending = errors.New("existing lock must be resolved first")

// Broadcaster is the cross-tab channel of this user.
type Broadcaster interface {
	Open(ctx context.Context, h broadcast.Handler) error
	Send(ctx context.Context, msg broadcast.Message) error
	Close() error
}

// Watcher follows push events of one staff member.
type Watcher interface {
	Watch(ctx context.Context, staffID string)
	Run(ctx context.Context, sink realtime.Sink)
}

// Navigator leaves the scheduling page after a confirmation.
type Navigator interface {
	Redirect(path string)
}

type Config struct {
	Token     string
	UserID    string
	SessionID string
	Timezone  string

	Preferences domain.Preferences

	FetchDebounce  time.Duration
	TickInterval   time.Duration
	RedirectDelay  time.Duration
	RedirectPath   string
	BackendTimeout time.Duration

	Now func() time.Time
}

type Deps struct {
	Backend   domain.Backend
	Catalog   *domain.Catalog
	Bridge    Broadcaster
	Listener  Watcher
	Counts    *slotcount.Cache
	Audit     *audit.Dispatcher
	Metrics   *metrics.SchedulingMetrics
	Feed      *notify.Feed
	Navigator Navigator
	Logger    *zap.Logger
}

// Orchestrator drives one tab's scheduling session. All state changes from
// the page, sibling tabs and push events are serialised on mu.
type Orchestrator struct {
	cfg       Config
	backend   domain.Backend
	catalog   *domain.Catalog
	table     *slots.Table
	timer     *countdown.Timer
	bridge    Broadcaster
	listener  Watcher
	counts    *slotcount.Cache
	audit     *audit.Dispatcher
	metrics   *metrics.SchedulingMetrics
	feed      *notify.Feed
	navigator Navigator
	logger    *zap.Logger
	fetch     *debouncer

	mu                   sync.Mutex
	session              Session
	loading              bool
	schedulingInProgress bool
	conflict             *ConflictInfo
	pending              *attempt
	draftReason          string
	redirectTo           string
	redirect             *time.Timer

	runCancel context.CancelFunc
	closed    bool
	// background counts timer callbacks in flight; Close waits for them.
	background sync.WaitGroup
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Backend == nil {
		return nil, errors.New("scheduling: backend is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("scheduling: slot catalog is required")
	}
	if cfg.SessionID == "" {
		return nil, errors.New("scheduling: session id is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FetchDebounce <= 0 {
		cfg.FetchDebounce = 50 * time.Millisecond
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 10 * time.Second
	}
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = "/appointments"
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	feed := deps.Feed
	if feed == nil {
		feed = notify.NewFeed(0)
	}

	o := &Orchestrator{
		cfg:       cfg,
		backend:   deps.Backend,
		catalog:   deps.Catalog,
		table:     slots.NewTable(deps.Catalog),
		bridge:    deps.Bridge,
		listener:  deps.Listener,
		counts:    deps.Counts,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		feed:      feed,
		navigator: deps.Navigator,
		logger: logger.With(
			zap.String("component", "scheduling"),
			zap.String("session_id", cfg.SessionID),
		),
		session: Session{SessionID: cfg.SessionID, State: domain.StateIdle},
	}

	o.timer = countdown.New(o.onCountdownExpired,
		countdown.WithInterval(cfg.TickInterval),
		countdown.WithClock(cfg.Now),
	)
	o.fetch = newDebouncer(cfg.FetchDebounce, o.runScheduledFetch)
	return o, nil
}

// Start opens the tab channel and the push pump. Failures of either are
// logged; the page keeps working on fetched state alone.
func (o *Orchestrator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.runCancel = cancel
	o.mu.Unlock()

	if o.bridge != nil {
		if err := o.bridge.Open(ctx, o); err != nil {
			o.logger.Warn("tab channel unavailable", zap.Error(err))
		}
	}
	if o.listener != nil {
		go o.listener.Run(runCtx, o)
	}
}

// Close stops timers and background pumps and waits for timer callbacks
// that already started. Calling it again is a no-op.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.redirect != nil {
		o.redirect.Stop()
	}
	cancel := o.runCancel
	o.mu.Unlock()

	o.fetch.Stop()
	o.timer.Stop()
	if cancel != nil {
		cancel()
	}
	o.background.Wait()

	if o.bridge != nil {
		if err := o.bridge.Close(); err != nil {
			o.logger.Warn("close tab channel", zap.Error(err))
		}
	}
}

// Snapshot is the live view of the session for handlers and timers.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := State{
		Session:              o.session.clone(),
		Loading:              o.loading,
		SchedulingInProgress: o.schedulingInProgress,
		Slots:                o.table.Snapshot(),
		RemainingSeconds:     o.timer.Remaining(),
		RedirectTo:           o.redirectTo,
	}
	if o.conflict != nil {
		c := *o.conflict
		st.Conflict = &c
	}
	if o.counts != nil {
		st.SlotCounts = o.counts.Snapshot()
	}
	return st
}

// Conflict returns the pending conflict, if any.
func (o *Orchestrator) Conflict() *ConflictInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conflict == nil {
		return nil
	}
	c := *o.conflict
	return &c
}

// SetReason stores the free-text reason sent with lock requests.
func (o *Orchestrator) SetReason(reason string) {
	o.mu.Lock()
	o.draftReason = reason
	o.mu.Unlock()
}

// UserID is the acting user the orchestrator was built for.
func (o *Orchestrator) UserID() string {
	return o.cfg.UserID
}

// ======================================================
// internal helpers (callers hold mu unless stated)
// ======================================================

// resetSessionLocked drops every lock and selection field but keeps the
// staff member and date being viewed.
func (o *Orchestrator) resetSessionLocked() {
	s := &o.session
	s.SelectedTimeSlot = ""
	s.IntendedTimeSlot = ""
	s.AppointmentID = ""
	s.LockedUntil = nil
	s.IsConfirming = false
	s.IsConfirmed = false
	s.ExpirationHandled = false
	s.State = o.restingStateLocked()

	o.conflict = nil
	o.pending = nil
	o.table.ClearOwnership("")
	o.syncTimerLocked()
}

// restingStateLocked is the state to fall back to when nothing is in flight.
func (o *Orchestrator) restingStateLocked() domain.State {
	switch {
	case o.session.IsConfirmed:
		return domain.StateConfirmed
	case o.session.AppointmentID != "":
		return domain.StateLocked
	case o.session.SelectedDate != "":
		return domain.StateViewing
	}
	return domain.StateIdle
}

func (o *Orchestrator) syncTimerLocked() {
	s := o.session
	o.timer.Sync(countdown.Input{
		LockedUntil:   s.LockedUntil,
		AppointmentID: s.AppointmentID,
		TimeSlot:      s.SelectedTimeSlot,
		Confirming:    s.IsConfirming,
		Confirmed:     s.IsConfirmed,
	})
}

func (o *Orchestrator) message(t broadcast.Type) broadcast.Message {
	return broadcast.Message{
		Type:         t,
		StaffID:      o.session.StaffID,
		SelectedDate: o.session.SelectedDate,
	}
}

// publish sends to sibling tabs. Call without mu held.
func (o *Orchestrator) publish(ctx context.Context, msgs ...broadcast.Message) {
	if o.bridge == nil {
		return
	}
	for _, msg := range msgs {
		if err := o.bridge.Send(ctx, msg); err != nil {
			o.logger.Warn("tab broadcast failed", zap.String("type", string(msg.Type)), zap.Error(err))
		}
	}
}

func (o *Orchestrator) record(action string, a attemptRef, metadata any) {
	o.audit.Dispatch(audit.Event{
		SessionID:     o.cfg.SessionID,
		UserID:        o.cfg.UserID,
		StaffID:       a.staffID,
		Action:        action,
		AppointmentID: a.appointmentID,
		Date:          a.date,
		TimeSlot:      a.timeSlot,
		Metadata:      metadata,
	})
}

func (o *Orchestrator) invalidateCount(ctx context.Context, staffID, date string) {
	if o.counts == nil || staffID == "" || date == "" {
		return
	}
	o.counts.Invalidate(ctx, staffID, date)
}

// detached returns a context for work that must not die with a request.
func (o *Orchestrator) detached() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.cfg.BackendTimeout)
}

// enterBackground admits a timer callback unless Close has begun.
func (o *Orchestrator) enterBackground() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.background.Add(1)
	return true
}

func (o *Orchestrator) onCountdownExpired() {
	if !o.enterBackground() {
		return
	}
	defer o.background.Done()

	ctx, cancel := o.detached()
	defer cancel()

	if err := o.HandleLockExpiration(ctx); err != nil {
		o.logger.Warn("lock expiration handling failed", zap.Error(err))
	}
}

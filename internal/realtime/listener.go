package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sink applies hub events to local state.
type Sink interface {
	HandleRemote(ctx context.Context, ev Event)
}

// Listener keeps the transport subscribed to the watched staff member's group
// and feeds its events to a Sink in arrival order.
type Listener struct {
	transport Transport
	logger    *zap.Logger

	mu    sync.Mutex
	group string
}

func NewListener(transport Transport, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		transport: transport,
		logger:    logger.With(zap.String("component", "realtime")),
	}
}

// Watch moves the subscription to staffID. Failures are logged; events for
// that staff member are then simply not delivered.
func (l *Listener) Watch(ctx context.Context, staffID string) {
	if l == nil || l.transport == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := ""
	if staffID != "" {
		next = GroupName(staffID)
	}
	if next == l.group {
		return
	}

	if l.group != "" {
		if err := l.transport.Leave(ctx, l.group); err != nil {
			l.logger.Warn("leave push group failed", zap.String("group", l.group), zap.Error(err))
		}
	}
	l.group = ""

	if next == "" {
		return
	}
	if err := l.transport.Join(ctx, next); err != nil {
		l.logger.Error("join push group failed", zap.String("group", next), zap.Error(err))
		return
	}
	l.group = next
	l.logger.Info("watching push group", zap.String("group", next))
}

// Group is the currently joined group, empty when none.
func (l *Listener) Group() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.group
}

// Run blocks until ctx is done or the transport stops delivering.
func (l *Listener) Run(ctx context.Context, sink Sink) {
	if l == nil || l.transport == nil {
		return
	}

	events := l.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				l.logger.Warn("push events stopped")
				return
			}
			l.deliver(ctx, sink, ev)
		}
	}
}

func (l *Listener) deliver(ctx context.Context, sink Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("push handler panicked", zap.Any("panic", r), zap.String("type", string(ev.Type)))
		}
	}()
	sink.HandleRemote(ctx, ev)
}

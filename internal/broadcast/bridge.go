package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler receives messages from sibling tabs, one at a time, in arrival order.
type Handler interface {
	HandleBroadcast(ctx context.Context, msg Message)
}

// Bridge mirrors this tab's transitions to the user's other tabs.
type Bridge struct {
	ch     Channel
	origin string
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	open   bool
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBridge(ch Channel, origin string, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		ch:     ch,
		origin: origin,
		logger: logger.With(zap.String("component", "broadcast")),
		now:    time.Now,
	}
}

// Open subscribes and starts delivering sibling messages to h.
func (b *Bridge) Open(ctx context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		return nil
	}

	inbox, err := b.ch.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe tab channel: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.open = true
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.pump(runCtx, inbox, h, b.done)
	return nil
}

// Send stamps the message with this tab's origin and publishes it.
func (b *Bridge) Send(ctx context.Context, msg Message) error {
	b.mu.Lock()
	open := b.open
	b.mu.Unlock()
	if !open {
		return ErrClosed
	}

	msg.Origin = b.origin
	msg.SentAt = b.now().UTC()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	if err := b.ch.Publish(ctx, payload); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil
	}
	b.open = false
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	err := b.ch.Close()
	<-done
	return err
}

func (b *Bridge) pump(ctx context.Context, inbox <-chan []byte, h Handler, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-inbox:
			if !ok {
				return
			}
			msg, err := decode(payload)
			if err != nil {
				b.logger.Warn("dropping malformed tab message", zap.Error(err))
				continue
			}
			if msg.Origin == b.origin {
				continue
			}
			b.deliver(ctx, h, msg)
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("tab message handler panicked", zap.Any("panic", r), zap.String("type", string(msg.Type)))
		}
	}()
	h.HandleBroadcast(ctx, msg)
}

func decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if !msg.Type.Valid() {
		return Message{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	return msg, nil
}

package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/go-redis/redis/v8"
)

var ErrClosed = errors.New("broadcast channel closed")

// Channel is a named publish/subscribe pipe shared by the tabs of one user.
// Subscribers also receive their own publishes.
type Channel interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) (<-chan []byte, error)
	Close() error
}

func ChannelName(userID string) string {
	return "coordinator:tabs:" + userID
}

// ======================================================
// REDIS
// ======================================================

type RedisChannel struct {
	client *redis.Client
	name   string

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
	done   chan struct{}
}

func NewRedisChannel(client *redis.Client, userID string) *RedisChannel {
	return &RedisChannel{
		client: client,
		name:   ChannelName(userID),
		done:   make(chan struct{}),
	}
}

func (c *RedisChannel) Publish(ctx context.Context, payload []byte) error {
	return c.client.Publish(ctx, c.name, payload).Err()
}

func (c *RedisChannel) Subscribe(ctx context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	ps := c.client.Subscribe(ctx, c.name)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	c.pubsub = ps

	out := make(chan []byte, 32)
	go func() {
		defer close(out)
		for m := range ps.Channel() {
			select {
			case out <- []byte(m.Payload):
			case <-c.done:
				return
			}
		}
	}()
	return out, nil
}

func (c *RedisChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.pubsub != nil {
		return c.pubsub.Close()
	}
	return nil
}

// ======================================================
// IN-PROCESS
// ======================================================

// MemoryHub fans payloads out to every channel opened with the same name.
type MemoryHub struct {
	mu   sync.Mutex
	subs map[string]map[*memoryChannel]*memorySub
}

type memorySub struct {
	ch   chan []byte
	done chan struct{}
	// sending counts publishes that picked this subscriber up; Close waits
	// for them before closing ch.
	sending sync.WaitGroup
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[*memoryChannel]*memorySub)}
}

func (h *MemoryHub) Channel(userID string) Channel {
	return &memoryChannel{hub: h, name: ChannelName(userID)}
}

type memoryChannel struct {
	hub  *MemoryHub
	name string
}

// Publish delivers outside the hub lock, so a slow tab only delays its own
// publisher.
func (c *memoryChannel) Publish(ctx context.Context, payload []byte) error {
	c.hub.mu.Lock()
	targets := make([]*memorySub, 0, len(c.hub.subs[c.name]))
	for _, sub := range c.hub.subs[c.name] {
		sub.sending.Add(1)
		targets = append(targets, sub)
	}
	c.hub.mu.Unlock()

	var err error
	for _, sub := range targets {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		select {
		case sub.ch <- cp:
		case <-sub.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		sub.sending.Done()
	}
	return err
}

func (c *memoryChannel) Subscribe(_ context.Context) (<-chan []byte, error) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()

	if _, ok := c.hub.subs[c.name][c]; ok {
		return nil, errors.New("already subscribed")
	}
	if c.hub.subs[c.name] == nil {
		c.hub.subs[c.name] = make(map[*memoryChannel]*memorySub)
	}
	sub := &memorySub{ch: make(chan []byte, 256), done: make(chan struct{})}
	c.hub.subs[c.name][c] = sub
	return sub.ch, nil
}

func (c *memoryChannel) Close() error {
	c.hub.mu.Lock()
	sub, ok := c.hub.subs[c.name][c]
	if ok {
		delete(c.hub.subs[c.name], c)
		close(sub.done)
	}
	c.hub.mu.Unlock()

	if ok {
		sub.sending.Wait()
		close(sub.ch)
	}
	return nil
}

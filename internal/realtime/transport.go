package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Transport delivers hub events for the groups it has joined.
type Transport interface {
	Join(ctx context.Context, group string) error
	Leave(ctx context.Context, group string) error
	Events() <-chan Event
	Close() error
}

var noDeadline time.Time

type control struct {
	Type  string `json:"type"`
	Group string `json:"group"`
}

// WSTransport speaks the hub's JSON frame protocol over a websocket.
type WSTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger
	events chan Event

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func DialWS(ctx context.Context, url, token string, logger *zap.Logger) (*WSTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial push hub: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial push hub: %w", err)
	}

	t := &WSTransport{
		conn:   conn,
		logger: logger.With(zap.String("component", "realtime")),
		events: make(chan Event, 64),
	}
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) Join(ctx context.Context, group string) error {
	return t.send(ctx, control{Type: "join", Group: group})
}

func (t *WSTransport) Leave(ctx context.Context, group string) error {
	return t.send(ctx, control{Type: "leave", Group: group})
}

func (t *WSTransport) Events() <-chan Event {
	return t.events
}

func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func (t *WSTransport) send(ctx context.Context, msg control) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		defer t.conn.SetWriteDeadline(noDeadline)
	}
	if err := t.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%s %s: %w", msg.Type, msg.Group, err)
	}
	return nil
}

func (t *WSTransport) readLoop() {
	defer close(t.events)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, websocket.ErrCloseSent) {
				t.logger.Warn("push hub connection lost", zap.Error(err))
			}
			return
		}

		ev, err := decodeFrame(data)
		if err != nil {
			t.logger.Debug("ignoring push frame", zap.Error(err))
			continue
		}
		t.events <- ev
	}
}

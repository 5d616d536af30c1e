package wsserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"convert_invoices/internal/domain"

	"github.com/gorilla/websocket"
)

// wsConn owns all writes to one connection. State pushes coalesce: only the
// newest state is sent, since each message carries the full state.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration

	mu     sync.Mutex
	latest *domain.ConversionState
	notify chan struct{}

	replies chan *serverMessage
}

func newConn(conn *websocket.Conn, writeTimeout, pingInterval time.Duration) *wsConn {
	return &wsConn{
		conn:         conn,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		notify:       make(chan struct{}, 1),
		replies:      make(chan *serverMessage, 8),
	}
}

// pushState never blocks; it is called from the session loop.
func (c *wsConn) pushState(s domain.ConversionState) {
	c.mu.Lock()
	c.latest = &s
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *wsConn) reply(ctx context.Context, msg *serverMessage) {
	select {
	case c.replies <- msg:
	case <-ctx.Done():
	}
}

func (c *wsConn) writeLoop(ctx context.Context) {
	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			return

		case <-c.notify:
			c.mu.Lock()
			s := c.latest
			c.latest = nil
			c.mu.Unlock()
			if s == nil {
				continue
			}
			if err := c.write(&serverMessage{Type: TypeState, State: s}); err != nil {
				return
			}

		case msg := <-c.replies:
			if err := c.write(msg); err != nil {
				return
			}

		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				slog.Warn("WS Ping error", slog.Any("error", err))
				return
			}
		}
	}
}

func (c *wsConn) write(msg *serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("WS Marshal failed", slog.Any("error", err))
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Warn("WS Write error", slog.Any("error", err))
		return err
	}
	return nil
}

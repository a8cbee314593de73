package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbarbosa/peticionador/internal/notify"
	"github.com/rbarbosa/peticionador/internal/retry"
)

// Client follows the event channel with automatic reconnection. The
// reconnect delay is fixed (the retry policy caps growth at its base), and
// a deliberate Close stops the loop for good.
type Client struct {
	url    string
	logger *slog.Logger
	policy retry.Policy

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewClient builds a client for the given ws:// URL.
func NewClient(url string, reconnectDelay time.Duration, logger *slog.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &Client{
		url:    url,
		logger: logger,
		// Base == Max means every reconnect waits the same fixed delay.
		policy: retry.Policy{Base: reconnectDelay, Max: reconnectDelay},
	}
}

// Run dials and delivers events to handle until Close is called or the
// context is cancelled. Unexpected disconnects reconnect after the fixed
// delay; malformed payloads are skipped without dropping the connection.
func (c *Client) Run(ctx context.Context, handle func(notify.Event)) error {
	attempt := 0
	for {
		if c.isClosed() {
			return nil
		}
		err := c.readOnce(ctx, handle)
		if err == nil || c.isClosed() || ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("websocket disconnected, reconnecting", "error", err, "delay", c.policy.Delay(attempt))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.policy.Delay(attempt)):
		}
		attempt++
	}
}

// Close shuts the channel down deliberately; Run will not reconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.conn.Close()
}

func (c *Client) readOnce(ctx context.Context, handle func(notify.Event)) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.setConn(conn)
	defer c.setConn(nil)
	defer conn.Close()

	// ReadMessage has no context hook; closing the connection on cancel is
	// what unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		var ev notify.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("malformed event payload", "error", err)
			continue
		}
		handle(ev)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

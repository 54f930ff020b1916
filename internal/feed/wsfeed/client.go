package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/slotrace/internal/feed"
)

const subscribeRequestID = 1

// Dialer opens WebSocket slot subscriptions.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewDialer creates a dialer.
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg.withDefaults(), logger: logger}
}

// Dial connects and sends the subscribe request. The returned stream is
// not bound to ctx after Dial returns; Next takes its own context.
func (d *Dialer) Dial(ctx context.Context) (feed.Stream, error) {
	c := &client{
		cfg:      d.cfg,
		logger:   d.logger,
		messages: make(chan timestampedMessage, d.cfg.BufferSize),
		done:     make(chan struct{}),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	req, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      subscribeRequestID,
		Method:  d.cfg.Method,
		Params:  d.cfg.Params,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("encode subscribe: %w", err)
	}
	if err := c.send(req); err != nil {
		c.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}
	return c, nil
}

// client is one WebSocket connection carrying a single subscription.
type client struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	messages chan timestampedMessage // Closed by readLoop
	done     chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	stale      bool
	closed     bool
	err        error // Terminal read error, set before messages is closed
}

func (c *client) connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		c.touch()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastPingAt = time.Now()
	c.mu.Unlock()
}

func (c *client) send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return feed.ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Next returns the slot of the next notification. Subscription
// confirmations are skipped; a rejected subscription ends the stream.
func (c *client) Next(ctx context.Context) (feed.Sighting, error) {
	for {
		var msg timestampedMessage
		var ok bool
		select {
		case <-ctx.Done():
			return feed.Sighting{}, ctx.Err()
		case msg, ok = <-c.messages:
		}
		if !ok {
			c.mu.RLock()
			err := c.err
			c.mu.RUnlock()
			return feed.Sighting{}, err
		}

		slot, isSlot, err := decodeMessage(msg.Data)
		if err != nil {
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) {
				return feed.Sighting{}, fmt.Errorf("subscribe rejected: %w", err)
			}
			return feed.Sighting{}, &feed.DecodeError{Err: err}
		}
		if !isSlot {
			continue
		}
		return feed.Sighting{Slot: slot, ReceivedAt: msg.ReceivedAt}, nil
	}
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		return c.conn.Close()
	}
	return nil
}

// readLoop reads messages from the WebSocket into the messages channel. On
// exit it records the terminal error and closes the channel.
func (c *client) readLoop() {
	var readErr error
	defer func() {
		c.mu.Lock()
		c.connected = false
		switch {
		case c.closed:
			c.err = feed.ErrAlreadyClosed
		case c.stale:
			c.err = feed.ErrStaleConnection
		case websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			c.err = io.EOF
		default:
			c.err = readErr
		}
		c.mu.Unlock()
		close(c.messages)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately
		if err != nil {
			readErr = err
			return
		}

		select {
		case c.messages <- timestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		}
	}
}

// heartbeatLoop pings the server and tears the connection down when
// neither side has pinged within PingTimeout.
func (c *client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.Lock()
			lastPing := c.lastPingAt
			stale := time.Since(lastPing) > c.cfg.PingTimeout
			if stale {
				c.stale = true
			}
			c.mu.Unlock()

			if stale {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				c.conn.Close()
				return
			}
		}
	}
}

// decodeMessage extracts a slot from a notification. isSlot is false for
// frames that carry no slot, such as the subscription confirmation.
func decodeMessage(data []byte) (slot uint64, isSlot bool, err error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, false, err
	}
	if msg.Error != nil {
		return 0, false, msg.Error
	}
	if msg.Params == nil {
		return 0, false, nil
	}

	res := msg.Params.Result
	switch {
	case res.Slot != nil:
		return *res.Slot, true, nil
	case res.Context != nil:
		return res.Context.Slot, true, nil
	default:
		return 0, false, fmt.Errorf("%s notification without slot", msg.Method)
	}
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

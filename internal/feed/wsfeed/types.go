package wsfeed

import (
	"encoding/json"
	"time"
)

// Config configures a WebSocket slot subscription.
type Config struct {
	URL               string        // ws:// or wss:// endpoint
	Token             string        // Sent as a bearer token when set
	Method            string        // Subscribe method (default slotSubscribe)
	Params            []any         // Subscribe params (default none)
	PingTimeout       time.Duration // Max time without ping/pong before the connection is stale
	HeartbeatInterval time.Duration // How often we send keepalive pings
	WriteTimeout      time.Duration // Write deadline for sends
	HandshakeTimeout  time.Duration
	BufferSize        int // Raw message buffer between reader and Next
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Method:            "slotSubscribe",
		PingTimeout:       60 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		BufferSize:        1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Method == "" {
		c.Method = d.Method
	}
	if c.Params == nil {
		c.Params = []any{}
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	return c
}

// timestampedMessage wraps raw message data with receive timestamp.
type timestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Request is a JSON-RPC request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Message is any JSON-RPC frame the server sends: a response to our
// request (ID set) or a subscription notification (Method set).
type Message struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Params *Notification   `json:"params,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Notification carries one subscription update.
type Notification struct {
	Subscription int64            `json:"subscription"`
	Result       SlotNotification `json:"result"`
}

// SlotNotification covers both slotSubscribe results ({"slot": N}) and
// context-wrapped results ({"context": {"slot": N}, "value": ...}).
type SlotNotification struct {
	Slot    *uint64 `json:"slot,omitempty"`
	Context *struct {
		Slot uint64 `json:"slot"`
	} `json:"context,omitempty"`
}

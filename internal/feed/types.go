package feed

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrConnectTimeout  = errors.New("connect timeout")
	ErrUnsupportedKind = errors.New("unsupported feed kind")
)

// Sighting is one slot reported by a stream, stamped with local receive time.
type Sighting struct {
	Slot       uint64
	ReceivedAt time.Time // Local timestamp taken as soon as the message was read
}

// Stream is a connected, non-restartable subscription.
type Stream interface {
	// Next blocks until the stream reports a slot. A *DecodeError means one
	// message was unreadable and the stream is still usable; any other error
	// ends the stream.
	Next(ctx context.Context) (Sighting, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// DecodeError reports a single message that could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode message: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Dialer establishes a Stream. Errors from Dial are setup failures.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// Recorder receives per-feed adapter telemetry.
type Recorder interface {
	ObservationReceived(feed string)
	DecodeError(feed string)
	QueueDropped(feed string)
}

type nopRecorder struct{}

func (nopRecorder) ObservationReceived(string) {}
func (nopRecorder) DecodeError(string)         {}
func (nopRecorder) QueueDropped(string)        {}

// NopRecorder returns a Recorder that discards everything.
func NopRecorder() Recorder {
	return nopRecorder{}
}

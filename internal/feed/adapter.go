package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rickgao/slotrace/internal/race"
)

// Adapter turns a Stream into a deduplicated, bounded queue of observations.
type Adapter struct {
	name     string
	dialer   Dialer
	filter   Filter
	queue    *Queue
	logger   *slog.Logger
	recorder Recorder

	mu     sync.Mutex
	stream Stream
	closed bool
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRecorder attaches adapter telemetry.
func WithRecorder(r Recorder) AdapterOption {
	return func(a *Adapter) {
		if r != nil {
			a.recorder = r
		}
	}
}

// NewAdapter creates an adapter. Nothing is dialed until Connect.
func NewAdapter(name string, dialer Dialer, filter Filter, queue *Queue, logger *slog.Logger, opts ...AdapterOption) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		name:     name,
		dialer:   dialer,
		filter:   filter,
		queue:    queue,
		logger:   logger.With("feed", name),
		recorder: NopRecorder(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the feed name.
func (a *Adapter) Name() string {
	return a.name
}

// Observations returns the consumer side of the adapter's queue. It is
// closed when Run returns.
func (a *Adapter) Observations() <-chan race.Observation {
	return a.queue.C()
}

// Connect dials the stream. A failure here is a setup failure.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrAlreadyClosed
	}
	a.mu.Unlock()

	stream, err := a.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", a.name, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		stream.Close()
		return ErrAlreadyClosed
	}
	a.stream = stream

	a.logger.Info("feed connected")
	return nil
}

// Run pumps the stream into the queue until the stream ends or ctx is
// cancelled, then closes the queue. Stream failures are returned; they are
// never retried. Cancellation returns nil.
func (a *Adapter) Run(ctx context.Context) error {
	defer a.queue.Close()

	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return ErrNotConnected
	}

	for {
		s, err := stream.Next(ctx)
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				a.recorder.DecodeError(a.name)
				a.logger.Debug("skipping undecodable message", "error", decodeErr.Err)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				a.logger.Warn("feed stream closed by remote")
				return nil
			}
			a.logger.Error("feed stream failed", "error", err)
			return fmt.Errorf("%s stream: %w", a.name, err)
		}

		if !a.filter.Allow(s.Slot) {
			continue
		}

		ok, dropped := a.queue.Push(ctx, race.Observation{Slot: s.Slot, ReceivedAt: s.ReceivedAt})
		if dropped {
			a.recorder.QueueDropped(a.name)
		}
		if !ok {
			return nil
		}
		a.recorder.ObservationReceived(a.name)
	}
}

// Close closes the underlying stream. Run returns shortly after.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.stream != nil {
		return a.stream.Close()
	}
	return nil
}

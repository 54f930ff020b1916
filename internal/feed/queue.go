package feed

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rickgao/slotrace/internal/race"
)

// OverflowPolicy controls what Push does when the queue is full.
type OverflowPolicy string

const (
	// OverflowBlock makes the producer wait for the consumer.
	OverflowBlock OverflowPolicy = "block"
	// OverflowDropOldest discards the oldest buffered observation.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
)

// ParseOverflowPolicy validates a policy name.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case OverflowBlock, OverflowDropOldest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Queue is a bounded single-producer FIFO of observations.
type Queue struct {
	ch      chan race.Observation
	policy  OverflowPolicy
	dropped atomic.Int64
	closed  atomic.Bool
}

// NewQueue creates a queue with the given capacity (minimum 1).
func NewQueue(capacity int, policy OverflowPolicy) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if policy == "" {
		policy = OverflowBlock
	}
	return &Queue{
		ch:     make(chan race.Observation, capacity),
		policy: policy,
	}
}

// Push adds an observation. It returns false if nothing was enqueued because
// ctx was cancelled while blocking. With OverflowDropOldest it never blocks;
// dropped reports whether an older entry was discarded to make room.
func (q *Queue) Push(ctx context.Context, obs race.Observation) (ok, dropped bool) {
	if q.policy == OverflowDropOldest {
		for {
			select {
			case q.ch <- obs:
				return true, dropped
			default:
			}
			select {
			case <-q.ch:
				q.dropped.Add(1)
				dropped = true
			default:
			}
		}
	}

	select {
	case q.ch <- obs:
		return true, false
	case <-ctx.Done():
		return false, false
	}
}

// C returns the consumer side of the queue.
func (q *Queue) C() <-chan race.Observation {
	return q.ch
}

// Close signals that no more observations will arrive. Only the producer
// may call it.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Len returns the number of buffered observations.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of observations discarded on overflow.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

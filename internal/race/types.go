package race

import "time"

// Feed identifies one of the two racing sources.
type Feed int

const (
	FeedA Feed = iota
	FeedB
)

// Other returns the opposing feed.
func (f Feed) Other() Feed {
	if f == FeedA {
		return FeedB
	}
	return FeedA
}

func (f Feed) String() string {
	if f == FeedA {
		return "A"
	}
	return "B"
}

// Observation is a single slot sighting from one feed.
type Observation struct {
	Slot       uint64
	ReceivedAt time.Time // Local timestamp when the adapter read the message
}

// Event is the outcome of one race. Produced once per slot seen on both feeds.
type Event struct {
	Slot        uint64
	Winner      Feed
	DelayMillis uint64 // Attributed to Winner.Other()
}

// Loser returns the feed that arrived second.
func (e Event) Loser() Feed {
	return e.Winner.Other()
}

// StopReason describes why the race loop exited.
type StopReason string

const (
	StopWindowElapsed StopReason = "window-elapsed"
	StopCancelled     StopReason = "cancelled"
	StopFeedsEnded    StopReason = "feeds-ended"
)

// Result is everything the loop knows after it stops.
type Result struct {
	Report   Report
	Table    TableStats
	Reason   StopReason
	Started  time.Time
	Elapsed  time.Duration
	SteadyAt time.Time    // Zero if no race completed
	Ended    [2]time.Time // Zero for a feed that was still streaming at stop
}

// FeedEnded reports whether the feed's queue closed before the loop stopped.
func (r Result) FeedEnded(f Feed) bool {
	return !r.Ended[f].IsZero()
}

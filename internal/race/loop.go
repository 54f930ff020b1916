package race

import (
	"context"
	"log/slog"
	"time"
)

// Recorder receives live race telemetry. Implementations must be safe to
// call from the loop goroutine while other goroutines read them.
type Recorder interface {
	RecordRace(winner, loser string, delayMillis uint64)
	SetTableStats(feed string, s FeedTableStats)
	SetFeedUp(feed string, up bool)
}

// Config controls a race loop.
type Config struct {
	Window           time.Duration // Measurement window; <= 0 runs until cancelled or both feeds end
	MaxSlotAge       uint64        // Table eviction horizon in slots; 0 disables
	ProgressInterval time.Duration // Live snapshot logging; 0 disables
	WarmupRaces      int           // Races after the first match excluded from the statistics
	Names            [2]string     // Display names for FeedA and FeedB
}

// DefaultConfig returns the configuration used by the slotrace command.
func DefaultConfig() Config {
	return Config{
		Window:           30 * time.Second,
		MaxSlotAge:       1000,
		ProgressInterval: 10 * time.Second,
		Names:            [2]string{"grpc", "shred"},
	}
}

// Option configures a Loop.
type Option func(*Loop)

// WithRecorder attaches a telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) {
		if r != nil {
			l.recorder = r
		}
	}
}

// Loop is the single consumer that races the two feeds.
type Loop struct {
	cfg      Config
	logger   *slog.Logger
	recorder Recorder

	table  *Table
	stats  *Aggregator
	warmup int // Races still to discard
}

// NewLoop creates a race loop with a fresh table and aggregator.
func NewLoop(cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		cfg:      cfg,
		logger:   logger,
		recorder: nopRecorder{},
		table:    NewTable(cfg.MaxSlotAge),
		stats:    NewAggregator(),
		warmup:   cfg.WarmupRaces,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run consumes both queues until the window elapses, ctx is cancelled, or
// both queues are closed. A closed queue means that feed ended; the loop
// keeps racing whatever the other feed delivers and records the end time.
// The returned Result is built after the loop stops mutating its state.
func (l *Loop) Run(ctx context.Context, a, b <-chan Observation) Result {
	res := Result{Started: time.Now()}
	inputs := [2]<-chan Observation{a, b}

	var deadline <-chan time.Time
	if l.cfg.Window > 0 {
		timer := time.NewTimer(l.cfg.Window)
		defer timer.Stop()
		deadline = timer.C
	}

	var progress <-chan time.Time
	if l.cfg.ProgressInterval > 0 {
		ticker := time.NewTicker(l.cfg.ProgressInterval)
		defer ticker.Stop()
		progress = ticker.C
	}

	for f := FeedA; f <= FeedB; f++ {
		l.recorder.SetFeedUp(l.cfg.Names[f], true)
	}

	l.logger.Info("race started",
		"feed_a", l.cfg.Names[FeedA],
		"feed_b", l.cfg.Names[FeedB],
		"window", l.cfg.Window,
	)

	reason := l.loop(ctx, &res, &inputs, deadline, progress)

	res.Reason = reason
	res.Elapsed = time.Since(res.Started)
	res.Report = l.stats.Snapshot()
	res.Table = l.table.Stats()
	l.publishTable(FeedA, FeedB)

	l.logger.Info("race stopped",
		"reason", reason,
		"elapsed", res.Elapsed,
		"races", res.Report.Total,
	)
	return res
}

func (l *Loop) loop(ctx context.Context, res *Result, inputs *[2]<-chan Observation, deadline, progress <-chan time.Time) StopReason {
	for {
		select {
		case obs, ok := <-inputs[FeedA]:
			if !ok {
				if l.endFeed(res, inputs, FeedA) {
					return StopFeedsEnded
				}
				continue
			}
			l.handle(res, FeedA, obs)
		case obs, ok := <-inputs[FeedB]:
			if !ok {
				if l.endFeed(res, inputs, FeedB) {
					return StopFeedsEnded
				}
				continue
			}
			l.handle(res, FeedB, obs)
		case <-deadline:
			return StopWindowElapsed
		case <-ctx.Done():
			return StopCancelled
		case <-progress:
			l.logProgress()
		}

		// A busy queue can keep select from picking the timer.
		if l.cfg.Window > 0 && time.Since(res.Started) >= l.cfg.Window {
			return StopWindowElapsed
		}
	}
}

func (l *Loop) handle(res *Result, feed Feed, obs Observation) {
	ev, ok := l.table.Record(feed, obs.Slot, obs.ReceivedAt)
	if !ok {
		l.publishTable(feed)
		return
	}
	l.publishTable(FeedA, FeedB)

	if res.SteadyAt.IsZero() {
		res.SteadyAt = time.Now()
		l.logger.Info("both feeds reported a common slot, steady state reached",
			"slot", ev.Slot,
			"warmup_races", l.cfg.WarmupRaces,
		)
	}

	winner, loser := l.cfg.Names[ev.Winner], l.cfg.Names[ev.Loser()]
	l.recorder.RecordRace(winner, loser, ev.DelayMillis)

	if l.warmup > 0 {
		l.warmup--
		l.logger.Debug("warmup race discarded", "slot", ev.Slot, "winner", winner, "delay_ms", ev.DelayMillis)
		return
	}

	l.stats.Observe(ev)
	l.logger.Debug("race",
		"slot", ev.Slot,
		"winner", winner,
		"loser", loser,
		"delay_ms", ev.DelayMillis,
	)
}

// endFeed marks a feed as ended and reports whether both feeds are now gone.
func (l *Loop) endFeed(res *Result, inputs *[2]<-chan Observation, feed Feed) bool {
	inputs[feed] = nil
	res.Ended[feed] = time.Now()
	l.recorder.SetFeedUp(l.cfg.Names[feed], false)

	l.logger.Warn("feed ended, slots seen only by the other feed can no longer match",
		"feed", l.cfg.Names[feed],
		"after", res.Ended[feed].Sub(res.Started),
	)
	return inputs[feed.Other()] == nil
}

func (l *Loop) logProgress() {
	r := l.stats.Snapshot()
	if !r.HasData() {
		l.logger.Info("race progress: no data yet",
			"pending_a", l.table.Pending(FeedA),
			"pending_b", l.table.Pending(FeedB),
		)
		return
	}
	a, b := r.Feeds[FeedA], r.Feeds[FeedB]
	l.logger.Info("race progress",
		"races", r.Total,
		l.cfg.Names[FeedA]+"_first_pct", round2(a.WinPercent),
		l.cfg.Names[FeedB]+"_first_pct", round2(b.WinPercent),
		l.cfg.Names[FeedA]+"_avg_lag_ms", round2(a.AvgDelayOverall),
		l.cfg.Names[FeedB]+"_avg_lag_ms", round2(b.AvgDelayOverall),
	)
}

func (l *Loop) publishTable(feeds ...Feed) {
	s := l.table.Stats()
	for _, f := range feeds {
		l.recorder.SetTableStats(l.cfg.Names[f], s.Feeds[f])
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

type nopRecorder struct{}

func (nopRecorder) RecordRace(string, string, uint64)    {}
func (nopRecorder) SetTableStats(string, FeedTableStats) {}
func (nopRecorder) SetFeedUp(string, bool)               {}

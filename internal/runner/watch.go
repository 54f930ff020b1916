package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rickgao/slotrace/internal/race"
	"github.com/rickgao/slotrace/internal/report"
)

// Tail connects a single feed and writes one line per deduplicated slot
// until the run duration elapses, ctx is cancelled, or the feed ends.
func (r *Runner) Tail(ctx context.Context, f race.Feed, out io.Writer) error {
	fc := r.cfg.Feeds.A
	if f == race.FeedB {
		fc = r.cfg.Feeds.B
	}

	a, err := r.buildAdapter(f, fc)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Run.Duration)
	defer cancel()

	if err := a.Connect(ctx); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- a.Run(ctx)
	}()

	for obs := range a.Observations() {
		fmt.Fprintf(out, "Slot: %d, Timestamp: %d\n", obs.Slot, obs.ReceivedAt.UnixMilli())
	}
	return <-runErr
}

// Watch connects both feeds and writes a latest-slot comparison every time
// either feed moves forward, until the run duration elapses, ctx is
// cancelled, or both feeds end.
func (r *Runner) Watch(ctx context.Context, out io.Writer) error {
	s, err := r.start(ctx)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer s.stop()

	timer := time.NewTimer(r.cfg.Run.Duration)
	defer timer.Stop()

	names := r.cfg.Names()
	inputs := [2]<-chan race.Observation{s.observations(race.FeedA), s.observations(race.FeedB)}
	var tracker race.Tracker

	update := func(f race.Feed, obs race.Observation, ok bool) {
		if !ok {
			inputs[f] = nil
			r.logger.Warn("feed ended", "feed", names[f])
			return
		}
		if tracker.Update(f, obs.Slot) {
			io.WriteString(out, report.Comparison(&tracker, names, obs.ReceivedAt))
		}
	}

	for inputs[race.FeedA] != nil || inputs[race.FeedB] != nil {
		select {
		case obs, ok := <-inputs[race.FeedA]:
			update(race.FeedA, obs, ok)
		case obs, ok := <-inputs[race.FeedB]:
			update(race.FeedB, obs, ok)
		case <-timer.C:
			r.logger.Info("watch window ended", "duration", r.cfg.Run.Duration)
			return nil
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

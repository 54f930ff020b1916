package race

import (
	"context"
	"sync"
	"testing"
	"time"
)

func feedOf(obs ...Observation) chan Observation {
	ch := make(chan Observation, len(obs))
	for _, o := range obs {
		ch <- o
	}
	return ch
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Window = 5 * time.Second
	cfg.ProgressInterval = 0
	return cfg
}

func TestLoop_EndToEnd(t *testing.T) {
	a := feedOf(
		Observation{Slot: 100, ReceivedAt: ms(1000)},
		Observation{Slot: 101, ReceivedAt: ms(1100)},
	)
	b := feedOf(
		Observation{Slot: 100, ReceivedAt: ms(950)},
		Observation{Slot: 101, ReceivedAt: ms(1150)},
	)
	close(a)
	close(b)

	res := NewLoop(testConfig(), nil).Run(context.Background(), a, b)

	if res.Reason != StopFeedsEnded {
		t.Errorf("Reason = %q, want %q", res.Reason, StopFeedsEnded)
	}
	r := res.Report
	if r.Total != 2 {
		t.Fatalf("Total = %d, want 2", r.Total)
	}
	for f := FeedA; f <= FeedB; f++ {
		fr := r.Feeds[f]
		if fr.First != 1 {
			t.Errorf("feed %v First = %d, want 1", f, fr.First)
		}
		if fr.WinPercent != 50 {
			t.Errorf("feed %v WinPercent = %v, want 50", f, fr.WinPercent)
		}
		if fr.AvgDelayWhenLosing != 50 {
			t.Errorf("feed %v AvgDelayWhenLosing = %v, want 50", f, fr.AvgDelayWhenLosing)
		}
		if fr.AvgDelayOverall != 25 {
			t.Errorf("feed %v AvgDelayOverall = %v, want 25", f, fr.AvgDelayOverall)
		}
	}
	if res.SteadyAt.IsZero() {
		t.Error("SteadyAt not set after a race")
	}
	if !res.FeedEnded(FeedA) || !res.FeedEnded(FeedB) {
		t.Error("expected both feeds marked ended")
	}
}

func TestLoop_OnlyOneFeedEmits(t *testing.T) {
	a := feedOf(
		Observation{Slot: 1, ReceivedAt: ms(10)},
		Observation{Slot: 2, ReceivedAt: ms(20)},
		Observation{Slot: 3, ReceivedAt: ms(30)},
	)
	b := make(chan Observation)
	close(a)
	close(b)

	res := NewLoop(testConfig(), nil).Run(context.Background(), a, b)

	if res.Report.HasData() {
		t.Errorf("HasData() = true, report %+v", res.Report)
	}
	if res.Table.Feeds[FeedA].Pending != 3 {
		t.Errorf("Pending(FeedA) = %d, want 3", res.Table.Feeds[FeedA].Pending)
	}
	if !res.SteadyAt.IsZero() {
		t.Error("SteadyAt set without any race")
	}
}

func TestLoop_WindowElapsed(t *testing.T) {
	cfg := testConfig()
	cfg.Window = 50 * time.Millisecond

	a := make(chan Observation)
	b := make(chan Observation)

	start := time.Now()
	res := NewLoop(cfg, nil).Run(context.Background(), a, b)

	if res.Reason != StopWindowElapsed {
		t.Errorf("Reason = %q, want %q", res.Reason, StopWindowElapsed)
	}
	if time.Since(start) < cfg.Window {
		t.Errorf("loop returned after %v, before the %v window", time.Since(start), cfg.Window)
	}
}

func TestLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := make(chan Observation)
	b := make(chan Observation)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := NewLoop(testConfig(), nil).Run(ctx, a, b)
	if res.Reason != StopCancelled {
		t.Errorf("Reason = %q, want %q", res.Reason, StopCancelled)
	}
}

func TestLoop_OneFeedEndsOtherContinues(t *testing.T) {
	cfg := testConfig()
	cfg.Window = 200 * time.Millisecond

	a := feedOf(Observation{Slot: 1, ReceivedAt: ms(100)})
	close(a)
	b := make(chan Observation)

	done := make(chan Result, 1)
	go func() {
		done <- NewLoop(cfg, nil).Run(context.Background(), a, b)
	}()

	b <- Observation{Slot: 1, ReceivedAt: ms(130)}
	b <- Observation{Slot: 2, ReceivedAt: ms(500)}

	res := <-done
	if res.Reason != StopWindowElapsed {
		t.Errorf("Reason = %q, want %q", res.Reason, StopWindowElapsed)
	}
	if !res.FeedEnded(FeedA) {
		t.Error("FeedA not marked ended")
	}
	if res.FeedEnded(FeedB) {
		t.Error("FeedB marked ended while still open")
	}
	if res.Report.Total != 1 || res.Report.Feeds[FeedA].First != 1 {
		t.Errorf("report = %+v, want one race won by A", res.Report)
	}
	if res.Table.Feeds[FeedB].Pending != 1 {
		t.Errorf("Pending(FeedB) = %d, want 1", res.Table.Feeds[FeedB].Pending)
	}
}

func TestLoop_WarmupRacesExcluded(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupRaces = 1

	// Feed a slot at a time so the first race is deterministic.
	a := make(chan Observation)
	b := make(chan Observation)
	done := make(chan Result, 1)
	go func() {
		done <- NewLoop(cfg, nil).Run(context.Background(), a, b)
	}()

	a <- Observation{Slot: 1, ReceivedAt: ms(0)}
	b <- Observation{Slot: 1, ReceivedAt: ms(500)}
	a <- Observation{Slot: 2, ReceivedAt: ms(1000)}
	b <- Observation{Slot: 2, ReceivedAt: ms(990)}
	close(a)
	close(b)

	res := <-done
	if res.Report.Total != 1 {
		t.Fatalf("Total = %d, want 1", res.Report.Total)
	}
	if res.Report.Feeds[FeedB].First != 1 || res.Report.Feeds[FeedA].AvgDelayWhenLosing != 10 {
		t.Errorf("report = %+v, want only the slot 2 race", res.Report)
	}
}

type fakeRecorder struct {
	mu      sync.Mutex
	races   int
	delays  map[string]uint64
	up      map[string]bool
	pending map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		delays:  make(map[string]uint64),
		up:      make(map[string]bool),
		pending: make(map[string]int),
	}
}

func (r *fakeRecorder) RecordRace(winner, loser string, delay uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.races++
	r.delays[loser] += delay
}

func (r *fakeRecorder) SetTableStats(feed string, s FeedTableStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[feed] = s.Pending
}

func (r *fakeRecorder) SetFeedUp(feed string, up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.up[feed] = up
}

func TestLoop_Recorder(t *testing.T) {
	rec := newFakeRecorder()
	cfg := testConfig()
	cfg.Names = [2]string{"alpha", "beta"}

	a := feedOf(
		Observation{Slot: 1, ReceivedAt: ms(100)},
		Observation{Slot: 2, ReceivedAt: ms(200)},
	)
	b := feedOf(Observation{Slot: 1, ReceivedAt: ms(175)})
	close(a)
	close(b)

	NewLoop(cfg, nil, WithRecorder(rec)).Run(context.Background(), a, b)

	if rec.races != 1 {
		t.Errorf("races = %d, want 1", rec.races)
	}
	if rec.delays["beta"] != 75 {
		t.Errorf("beta delay = %d, want 75", rec.delays["beta"])
	}
	if rec.up["alpha"] || rec.up["beta"] {
		t.Errorf("feeds still up after both ended: %v", rec.up)
	}
	if rec.pending["alpha"] != 1 {
		t.Errorf("alpha pending = %d, want 1", rec.pending["alpha"])
	}
}

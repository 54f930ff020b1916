package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/slotrace/internal/config"
	"github.com/rickgao/slotrace/internal/feed"
	"github.com/rickgao/slotrace/internal/metrics"
	"github.com/rickgao/slotrace/internal/race"
)

// chanStream delivers whatever the test puts on ch and reports io.EOF once
// ch is closed.
type chanStream struct {
	ch     chan feed.Sighting
	mu     sync.Mutex
	closed bool
}

func newChanStream(sightings ...feed.Sighting) *chanStream {
	s := &chanStream{ch: make(chan feed.Sighting, len(sightings))}
	for _, v := range sightings {
		s.ch <- v
	}
	close(s.ch)
	return s
}

func (s *chanStream) Next(ctx context.Context) (feed.Sighting, error) {
	select {
	case v, ok := <-s.ch:
		if !ok {
			return feed.Sighting{}, io.EOF
		}
		return v, nil
	case <-ctx.Done():
		return feed.Sighting{}, ctx.Err()
	}
}

func (s *chanStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *chanStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDialer struct {
	stream feed.Stream
	err    error
}

func (d fakeDialer) Dial(context.Context) (feed.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func at(ms int64) time.Time {
	return time.UnixMilli(1_700_000_000_000 + ms)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Run.Duration = 5 * time.Second
	cfg.Run.ProgressInterval = -1
	return cfg
}

func TestRace_BothFeeds(t *testing.T) {
	a := newChanStream(
		feed.Sighting{Slot: 1, ReceivedAt: at(0)},
		feed.Sighting{Slot: 2, ReceivedAt: at(20)},
	)
	b := newChanStream(
		feed.Sighting{Slot: 1, ReceivedAt: at(15)},
		feed.Sighting{Slot: 2, ReceivedAt: at(5)},
	)
	m := metrics.New()

	r := New(testConfig(), nil, WithDialers(fakeDialer{stream: a}, fakeDialer{stream: b}), WithTelemetry(m))
	res, err := r.Race(context.Background())
	if err != nil {
		t.Fatalf("Race failed: %v", err)
	}

	if res.Reason != race.StopFeedsEnded {
		t.Errorf("Reason = %s, want %s", res.Reason, race.StopFeedsEnded)
	}
	if res.Report.Total != 2 {
		t.Fatalf("Total = %d, want 2", res.Report.Total)
	}
	for f := race.FeedA; f <= race.FeedB; f++ {
		fr := res.Report.Feeds[f]
		if fr.First != 1 || fr.AvgDelayWhenLosing != 15 {
			t.Errorf("%s report = %+v, want 1 first and 15ms when losing", f, fr)
		}
		if !res.FeedEnded(f) {
			t.Errorf("%s not marked as ended", f)
		}
	}

	if !a.isClosed() || !b.isClosed() {
		t.Error("streams should be closed after the race")
	}
	if got := m.Health().Matched; got != 2 {
		t.Errorf("metrics matched = %d, want 2", got)
	}
}

func TestRace_ConnectFailureClosesOtherFeed(t *testing.T) {
	good := newChanStream()
	dialErr := errors.New("connection refused")

	r := New(testConfig(), nil, WithDialers(fakeDialer{stream: good}, fakeDialer{err: dialErr}))
	_, err := r.Race(context.Background())
	if !errors.Is(err, dialErr) {
		t.Fatalf("Race error = %v, want %v", err, dialErr)
	}
	if !good.isClosed() {
		t.Error("the feed that connected should be closed after setup fails")
	}
}

func TestRace_UnsupportedKind(t *testing.T) {
	cfg := testConfig()
	cfg.Feeds.B.Kind = "smoke-signal"

	_, err := New(cfg, nil).Race(context.Background())
	if !errors.Is(err, feed.ErrUnsupportedKind) {
		t.Errorf("Race error = %v, want %v", err, feed.ErrUnsupportedKind)
	}
}

func TestRaceConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Race.MaxSlotAge = -1
	cfg.Race.WarmupRaces = 4
	cfg.Feeds.A.Name = "yellowstone"

	rc := New(cfg, nil).RaceConfig()
	if rc.MaxSlotAge != 0 {
		t.Errorf("MaxSlotAge = %d, want 0 for negative config", rc.MaxSlotAge)
	}
	if rc.ProgressInterval != 0 {
		t.Errorf("ProgressInterval = %v, want 0 for negative config", rc.ProgressInterval)
	}
	if rc.WarmupRaces != 4 || rc.Window != 5*time.Second {
		t.Errorf("RaceConfig() = %+v", rc)
	}
	if rc.Names != [2]string{"yellowstone", "shred"} {
		t.Errorf("Names = %v", rc.Names)
	}

	cfg.Race.MaxSlotAge = 250
	if got := New(cfg, nil).RaceConfig().MaxSlotAge; got != 250 {
		t.Errorf("MaxSlotAge = %d, want 250", got)
	}
}

func TestDialerFor(t *testing.T) {
	tests := []struct {
		kind string
		url  string
		want string
	}{
		{config.KindGeyser, "https://geyser.example.com", "*grpcfeed.GeyserDialer"},
		{config.KindShredstream, "http://127.0.0.1:9999", "*grpcfeed.ShredDialer"},
		{config.KindWebsocket, "wss://rpc.example.com", "*wsfeed.Dialer"},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			d, err := DialerFor(config.FeedConfig{Name: "x", Kind: tt.kind, URL: tt.url}, time.Second, logger)
			if err != nil {
				t.Fatalf("DialerFor failed: %v", err)
			}
			if got := fmt.Sprintf("%T", d); got != tt.want {
				t.Errorf("DialerFor(%s) = %s, want %s", tt.kind, got, tt.want)
			}
		})
	}
}

func TestBuildAdapter_BadPolicy(t *testing.T) {
	fc := config.Default().Feeds.A
	fc.Overflow = "drop-newest"

	if _, err := BuildAdapter(fc, fakeDialer{}, nil, feed.NopRecorder()); err == nil {
		t.Error("expected error for unknown overflow policy")
	}

	fc = config.Default().Feeds.A
	fc.Dedup = "bloom"
	if _, err := BuildAdapter(fc, fakeDialer{}, nil, feed.NopRecorder()); err == nil {
		t.Error("expected error for unknown dedup policy")
	}
}

func TestTail(t *testing.T) {
	b := newChanStream(
		feed.Sighting{Slot: 5, ReceivedAt: at(1)},
		feed.Sighting{Slot: 5, ReceivedAt: at(2)},
		feed.Sighting{Slot: 7, ReceivedAt: at(3)},
		feed.Sighting{Slot: 6, ReceivedAt: at(4)},
	)

	var out bytes.Buffer
	r := New(testConfig(), nil, WithDialers(nil, fakeDialer{stream: b}))
	if err := r.Tail(context.Background(), race.FeedB, &out); err != nil {
		t.Fatalf("Tail failed: %v", err)
	}

	// Feed B defaults to the set policy: repeats dropped, late slots kept.
	want := "Slot: 5, Timestamp: 1700000000001\n" +
		"Slot: 7, Timestamp: 1700000000003\n" +
		"Slot: 6, Timestamp: 1700000000004\n"
	if out.String() != want {
		t.Errorf("Tail output:\n%s\nwant:\n%s", out.String(), want)
	}
	if !b.isClosed() {
		t.Error("stream should be closed after Tail")
	}
}

func TestWatch(t *testing.T) {
	a := newChanStream(feed.Sighting{Slot: 10, ReceivedAt: at(0)})
	b := newChanStream(feed.Sighting{Slot: 12, ReceivedAt: at(1)})

	var out bytes.Buffer
	r := New(testConfig(), nil, WithDialers(fakeDialer{stream: a}, fakeDialer{stream: b}))
	if err := r.Watch(context.Background(), &out); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if !strings.Contains(out.String(), "shred ahead of grpc by 2 slot(s)") {
		t.Errorf("Watch output missing final comparison:\n%s", out.String())
	}
}

func TestWatch_Cancelled(t *testing.T) {
	// Streams that never end.
	a := &chanStream{ch: make(chan feed.Sighting)}
	b := &chanStream{ch: make(chan feed.Sighting)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := New(testConfig(), nil, WithDialers(fakeDialer{stream: a}, fakeDialer{stream: b}))
	if err := r.Watch(ctx, io.Discard); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if !a.isClosed() || !b.isClosed() {
		t.Error("streams should be closed after Watch returns")
	}
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rickgao/slotrace/internal/race"
)

const namespace = "slotrace"

// Metrics records feed and race telemetry on a dedicated registry. It
// satisfies both feed.Recorder and race.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	observations *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	queueDropped *prometheus.CounterVec
	races        *prometheus.CounterVec
	lossDelay    *prometheus.CounterVec
	feedUp       *prometheus.GaugeVec
	pending      *prometheus.GaugeVec
	unmatched    *prometheus.GaugeVec

	// Health state
	mu      sync.RWMutex
	started time.Time
	feeds   map[string]*feedHealth
	order   []string
	matched uint64
}

type feedHealth struct {
	up      bool
	seen    bool // SetFeedUp was called at least once
	lastObs time.Time
	obs     uint64
}

// New creates the metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		started:  time.Now(),
		feeds:    make(map[string]*feedHealth),

		observations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Slot observations pushed to the race queue",
		}, []string{"feed"}),
		decodeErrors: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Feed messages skipped because they could not be decoded",
		}, []string{"feed"}),
		queueDropped: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Observations discarded by the drop-oldest overflow policy",
		}, []string{"feed"}),
		races: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "races_total",
			Help:      "Slots seen by both feeds, by the feed that saw them first",
		}, []string{"winner"}),
		lossDelay: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loss_delay_ms_total",
			Help:      "Cumulative milliseconds a feed trailed the winner",
		}, []string{"feed"}),
		feedUp: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_up",
			Help:      "1 while the feed is delivering, 0 once it ended",
		}, []string{"feed"}),
		pending: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_slots",
			Help:      "Slots seen by this feed only, waiting for the other",
		}, []string{"feed"}),
		unmatched: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmatched_slots",
			Help:      "Slots evicted by age without the other feed reporting them",
		}, []string{"feed"}),
	}
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterFeeds exports zero-valued series for the given feeds so they show
// up before the first event.
func (m *Metrics) RegisterFeeds(names ...string) {
	for _, name := range names {
		m.observations.WithLabelValues(name)
		m.decodeErrors.WithLabelValues(name)
		m.queueDropped.WithLabelValues(name)
		m.races.WithLabelValues(name)
		m.lossDelay.WithLabelValues(name)
		m.feedUp.WithLabelValues(name).Set(0)
		m.pending.WithLabelValues(name).Set(0)
		m.unmatched.WithLabelValues(name).Set(0)
		m.feed(name)
	}
}

// ObservationReceived implements feed.Recorder.
func (m *Metrics) ObservationReceived(feed string) {
	m.observations.WithLabelValues(feed).Inc()

	m.mu.Lock()
	h := m.feedLocked(feed)
	h.obs++
	h.lastObs = time.Now()
	m.mu.Unlock()
}

// DecodeError implements feed.Recorder.
func (m *Metrics) DecodeError(feed string) {
	m.decodeErrors.WithLabelValues(feed).Inc()
}

// QueueDropped implements feed.Recorder.
func (m *Metrics) QueueDropped(feed string) {
	m.queueDropped.WithLabelValues(feed).Inc()
}

// RecordRace implements race.Recorder.
func (m *Metrics) RecordRace(winner, loser string, delayMillis uint64) {
	m.races.WithLabelValues(winner).Inc()
	m.lossDelay.WithLabelValues(loser).Add(float64(delayMillis))

	m.mu.Lock()
	m.matched++
	m.mu.Unlock()
}

// SetTableStats implements race.Recorder.
func (m *Metrics) SetTableStats(feed string, s race.FeedTableStats) {
	m.pending.WithLabelValues(feed).Set(float64(s.Pending))
	m.unmatched.WithLabelValues(feed).Set(float64(s.Unmatched))
}

// SetFeedUp implements race.Recorder.
func (m *Metrics) SetFeedUp(feed string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.feedUp.WithLabelValues(feed).Set(v)

	m.mu.Lock()
	h := m.feedLocked(feed)
	h.up = up
	h.seen = true
	m.mu.Unlock()
}

func (m *Metrics) feed(name string) *feedHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feedLocked(name)
}

func (m *Metrics) feedLocked(name string) *feedHealth {
	h, ok := m.feeds[name]
	if !ok {
		h = &feedHealth{}
		m.feeds[name] = h
		m.order = append(m.order, name)
	}
	return h
}

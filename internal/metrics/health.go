package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health status values.
const (
	StatusStarting  = "starting"
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// FeedStatus is the health view of one feed.
type FeedStatus struct {
	State        string     `json:"state"` // connecting, up or ended
	Observations uint64     `json:"observations"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
}

// Health is the /health response body.
type Health struct {
	Status  string                `json:"status"`
	Uptime  string                `json:"uptime"`
	Matched uint64                `json:"matched"`
	Feeds   map[string]FeedStatus `json:"feeds"`
}

// Health reports healthy while every feed is up, degraded when some ended
// and unhealthy when all of them did.
func (m *Metrics) Health() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := Health{
		Status:  StatusStarting,
		Uptime:  time.Since(m.started).Round(time.Second).String(),
		Matched: m.matched,
		Feeds:   make(map[string]FeedStatus, len(m.feeds)),
	}

	var up, ended int
	for _, name := range m.order {
		f := m.feeds[name]
		s := FeedStatus{State: "connecting", Observations: f.obs}
		if !f.lastObs.IsZero() {
			t := f.lastObs
			s.LastSeen = &t
		}
		switch {
		case f.up:
			s.State = "up"
			up++
		case f.seen:
			s.State = "ended"
			ended++
		}
		h.Feeds[name] = s
	}

	switch {
	case ended > 0 && up == 0:
		h.Status = StatusUnhealthy
	case ended > 0:
		h.Status = StatusDegraded
	case up > 0:
		h.Status = StatusHealthy
	}
	return h
}

// Handler serves Prometheus metrics on metricsPath and the health report on
// /health.
func (m *Metrics) Handler(metricsPath string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := m.Health()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

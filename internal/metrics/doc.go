// Package metrics exposes slot race telemetry over Prometheus and a JSON
// health endpoint.
//
// Key metrics:
//   - Observations, decode errors and queue drops per feed
//   - Races won per feed and cumulative loss delay
//   - Pending and unmatched slots in the correlation table
//   - Feed up/ended state
package metrics

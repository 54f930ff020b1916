// Package race implements the dual-feed slot race.
//
// The race:
//   - Correlates slot sightings from two feeds (Table)
//   - Decides a winner per slot by local receive time, loser takes the delay
//   - Keeps running win counts and delay sums (Aggregator)
//   - Multiplexes both feed queues against a measurement window (Loop)
//
// Table, Aggregator and Loop are owned by a single goroutine; no locking.
package race

package race

import "time"

// FeedTableStats counts what the table did with one feed's observations.
type FeedTableStats struct {
	Pending    int    // Seen on this feed only, still waiting for the other
	Unmatched  uint64 // Evicted by age without ever matching
	Duplicates uint64 // Repeated observations of a pending or matched slot
	Stale      uint64 // Arrived below the eviction floor
}

// TableStats is a point-in-time view of the correlation table.
type TableStats struct {
	Feeds [2]FeedTableStats
}

// Table correlates slot sightings across the two feeds.
//
// Entries are removed as soon as they match, and the slot is remembered as
// matched so a replayed pair never produces a second event. When maxSlotAge
// is non-zero, anything more than maxSlotAge slots behind the highest slot
// seen is evicted and later sightings below that floor are ignored.
//
// Table is not safe for concurrent use; the race loop owns it.
type Table struct {
	pending    [2]map[uint64]time.Time
	matched    map[uint64]struct{}
	stats      [2]FeedTableStats
	maxSlotAge uint64
	highest    uint64
	floor      uint64
	swept      uint64 // floor at the last sweep
}

// NewTable creates a table. maxSlotAge of 0 disables age eviction.
func NewTable(maxSlotAge uint64) *Table {
	return &Table{
		pending:    [2]map[uint64]time.Time{make(map[uint64]time.Time), make(map[uint64]time.Time)},
		matched:    make(map[uint64]struct{}),
		maxSlotAge: maxSlotAge,
	}
}

// Record stores a sighting and returns the race outcome if the other feed
// already reported the same slot. On an exact timestamp tie the feed
// recorded second loses.
func (t *Table) Record(feed Feed, slot uint64, at time.Time) (Event, bool) {
	if slot > t.highest {
		t.highest = slot
		t.advanceFloor()
	}

	if slot < t.floor {
		t.stats[feed].Stale++
		return Event{}, false
	}
	if _, done := t.matched[slot]; done {
		t.stats[feed].Duplicates++
		return Event{}, false
	}

	own := t.pending[feed]
	if _, seen := own[slot]; seen {
		t.stats[feed].Duplicates++
	}
	own[slot] = at

	other := t.pending[feed.Other()]
	otherAt, ok := other[slot]
	if !ok {
		return Event{}, false
	}

	delete(own, slot)
	delete(other, slot)
	t.matched[slot] = struct{}{}

	delta := at.UnixMilli() - otherAt.UnixMilli()
	if delta < 0 {
		return Event{Slot: slot, Winner: feed, DelayMillis: uint64(-delta)}, true
	}
	return Event{Slot: slot, Winner: feed.Other(), DelayMillis: uint64(delta)}, true
}

// Pending returns the number of slots waiting for a match on the given feed.
func (t *Table) Pending(feed Feed) int {
	return len(t.pending[feed])
}

// Stats returns a copy of the table counters.
func (t *Table) Stats() TableStats {
	var s TableStats
	for f := FeedA; f <= FeedB; f++ {
		s.Feeds[f] = t.stats[f]
		s.Feeds[f].Pending = len(t.pending[f])
	}
	return s
}

func (t *Table) advanceFloor() {
	if t.maxSlotAge == 0 || t.highest <= t.maxSlotAge {
		return
	}
	t.floor = t.highest - t.maxSlotAge

	// Sweep in steps so a steady slot cadence does not rescan the maps on
	// every new slot.
	step := t.maxSlotAge / 4
	if step == 0 {
		step = 1
	}
	if t.floor-t.swept < step {
		return
	}
	t.sweep()
}

func (t *Table) sweep() {
	for f := FeedA; f <= FeedB; f++ {
		for slot := range t.pending[f] {
			if slot < t.floor {
				delete(t.pending[f], slot)
				t.stats[f].Unmatched++
			}
		}
	}
	for slot := range t.matched {
		if slot < t.floor {
			delete(t.matched, slot)
		}
	}
	t.swept = t.floor
}

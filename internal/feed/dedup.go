package feed

import "fmt"

// Filter decides whether a sighting is the first report of its slot.
// Implementations keep per-feed state and are not safe for concurrent use.
type Filter interface {
	Allow(slot uint64) bool
}

// DedupPolicy names a Filter implementation in configuration.
type DedupPolicy string

const (
	DedupChange DedupPolicy = "change"
	DedupSet    DedupPolicy = "set"
)

// NewFilter builds the filter for a policy. horizon bounds the memory of the
// set policy in slots; 0 keeps every slot ever seen.
func NewFilter(policy DedupPolicy, horizon uint64) (Filter, error) {
	switch policy {
	case DedupChange:
		return &ChangeFilter{}, nil
	case DedupSet:
		return NewSetFilter(horizon), nil
	default:
		return nil, fmt.Errorf("unknown dedup policy %q", policy)
	}
}

// ChangeFilter passes a slot only when it is strictly greater than the last
// slot it passed.
type ChangeFilter struct {
	last    uint64
	started bool
}

func (f *ChangeFilter) Allow(slot uint64) bool {
	if f.started && slot <= f.last {
		return false
	}
	f.last = slot
	f.started = true
	return true
}

// SetFilter passes a slot the first time it is seen, in any order. Slots
// more than horizon behind the highest slot seen are forgotten and rejected.
type SetFilter struct {
	seen    map[uint64]struct{}
	horizon uint64
	highest uint64
	swept   uint64
}

// NewSetFilter creates a SetFilter. horizon 0 never forgets.
func NewSetFilter(horizon uint64) *SetFilter {
	return &SetFilter{
		seen:    make(map[uint64]struct{}),
		horizon: horizon,
	}
}

func (f *SetFilter) Allow(slot uint64) bool {
	if slot > f.highest {
		f.highest = slot
		f.prune()
	}
	if f.horizon > 0 && f.highest > f.horizon && slot < f.highest-f.horizon {
		return false
	}
	if _, ok := f.seen[slot]; ok {
		return false
	}
	f.seen[slot] = struct{}{}
	return true
}

// Len returns the number of remembered slots.
func (f *SetFilter) Len() int {
	return len(f.seen)
}

func (f *SetFilter) prune() {
	if f.horizon == 0 || f.highest <= f.horizon {
		return
	}
	floor := f.highest - f.horizon
	if floor-f.swept < f.horizon {
		return
	}
	for slot := range f.seen {
		if slot < floor {
			delete(f.seen, slot)
		}
	}
	f.swept = floor
}

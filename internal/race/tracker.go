package race

// Tracker follows the latest slot reported by each feed. It is a coarser,
// race-free view than Table: it answers "who is ahead right now" rather than
// "who delivered each slot first".
type Tracker struct {
	latest [2]uint64
}

// Update records a slot from feed. Only strictly newer slots are accepted;
// the return value says whether the latest slot moved.
func (t *Tracker) Update(feed Feed, slot uint64) bool {
	if slot <= t.latest[feed] {
		return false
	}
	t.latest[feed] = slot
	return true
}

// Latest returns the newest slot seen on feed, 0 if none.
func (t *Tracker) Latest(feed Feed) uint64 {
	return t.latest[feed]
}

// Lead returns the feed that is ahead and by how many slots. ok is false
// when both feeds sit on the same slot.
func (t *Tracker) Lead() (leader Feed, slots uint64, ok bool) {
	a, b := t.latest[FeedA], t.latest[FeedB]
	switch {
	case a > b:
		return FeedA, a - b, true
	case b > a:
		return FeedB, b - a, true
	default:
		return FeedA, 0, false
	}
}

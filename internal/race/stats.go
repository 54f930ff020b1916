package race

// FeedReport is one feed's line in the final report.
type FeedReport struct {
	First              uint64  // Races this feed won
	Losses             uint64  // Races this feed lost
	DelaySumMillis     uint64  // Total delay accumulated while losing
	WinPercent         float64 // 100 * First / Total; meaningless without data
	AvgDelayWhenLosing float64 // DelaySumMillis / Losses, 0 if never lost
	AvgDelayOverall    float64 // DelaySumMillis / Total, 0 without data
}

// Report is a read-only snapshot of the aggregator.
type Report struct {
	Total uint64
	Feeds [2]FeedReport
}

// HasData reports whether at least one race completed. Percentages and
// averages are only meaningful when it returns true.
func (r Report) HasData() bool {
	return r.Total > 0
}

// Aggregator keeps running race counters. Not safe for concurrent use.
type Aggregator struct {
	first      [2]uint64
	delaySum   [2]uint64
	delayCount [2]uint64
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Observe folds one race outcome into the counters.
func (a *Aggregator) Observe(ev Event) {
	loser := ev.Loser()
	a.first[ev.Winner]++
	a.delaySum[loser] += ev.DelayMillis
	a.delayCount[loser]++
}

// Total returns the number of races observed.
func (a *Aggregator) Total() uint64 {
	return a.first[FeedA] + a.first[FeedB]
}

// Reset zeroes all counters.
func (a *Aggregator) Reset() {
	*a = Aggregator{}
}

// Snapshot computes the report without mutating state.
//
// AvgDelayOverall divides by the total race count, not the loss count, so it
// amortizes a feed's lag across every race including the ones it won.
func (a *Aggregator) Snapshot() Report {
	r := Report{Total: a.Total()}
	for f := FeedA; f <= FeedB; f++ {
		fr := FeedReport{
			First:          a.first[f],
			Losses:         a.delayCount[f],
			DelaySumMillis: a.delaySum[f],
		}
		if a.delayCount[f] > 0 {
			fr.AvgDelayWhenLosing = float64(a.delaySum[f]) / float64(a.delayCount[f])
		}
		if r.Total > 0 {
			fr.WinPercent = 100 * float64(a.first[f]) / float64(r.Total)
			fr.AvgDelayOverall = float64(a.delaySum[f]) / float64(r.Total)
		}
		r.Feeds[f] = fr
	}
	return r
}

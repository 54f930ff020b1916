// Package report renders race results for the console.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/slotrace/internal/race"
)

// Format renders the per-feed comparison: how often each feed delivered a
// slot first, its average delay when it lost, and its delay averaged over
// every race.
func Format(r race.Report, names [2]string) string {
	var b strings.Builder
	width := nameWidth(names)

	b.WriteString("===== feed performance comparison =====\n")
	for f := race.FeedA; f <= race.FeedB; f++ {
		if !r.HasData() {
			fmt.Fprintf(&b, "%-*s : no data\n", width, names[f])
			continue
		}
		fr := r.Feeds[f]
		fmt.Fprintf(&b, "%-*s : first %6.2f%%, avg delay when behind %6.2fms, overall avg delay %6.2fms\n",
			width, names[f], fr.WinPercent, fr.AvgDelayWhenLosing, fr.AvgDelayOverall)
	}
	return b.String()
}

// Summary wraps Format with run metadata and table counters.
func Summary(res race.Result, names [2]string, runID string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "run %s stopped (%s) after %s\n", runID, res.Reason, res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "slots raced: %d\n", res.Report.Total)
	b.WriteString(Format(res.Report, names))

	width := nameWidth(names)
	for f := race.FeedA; f <= race.FeedB; f++ {
		ts := res.Table.Feeds[f]
		fmt.Fprintf(&b, "%-*s : only-seen-here pending %d, evicted %d, duplicates %d, stale %d\n",
			width, names[f], ts.Pending, ts.Unmatched, ts.Duplicates, ts.Stale)
	}
	for f := race.FeedA; f <= race.FeedB; f++ {
		if res.FeedEnded(f) {
			fmt.Fprintf(&b, "WARNING: %s ended %s into the run; later slots could not be raced\n",
				names[f], res.Ended[f].Sub(res.Started).Round(time.Millisecond))
		}
	}
	return b.String()
}

func nameWidth(names [2]string) int {
	w := 6
	for _, n := range names {
		if len(n) > w {
			w = len(n)
		}
	}
	return w
}

// Comparison renders the newest slot of each feed and which one is ahead.
func Comparison(t *race.Tracker, names [2]string, at time.Time) string {
	var b strings.Builder
	width := nameWidth(names)

	fmt.Fprintf(&b, "[%s] latest slot\n", at.Format("15:04:05.000"))
	for f := race.FeedA; f <= race.FeedB; f++ {
		fmt.Fprintf(&b, "  %-*s : %12d\n", width, names[f], t.Latest(f))
	}
	if leader, n, ok := t.Lead(); ok {
		fmt.Fprintf(&b, "  %s ahead of %s by %d slot(s)\n", names[leader], names[leader.Other()], n)
	} else {
		b.WriteString("  in sync\n")
	}
	return b.String()
}

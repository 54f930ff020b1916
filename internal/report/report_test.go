package report

import (
	"strings"
	"testing"
	"time"

	"github.com/rickgao/slotrace/internal/race"
)

var names = [2]string{"grpc", "shred"}

func TestFormat(t *testing.T) {
	agg := race.NewAggregator()
	agg.Observe(race.Event{Slot: 100, Winner: race.FeedB, DelayMillis: 50})
	agg.Observe(race.Event{Slot: 101, Winner: race.FeedA, DelayMillis: 50})

	got := Format(agg.Snapshot(), names)

	want := []string{
		"grpc   : first  50.00%, avg delay when behind  50.00ms, overall avg delay  25.00ms",
		"shred  : first  50.00%, avg delay when behind  50.00ms, overall avg delay  25.00ms",
	}
	for _, line := range want {
		if !strings.Contains(got, line) {
			t.Errorf("Format() missing line %q\ngot:\n%s", line, got)
		}
	}
}

func TestFormat_NoData(t *testing.T) {
	got := Format(race.NewAggregator().Snapshot(), names)

	if strings.Contains(got, "NaN") {
		t.Errorf("Format() contains NaN:\n%s", got)
	}
	if c := strings.Count(got, "no data"); c != 2 {
		t.Errorf("Format() has %d 'no data' lines, want 2:\n%s", c, got)
	}
}

func TestSummary(t *testing.T) {
	started := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	res := race.Result{
		Reason:  race.StopWindowElapsed,
		Started: started,
		Elapsed: 30 * time.Second,
	}
	res.Ended[race.FeedB] = started.Add(12 * time.Second)
	res.Table.Feeds[race.FeedA].Pending = 3

	got := Summary(res, names, "run-1")

	for _, want := range []string{
		"run run-1 stopped (window-elapsed) after 30s",
		"slots raced: 0",
		"grpc   : only-seen-here pending 3",
		"WARNING: shred ended 12s into the run",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() missing %q\ngot:\n%s", want, got)
		}
	}
	if strings.Contains(got, "WARNING: grpc") {
		t.Errorf("Summary() warns about a feed that did not end:\n%s", got)
	}
}

func TestComparison(t *testing.T) {
	at := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name    string
		a, b    uint64
		want    []string
		notWant string
	}{
		{
			name: "grpc ahead",
			a:    105, b: 103,
			want: []string{"[15:04:05.000] latest slot", "grpc   :          105", "shred  :          103", "grpc ahead of shred by 2 slot(s)"},
		},
		{
			name: "shred ahead",
			a:    10, b: 11,
			want: []string{"shred ahead of grpc by 1 slot(s)"},
		},
		{
			name: "in sync",
			a:    7, b: 7,
			want:    []string{"in sync"},
			notWant: "ahead",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr race.Tracker
			tr.Update(race.FeedA, tt.a)
			tr.Update(race.FeedB, tt.b)

			got := Comparison(&tr, names, at)
			for _, line := range tt.want {
				if !strings.Contains(got, line) {
					t.Errorf("Comparison() missing %q\ngot:\n%s", line, got)
				}
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("Comparison() should not contain %q\ngot:\n%s", tt.notWant, got)
			}
		})
	}
}

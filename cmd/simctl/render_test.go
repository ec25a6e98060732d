package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/diner"
	"github.com/danmuck/tablectl/internal/simulation"
	"github.com/danmuck/tablectl/internal/testutil/testlog"
)

func TestRenderReportListsSeatsAndCounters(t *testing.T) {
	testlog.Start(t)
	report := simulation.Report{
		Seats: []simulation.SeatReport{
			{Seat: 0, Stats: diner.LoopStats{Meals: 4, Requests: 4, Waited: 8 * time.Millisecond}},
			{Seat: 1, Stats: diner.LoopStats{Meals: 2, Requests: 3, Denials: 1}, Err: errors.New("seat 1 broke")},
		},
		Final: arbiter.Snapshot{
			Variant:  arbiter.VariantPolling,
			Fairness: arbiter.FairnessNone,
			Strict:   true,
			Stats:    arbiter.Stats{Requests: 7, Releases: 6, Grants: 6, Denials: 1},
		},
		Elapsed: 1500 * time.Millisecond,
	}
	out := renderReport(report)
	for _, want := range []string{
		"dining table report",
		"avg wait",
		"2ms",
		"seat 1 broke",
		"variant=polling",
		"requests=7 releases=6 grants=6",
		"meals=6 elapsed=1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestAverageWaitHandlesZeroMeals(t *testing.T) {
	testlog.Start(t)
	if got := averageWait(time.Second, 0); got != 0 {
		t.Fatalf("averageWait with no meals = %s", got)
	}
	if got := averageWait(3*time.Second, 3); got != time.Second {
		t.Fatalf("averageWait = %s want 1s", got)
	}
}

package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/diner"
	"github.com/danmuck/tablectl/internal/table"
	"github.com/danmuck/tablectl/internal/testutil/testlog"
)

func fastConfig(seats, meals int) Config {
	cfg := DefaultConfig()
	cfg.Seats = seats
	cfg.Meals = meals
	cfg.Think = diner.Range{Max: time.Millisecond}
	cfg.Eat = diner.Range{Max: time.Millisecond}
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Arbiter.Audit = true
	cfg.Seed = 42
	return cfg
}

func TestRunCompletesEveryMeal(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name     string
		variant  arbiter.Variant
		fairness arbiter.Fairness
	}{
		{"wakeup", arbiter.VariantWakeup, arbiter.FairnessNone},
		{"wakeup-ticket", arbiter.VariantWakeup, arbiter.FairnessTicket},
		{"polling", arbiter.VariantPolling, arbiter.FairnessNone},
	}
	for _, tc := range cases {
		cfg := fastConfig(5, 15)
		cfg.Arbiter.Variant = tc.variant
		cfg.Arbiter.Fairness = tc.fairness
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		report, err := Run(ctx, cfg)
		cancel()
		if err != nil {
			t.Fatalf("%s: run: %v", tc.name, err)
		}
		if got := report.TotalMeals(); got != 5*15 {
			t.Fatalf("%s: meals=%d want %d", tc.name, got, 5*15)
		}
		if report.Final.Stats.Releases != 5*15 || report.Final.Stats.Violations != 0 {
			t.Fatalf("%s: final stats %+v", tc.name, report.Final.Stats)
		}
		if idle, waiting, eating := report.Final.Counts(); idle != 5 || waiting != 0 || eating != 0 {
			t.Fatalf("%s: final table not at rest: idle=%d waiting=%d eating=%d", tc.name, idle, waiting, eating)
		}
		if tc.variant == arbiter.VariantWakeup && report.Final.Stats.Denials != 0 {
			t.Fatalf("%s: wakeup variant must never deny", tc.name)
		}
	}
}

func TestRunStopsAfterDuration(t *testing.T) {
	testlog.Start(t)
	cfg := fastConfig(3, 0)
	cfg.Duration = 50 * time.Millisecond
	start := time.Now()
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("duration not honoured")
	}
	if report.TotalMeals() == 0 {
		t.Fatalf("expected some meals within the window")
	}
}

func TestConfigValidation(t *testing.T) {
	testlog.Start(t)
	cfg := fastConfig(1, 1)
	if _, err := Run(context.Background(), cfg); !errors.Is(err, table.ErrRingTooSmall) {
		t.Fatalf("expected ErrRingTooSmall, got %v", err)
	}
	cfg = fastConfig(3, 0)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unbounded run must be rejected")
	}
	cfg = fastConfig(3, 1)
	cfg.Arbiter.Variant = arbiter.VariantPolling
	cfg.Arbiter.Fairness = arbiter.FairnessTicket
	if err := cfg.Validate(); !errors.Is(err, arbiter.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/diner"
	"github.com/danmuck/tablectl/internal/simulation"
)

func (r Range) Diner() diner.Range {
	return diner.Range{Min: r.Min, Max: r.Max}
}

// Simulation converts the file into a runnable simulation config.
func (f SimulationFile) Simulation() (simulation.Config, error) {
	cfg := simulation.DefaultConfig()
	cfg.Seats = f.Seats
	cfg.Meals = f.Meals
	cfg.Seed = f.Seed
	cfg.DinerStrict = f.DinerStrict

	variant, err := arbiter.ParseVariant(f.Variant)
	if err != nil {
		return simulation.Config{}, err
	}
	fairness, err := arbiter.ParseFairness(f.Fairness)
	if err != nil {
		return simulation.Config{}, err
	}
	cfg.Arbiter = arbiter.Config{Strict: f.Strict, Variant: variant, Fairness: fairness, Audit: f.Audit}

	if d := strings.TrimSpace(f.Duration); d != "" {
		if cfg.Duration, err = time.ParseDuration(d); err != nil {
			return simulation.Config{}, fmt.Errorf("simulation config duration: %w", err)
		}
	}
	think, err := ParseRange(f.Think)
	if err != nil {
		return simulation.Config{}, fmt.Errorf("simulation config think: %w", err)
	}
	eat, err := ParseRange(f.Eat)
	if err != nil {
		return simulation.Config{}, fmt.Errorf("simulation config eat: %w", err)
	}
	cfg.Think, cfg.Eat = think.Diner(), eat.Diner()
	if strings.TrimSpace(f.Retry) != "" {
		retry, err := ParseRange(f.Retry)
		if err != nil {
			return simulation.Config{}, fmt.Errorf("simulation config retry: %w", err)
		}
		cfg.Retry.InitialDelay = retry.Min
		cfg.Retry.MaxDelay = retry.Max
	}
	if err := cfg.Validate(); err != nil {
		return simulation.Config{}, err
	}
	return cfg, nil
}

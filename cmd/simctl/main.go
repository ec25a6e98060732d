package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/config"
	"github.com/danmuck/tablectl/internal/observability"
	"github.com/danmuck/tablectl/internal/simulation"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/simctl/config.toml", "simulation config path")
	seats := flag.Int("seats", 0, "seat count override")
	meals := flag.Int("meals", -1, "meals per philosopher override")
	duration := flag.Duration("duration", 0, "wall-clock limit override")
	variant := flag.String("variant", "", "arbiter variant override: wakeup|polling")
	fairness := flag.String("fairness", "", "fairness override: none|ticket")
	seed := flag.Int64("seed", 0, "rng seed override")
	flag.Parse()
	observability.InitLogger("simctl")

	file := config.DefaultSimulationFile()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := config.LoadSimulationFile(*configPath)
		if err != nil {
			fatal(err)
		}
		file = loaded
	} else if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", *configPath).Msg("simctl config not found; using defaults")
	}

	cfg, err := file.Simulation()
	if err != nil {
		fatal(err)
	}
	if *seats > 0 {
		cfg.Seats = *seats
	}
	if *meals >= 0 {
		cfg.Meals = *meals
	}
	if *duration > 0 {
		cfg.Duration = *duration
	}
	if *variant != "" {
		if cfg.Arbiter.Variant, err = arbiter.ParseVariant(*variant); err != nil {
			fatal(err)
		}
	}
	if *fairness != "" {
		if cfg.Arbiter.Fairness, err = arbiter.ParseFairness(*fairness); err != nil {
			fatal(err)
		}
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report, err := simulation.Run(ctx, cfg)
	fmt.Println(renderReport(report))
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("simctl run failed")
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "simctl: %v\n", err)
	os.Exit(1)
}

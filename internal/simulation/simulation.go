// Package simulation runs one arbiter and its philosophers in a single
// process over the mailbox hub.
package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/diner"
	"github.com/danmuck/tablectl/internal/mailbox"
	"github.com/danmuck/tablectl/internal/protocol/session"
	"github.com/danmuck/tablectl/internal/table"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Seats   int
	Arbiter arbiter.Config
	Think   diner.Range
	Eat     diner.Range
	Retry   session.BackoffConfig
	// DinerStrict makes philosophers stop on an unexpected reply.
	DinerStrict bool
	// Meals per philosopher. Zero runs until ctx is done or Duration elapses.
	Meals    int
	Duration time.Duration
	// Seed fixes think/eat draws. Zero seeds from the clock.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		Seats:       5,
		Arbiter:     arbiter.DefaultConfig(),
		Think:       diner.Range{Min: 10 * time.Millisecond, Max: 100 * time.Millisecond},
		Eat:         diner.Range{Min: 10 * time.Millisecond, Max: 100 * time.Millisecond},
		Retry:       session.DefaultConfig().Backoff,
		DinerStrict: true,
		Meals:       10,
	}
}

func (c Config) Validate() error {
	if c.Seats < table.MinSeats {
		return fmt.Errorf("%w: seats=%d min=%d", table.ErrRingTooSmall, c.Seats, table.MinSeats)
	}
	if err := c.Arbiter.WithDefaults().Validate(); err != nil {
		return err
	}
	if err := c.Think.Validate(); err != nil {
		return err
	}
	if err := c.Eat.Validate(); err != nil {
		return err
	}
	if c.Meals < 0 {
		return fmt.Errorf("simulation: negative meals %d", c.Meals)
	}
	if c.Meals == 0 && c.Duration <= 0 {
		return fmt.Errorf("simulation: need meals or duration to terminate")
	}
	return nil
}

type SeatReport struct {
	Seat  int
	Stats diner.LoopStats
	Err   error
}

type Report struct {
	Seats   []SeatReport
	Final   arbiter.Snapshot
	Elapsed time.Duration
}

// TotalMeals sums meals across seats.
func (r Report) TotalMeals() int {
	total := 0
	for _, s := range r.Seats {
		total += s.Stats.Meals
	}
	return total
}

// Run drives the table until every philosopher reaches its meal limit, the
// duration elapses, ctx is done, or a participant fails. The first failure
// stops everyone and is returned alongside the partial report.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	tbl, err := table.New(cfg.Seats)
	if err != nil {
		return Report{}, err
	}
	arb, err := arbiter.New(tbl, cfg.Arbiter)
	if err != nil {
		return Report{}, err
	}
	hub := mailbox.New(cfg.Seats)
	defer hub.Close()

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	start := time.Now()
	report := Report{Seats: make([]SeatReport, cfg.Seats)}
	var released atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	// The arbiter outlives cancellation so diners can settle outstanding
	// requests inside their grace window; it stops once every diner is done.
	arbCtx, stopArbiter := context.WithCancel(context.WithoutCancel(gctx))
	defer stopArbiter()
	g.Go(func() error {
		return arb.Run(arbCtx, hub.Inbox(), hub)
	})

	var diners sync.WaitGroup
	for seat := 0; seat < cfg.Seats; seat++ {
		ep, err := hub.Seat(seat)
		if err != nil {
			return report, err
		}
		loop := diner.LoopConfig{
			Seat:    seat,
			Think:   cfg.Think,
			Eat:     cfg.Eat,
			Variant: arb.Config().Variant,
			Strict:  cfg.DinerStrict,
			Retry:   cfg.Retry,
			Meals:   cfg.Meals,
			Rand:    rand.New(rand.NewSource(seed + int64(seat))),
		}
		diners.Add(1)
		g.Go(func() error {
			defer diners.Done()
			stats, err := diner.Run(gctx, ep, loop)
			released.Add(int64(stats.Meals))
			report.Seats[loop.Seat] = SeatReport{Seat: loop.Seat, Stats: stats, Err: err}
			if err != nil {
				return fmt.Errorf("simulation: seat %d: %w", loop.Seat, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		diners.Wait()
		awaitReleases(gctx, arb, uint64(released.Load()))
		stopArbiter()
		return nil
	})

	err = g.Wait()
	report.Final = arb.Latest()
	report.Elapsed = time.Since(start)
	log.Info().
		Int("seats", cfg.Seats).
		Int("meals", report.TotalMeals()).
		Dur("elapsed", report.Elapsed).
		Err(err).
		Msg("simulation.Run done")
	return report, err
}

// awaitReleases waits until the arbiter has handled want releases so the
// final snapshot shows an empty table.
func awaitReleases(ctx context.Context, arb *arbiter.Arbiter, want uint64) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for arb.Latest().Stats.Releases < want {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

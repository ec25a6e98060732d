package diner

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/observability"
	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// releaseGrace bounds the wrap-up after cancellation: the final Release sent
// mid-meal, or the wait for the reply to an outstanding Request.
const releaseGrace = time.Second

// Conn is the philosopher's link to the arbiter. The sender is implied by the
// connection.
type Conn interface {
	Send(ctx context.Context, kind protocol.Kind) error
	Receive(ctx context.Context) (protocol.Kind, error)
}

// Range is an inclusive duration interval.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a uniform duration in [Min, Max].
func (r Range) Pick(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return max(r.Min, 0)
	}
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)+1))
}

func (r Range) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("diner: negative duration range %s..%s", r.Min, r.Max)
	}
	if r.Max < r.Min {
		return fmt.Errorf("diner: inverted duration range %s..%s", r.Min, r.Max)
	}
	return nil
}

type LoopConfig struct {
	Seat    int
	Think   Range
	Eat     Range
	Variant arbiter.Variant
	Strict  bool
	Retry   session.BackoffConfig
	// Meals stops the loop after that many meals. Zero runs until ctx is done.
	Meals int
	// Rand seeds think/eat/backoff draws. Nil uses a time seed.
	Rand *rand.Rand
	// Grace overrides releaseGrace when positive.
	Grace time.Duration
}

func (c LoopConfig) grace() time.Duration {
	if c.Grace > 0 {
		return c.Grace
	}
	return releaseGrace
}

func DefaultLoopConfig(seat int) LoopConfig {
	return LoopConfig{
		Seat:    seat,
		Think:   Range{Max: 10 * time.Second},
		Eat:     Range{Max: 10 * time.Second},
		Variant: arbiter.VariantWakeup,
		Strict:  true,
		Retry:   session.DefaultConfig().Backoff,
	}
}

type LoopStats struct {
	Meals      int
	Requests   int
	Denials    int
	Unexpected int
	Waited     time.Duration
}

// Run loops think, request, eat, release. It returns nil when ctx is done or
// the meal limit is reached, and an error when the connection fails or, in
// strict mode, an unexpected reply arrives.
func Run(ctx context.Context, conn Conn, cfg LoopConfig) (LoopStats, error) {
	var stats LoopStats
	if cfg.Variant == "" {
		cfg.Variant = arbiter.VariantWakeup
	}
	if err := cfg.Think.Validate(); err != nil {
		return stats, err
	}
	if err := cfg.Eat.Validate(); err != nil {
		return stats, err
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.Seat)))
	}
	logger := log.With().Int("seat", cfg.Seat).Logger()
	logger.Debug().Str("variant", string(cfg.Variant)).Int("meals", cfg.Meals).Msg("diner.Run start")

	for cfg.Meals == 0 || stats.Meals < cfg.Meals {
		if err := session.Sleep(ctx, cfg.Think.Pick(rng)); err != nil {
			return stats, nil
		}
		start := time.Now()
		pending, err := awaitGrant(ctx, conn, cfg, rng, &stats)
		if err != nil {
			if ctx.Err() != nil {
				if pending {
					settleAfterCancel(ctx, conn, cfg, logger)
				}
				return stats, nil
			}
			return stats, err
		}
		waited := time.Since(start)
		stats.Waited += waited
		logger.Debug().Dur("waited", waited).Msg("eating")

		eatErr := session.Sleep(ctx, cfg.Eat.Pick(rng))
		releaseCtx := ctx
		if eatErr != nil {
			var cancel context.CancelFunc
			releaseCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), cfg.grace())
			defer cancel()
		}
		if err := conn.Send(releaseCtx, protocol.KindRelease); err != nil {
			if eatErr != nil {
				logger.Warn().Err(err).Msg("diner.Run release after cancel failed")
				return stats, nil
			}
			return stats, err
		}
		stats.Meals++
		observability.RecordMeal(cfg.Seat, waited)
		if eatErr != nil {
			return stats, nil
		}
	}
	logger.Debug().Int("meals", stats.Meals).Msg("diner.Run meal limit reached")
	return stats, nil
}

// awaitGrant sends Request and blocks for Grant, re-requesting after Deny in
// the polling variant. pending reports whether a Request is still
// outstanding when it returns with an error.
func awaitGrant(ctx context.Context, conn Conn, cfg LoopConfig, rng *rand.Rand, stats *LoopStats) (pending bool, err error) {
	if err := conn.Send(ctx, protocol.KindRequest); err != nil {
		return false, err
	}
	stats.Requests++
	attempt := 0
	for {
		kind, err := conn.Receive(ctx)
		if err != nil {
			return true, err
		}
		switch {
		case kind == protocol.KindGrant:
			return false, nil
		case kind == protocol.KindDeny && cfg.Variant == arbiter.VariantPolling:
			stats.Denials++
			attempt++
			if err := session.Sleep(ctx, session.NextBackoffDelay(cfg.Retry, attempt, rng)); err != nil {
				return false, err
			}
			if err := conn.Send(ctx, protocol.KindRequest); err != nil {
				return false, err
			}
			stats.Requests++
		default:
			stats.Unexpected++
			verr := protocol.UnexpectedKindError{Seat: cfg.Seat, Kind: kind}
			if cfg.Strict {
				return true, verr
			}
			log.Warn().Err(verr).Int("seat", cfg.Seat).Msg("diner ignored unexpected reply")
		}
	}
}

// settleAfterCancel waits out the grace window for the reply to an
// outstanding Request. A late Grant is handed straight back with Release so
// the seat does not stay eating after the philosopher is gone.
func settleAfterCancel(ctx context.Context, conn Conn, cfg LoopConfig, logger zerolog.Logger) {
	graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.grace())
	defer cancel()
	for {
		kind, err := conn.Receive(graceCtx)
		if err != nil {
			logger.Warn().Err(err).Msg("diner.Run no reply within grace; request left pending")
			return
		}
		switch kind {
		case protocol.KindGrant:
			if err := conn.Send(graceCtx, protocol.KindRelease); err != nil {
				logger.Warn().Err(err).Msg("diner.Run release of late grant failed")
				return
			}
			logger.Debug().Msg("diner.Run returned late grant")
			return
		case protocol.KindDeny:
			return
		}
	}
}

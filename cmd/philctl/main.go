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

	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/diner"
	"github.com/danmuck/tablectl/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/philctl/config.toml", "philosopher config path")
	seat := flag.Int("seat", -1, "seat override")
	addr := flag.String("addr", "", "broker address override")
	flag.Parse()
	observability.InitLogger("philctl")

	cfg := defaultRuntimeConfig()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := loadRuntimeConfig(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	} else if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", *configPath).Msg("philctl config not found; using defaults")
	}
	if *seat >= 0 {
		cfg.Client.Seat = *seat
		cfg.Loop.Seat = *seat
		cfg.Client.PhilosopherID = fmt.Sprintf("phil.%d", *seat)
	}
	if *addr != "" {
		cfg.Client.Address = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := diner.NewClient(cfg.Client)
	if err != nil {
		fatal(err)
	}
	sess, err := client.Connect(ctx)
	if err != nil {
		fatal(err)
	}
	defer sess.Close()

	// The broker decides the variant; follow it so polling retries are armed.
	if variant, err := arbiter.ParseVariant(sess.Variant()); err == nil {
		cfg.Loop.Variant = variant
	}
	log.Info().
		Int("seat", sess.Seat()).
		Int("seats", sess.Seats()).
		Str("variant", string(cfg.Loop.Variant)).
		Str("state", sess.State()).
		Msg("philctl seated")
	if st := sess.State(); st != "" && st != arbiter.SeatIdle.String() {
		fatal(fmt.Errorf("seat %d is %s on the broker; refusing to start", sess.Seat(), st))
	}

	stats, err := diner.Run(ctx, sess, cfg.Loop)
	log.Info().
		Int("meals", stats.Meals).
		Int("requests", stats.Requests).
		Int("denials", stats.Denials).
		Dur("waited", stats.Waited).
		Msg("philctl stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "philctl: %v\n", err)
	os.Exit(1)
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/danmuck/tablectl/internal/broker"
	"github.com/danmuck/tablectl/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "cmd/tablectl/config.toml", "broker config path")
	flag.Parse()
	observability.InitLogger("tablectl")

	cfg := broker.DefaultServiceConfig()
	if _, err := os.Stat(*configPath); err == nil {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tablectl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", *configPath).Msg("tablectl config not found; using defaults")
	}

	svc, err := broker.NewService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tablectl: %v\n", err)
		os.Exit(1)
	}
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tablectl: %v\n", err)
		os.Exit(1)
	}
}

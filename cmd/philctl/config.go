package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/tablectl/internal/config"
	"github.com/danmuck/tablectl/internal/diner"
	"github.com/danmuck/tablectl/internal/protocol/session"
)

// philctl config.toml key mapping to client and loop settings.
type fileConfig struct {
	BrokerAddr          string `toml:"broker_addr"`
	PhilosopherID       string `toml:"philosopher_id"`
	Seat                int    `toml:"seat"`
	Think               string `toml:"think"`
	Eat                 string `toml:"eat"`
	Strict              bool   `toml:"strict"`
	Meals               int    `toml:"meals"`
	MaxConnectAttempts  int    `toml:"max_connect_attempts"`
	SessionSecurityMode string `toml:"session_security_mode"`
	SessionTLSEnabled   bool   `toml:"session_tls_enabled"`
	SessionTLSMutual    bool   `toml:"session_tls_mutual"`
	SessionTLSCertFile  string `toml:"session_tls_cert_file"`
	SessionTLSKeyFile   string `toml:"session_tls_key_file"`
	SessionTLSCAFile    string `toml:"session_tls_ca_file"`
	SessionTLSServer    string `toml:"session_tls_server_name"`
}

type runtimeConfig struct {
	Client diner.ClientConfig
	Loop   diner.LoopConfig
}

func defaultRuntimeConfig() runtimeConfig {
	client := diner.DefaultClientConfig()
	client.Address = "127.0.0.1:9400"
	client.PhilosopherID = "phil.0"
	return runtimeConfig{
		Client: client,
		Loop:   diner.DefaultLoopConfig(0),
	}
}

// philctl loader for TOML config with default overlay.
func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load philctl config: %w", err)
	}

	if meta.IsDefined("broker_addr") {
		cfg.Client.Address = strings.TrimSpace(raw.BrokerAddr)
	}
	if meta.IsDefined("seat") {
		cfg.Client.Seat = raw.Seat
		cfg.Loop.Seat = raw.Seat
		cfg.Client.PhilosopherID = fmt.Sprintf("phil.%d", raw.Seat)
	}
	if meta.IsDefined("philosopher_id") && strings.TrimSpace(raw.PhilosopherID) != "" {
		cfg.Client.PhilosopherID = strings.TrimSpace(raw.PhilosopherID)
	}
	if meta.IsDefined("think") {
		r, err := config.ParseRange(raw.Think)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("load philctl config think: %w", err)
		}
		cfg.Loop.Think = r.Diner()
	}
	if meta.IsDefined("eat") {
		r, err := config.ParseRange(raw.Eat)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("load philctl config eat: %w", err)
		}
		cfg.Loop.Eat = r.Diner()
	}
	if meta.IsDefined("strict") {
		cfg.Loop.Strict = raw.Strict
	}
	if meta.IsDefined("meals") {
		if raw.Meals < 0 {
			return runtimeConfig{}, fmt.Errorf("load philctl config: negative meals %d", raw.Meals)
		}
		cfg.Loop.Meals = raw.Meals
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Client.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("session_security_mode") {
		cfg.Client.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SessionSecurityMode))
	}
	if meta.IsDefined("session_tls_enabled") {
		cfg.Client.Session.TLS.Enabled = raw.SessionTLSEnabled
	}
	if meta.IsDefined("session_tls_mutual") {
		cfg.Client.Session.TLS.Mutual = raw.SessionTLSMutual
	}
	if meta.IsDefined("session_tls_cert_file") {
		cfg.Client.Session.TLS.CertFile = strings.TrimSpace(raw.SessionTLSCertFile)
	}
	if meta.IsDefined("session_tls_key_file") {
		cfg.Client.Session.TLS.KeyFile = strings.TrimSpace(raw.SessionTLSKeyFile)
	}
	if meta.IsDefined("session_tls_ca_file") {
		cfg.Client.Session.TLS.CAFile = strings.TrimSpace(raw.SessionTLSCAFile)
	}
	if meta.IsDefined("session_tls_server_name") {
		cfg.Client.Session.TLS.ServerName = strings.TrimSpace(raw.SessionTLSServer)
	}

	cfg.Client.Session = cfg.Client.Session.WithDefaults()
	cfg.Loop.Retry = cfg.Client.Session.Backoff
	if err := cfg.Client.Session.ValidateClientTransport(); err != nil {
		return runtimeConfig{}, fmt.Errorf("load philctl config: %w", err)
	}
	return cfg, nil
}

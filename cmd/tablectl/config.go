package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/broker"
	"github.com/danmuck/tablectl/internal/protocol/session"
)

// tablectl config.toml key mapping to broker runtime settings.
type fileConfig struct {
	Addr                string   `toml:"addr"`
	AdminListenAddr     string   `toml:"admin_listen_addr"`
	Seats               int      `toml:"seats"`
	Variant             string   `toml:"variant"`
	Fairness            string   `toml:"fairness"`
	Strict              bool     `toml:"strict"`
	Audit               bool     `toml:"audit"`
	RequireIdentityBind bool     `toml:"require_identity_binding"`
	CorsOrigins         []string `toml:"cors_origins"`
	AdminToken          string   `toml:"admin_token"`
	SessionSecurityMode string   `toml:"session_security_mode"`
	SessionTLSEnabled   bool     `toml:"session_tls_enabled"`
	SessionTLSMutual    bool     `toml:"session_tls_mutual"`
	SessionTLSCertFile  string   `toml:"session_tls_cert_file"`
	SessionTLSKeyFile   string   `toml:"session_tls_key_file"`
	SessionTLSCAFile    string   `toml:"session_tls_ca_file"`
}

// tablectl loader for TOML config with default overlay.
func loadServiceConfig(path string) (broker.ServiceConfig, error) {
	cfg := broker.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return broker.ServiceConfig{}, fmt.Errorf("load tablectl config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("seats") {
		cfg.Seats = raw.Seats
	}
	if meta.IsDefined("variant") {
		v, err := arbiter.ParseVariant(raw.Variant)
		if err != nil {
			return broker.ServiceConfig{}, fmt.Errorf("load tablectl config: %w", err)
		}
		cfg.Arbiter.Variant = v
	}
	if meta.IsDefined("fairness") {
		f, err := arbiter.ParseFairness(raw.Fairness)
		if err != nil {
			return broker.ServiceConfig{}, fmt.Errorf("load tablectl config: %w", err)
		}
		cfg.Arbiter.Fairness = f
	}
	if meta.IsDefined("strict") {
		cfg.Arbiter.Strict = raw.Strict
	}
	if meta.IsDefined("audit") {
		cfg.Arbiter.Audit = raw.Audit
	}
	if meta.IsDefined("require_identity_binding") {
		cfg.RequireIdentityBinding = raw.RequireIdentityBind
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("session_security_mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SessionSecurityMode))
	}
	if meta.IsDefined("session_tls_enabled") {
		cfg.Session.TLS.Enabled = raw.SessionTLSEnabled
	}
	if meta.IsDefined("session_tls_mutual") {
		cfg.Session.TLS.Mutual = raw.SessionTLSMutual
	}
	if meta.IsDefined("session_tls_cert_file") {
		cfg.Session.TLS.CertFile = strings.TrimSpace(raw.SessionTLSCertFile)
	}
	if meta.IsDefined("session_tls_key_file") {
		cfg.Session.TLS.KeyFile = strings.TrimSpace(raw.SessionTLSKeyFile)
	}
	if meta.IsDefined("session_tls_ca_file") {
		cfg.Session.TLS.CAFile = strings.TrimSpace(raw.SessionTLSCAFile)
	}

	if err := cfg.Arbiter.Validate(); err != nil {
		return broker.ServiceConfig{}, fmt.Errorf("load tablectl config: %w", err)
	}
	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}

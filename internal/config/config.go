package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/protocol/session"
	"github.com/danmuck/tablectl/internal/table"
	"github.com/pelletier/go-toml/v2"
)

// BrokerFile is the tablectl config.toml shape.
type BrokerFile struct {
	Addr                   string   `toml:"addr"`
	AdminListenAddr        string   `toml:"admin_listen_addr"`
	Seats                  int      `toml:"seats"`
	Variant                string   `toml:"variant"`
	Fairness               string   `toml:"fairness"`
	Strict                 bool     `toml:"strict"`
	Audit                  bool     `toml:"audit"`
	RequireIdentityBinding bool     `toml:"require_identity_binding"`
	CorsOrigins            []string `toml:"cors_origins"`
	AdminToken             string   `toml:"admin_token"`
	SessionSecurityMode    string   `toml:"session_security_mode"`
	SessionTLSEnabled      bool     `toml:"session_tls_enabled"`
	SessionTLSMutual       bool     `toml:"session_tls_mutual"`
	SessionTLSCertFile     string   `toml:"session_tls_cert_file"`
	SessionTLSKeyFile      string   `toml:"session_tls_key_file"`
	SessionTLSCAFile       string   `toml:"session_tls_ca_file"`
}

// PhilosopherFile is the philctl config.toml shape.
type PhilosopherFile struct {
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

// SimulationFile is the simctl config.toml shape. Durations are Go duration
// strings; think and eat are "min..max" ranges.
type SimulationFile struct {
	Seats       int    `toml:"seats"`
	Meals       int    `toml:"meals"`
	Duration    string `toml:"duration"`
	Seed        int64  `toml:"seed"`
	Variant     string `toml:"variant"`
	Fairness    string `toml:"fairness"`
	Strict      bool   `toml:"strict"`
	Audit       bool   `toml:"audit"`
	DinerStrict bool   `toml:"diner_strict"`
	Think       string `toml:"think"`
	Eat         string `toml:"eat"`
	Retry       string `toml:"retry"`
}

func LoadBrokerFile(path string) (BrokerFile, error) {
	cfg := BrokerFile{
		Addr:     ":9400",
		Seats:    5,
		Variant:  string(arbiter.VariantWakeup),
		Fairness: string(arbiter.FairnessNone),
		Strict:   true,
	}
	if err := loadToml(path, &cfg); err != nil {
		return BrokerFile{}, err
	}
	if err := ValidateBrokerFile(cfg); err != nil {
		return BrokerFile{}, err
	}
	return cfg, nil
}

func LoadPhilosopherFile(path string) (PhilosopherFile, error) {
	cfg := PhilosopherFile{
		BrokerAddr: "127.0.0.1:9400",
		Think:      "0s..10s",
		Eat:        "0s..10s",
		Strict:     true,
	}
	if err := loadToml(path, &cfg); err != nil {
		return PhilosopherFile{}, err
	}
	if strings.TrimSpace(cfg.PhilosopherID) == "" {
		cfg.PhilosopherID = fmt.Sprintf("phil.%d", cfg.Seat)
	}
	if err := ValidatePhilosopherFile(cfg); err != nil {
		return PhilosopherFile{}, err
	}
	return cfg, nil
}

func LoadSimulationFile(path string) (SimulationFile, error) {
	cfg := DefaultSimulationFile()
	if err := loadToml(path, &cfg); err != nil {
		return SimulationFile{}, err
	}
	if err := ValidateSimulationFile(cfg); err != nil {
		return SimulationFile{}, err
	}
	return cfg, nil
}

func DefaultSimulationFile() SimulationFile {
	return SimulationFile{
		Seats:       5,
		Meals:       10,
		Variant:     string(arbiter.VariantWakeup),
		Fairness:    string(arbiter.FairnessNone),
		Strict:      true,
		DinerStrict: true,
		Think:       "10ms..100ms",
		Eat:         "10ms..100ms",
		Retry:       "250ms..5s",
	}
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateBrokerFile(cfg BrokerFile) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("broker config missing addr")
	}
	if cfg.Seats < table.MinSeats {
		return fmt.Errorf("broker config seats=%d below minimum %d", cfg.Seats, table.MinSeats)
	}
	if err := validatePolicy(cfg.Variant, cfg.Fairness); err != nil {
		return fmt.Errorf("broker config: %w", err)
	}
	return validateSession(cfg.SessionSecurityMode, cfg.SessionTLSEnabled, cfg.SessionTLSMutual,
		cfg.SessionTLSCertFile, cfg.SessionTLSKeyFile, cfg.SessionTLSCAFile, true)
}

func ValidatePhilosopherFile(cfg PhilosopherFile) error {
	if strings.TrimSpace(cfg.BrokerAddr) == "" {
		return fmt.Errorf("philosopher config missing broker_addr")
	}
	if cfg.Seat < 0 {
		return fmt.Errorf("philosopher config seat=%d must be >= 0", cfg.Seat)
	}
	if cfg.Meals < 0 {
		return fmt.Errorf("philosopher config meals=%d must be >= 0", cfg.Meals)
	}
	if _, err := ParseRange(cfg.Think); err != nil {
		return fmt.Errorf("philosopher config think: %w", err)
	}
	if _, err := ParseRange(cfg.Eat); err != nil {
		return fmt.Errorf("philosopher config eat: %w", err)
	}
	return validateSession(cfg.SessionSecurityMode, cfg.SessionTLSEnabled, cfg.SessionTLSMutual,
		cfg.SessionTLSCertFile, cfg.SessionTLSKeyFile, cfg.SessionTLSCAFile, false)
}

func ValidateSimulationFile(cfg SimulationFile) error {
	_, err := cfg.Simulation()
	return err
}

func validatePolicy(variant, fairness string) error {
	v, err := arbiter.ParseVariant(variant)
	if err != nil {
		return err
	}
	f, err := arbiter.ParseFairness(fairness)
	if err != nil {
		return err
	}
	return arbiter.Config{Variant: v, Fairness: f}.Validate()
}

func validateSession(mode string, enabled, mutual bool, certFile, keyFile, caFile string, server bool) error {
	cfg := session.Config{
		SecurityMode: session.SecurityMode(strings.TrimSpace(mode)),
		TLS: session.TLSConfig{
			Enabled:  enabled,
			Mutual:   mutual,
			CertFile: strings.TrimSpace(certFile),
			KeyFile:  strings.TrimSpace(keyFile),
			CAFile:   strings.TrimSpace(caFile),
		},
	}
	if server {
		return cfg.ValidateServerTransport()
	}
	return cfg.ValidateClientTransport()
}

// ParseRange reads "min..max" or a single duration meaning min == max.
func ParseRange(raw string) (Range, error) {
	raw = strings.TrimSpace(raw)
	lo, hi, found := strings.Cut(raw, "..")
	if !found {
		hi = lo
	}
	minD, err := time.ParseDuration(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, fmt.Errorf("range %q: %w", raw, err)
	}
	maxD, err := time.ParseDuration(strings.TrimSpace(hi))
	if err != nil {
		return Range{}, fmt.Errorf("range %q: %w", raw, err)
	}
	if minD < 0 || maxD < minD {
		return Range{}, fmt.Errorf("range %q: want 0 <= min <= max", raw)
	}
	return Range{Min: minD, Max: maxD}, nil
}

// Range is a parsed "min..max" duration pair.
type Range struct {
	Min time.Duration
	Max time.Duration
}

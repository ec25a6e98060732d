package arbiter

import (
	"errors"
	"fmt"
	"strings"
)

// Variant selects how refused requests are answered.
type Variant string

const (
	// VariantWakeup defers refused requests in the waiting set and grants
	// them when a neighbour releases. Deny is never sent.
	VariantWakeup Variant = "wakeup"
	// VariantPolling answers every refused request with Deny and keeps no
	// waiting set; the philosopher retries on its own schedule.
	VariantPolling Variant = "polling"
)

// Fairness selects how contending waiters are ordered.
type Fairness string

const (
	FairnessNone Fairness = "none"
	// FairnessTicket stamps deferred seats with increasing tickets and never
	// grants a seat past an adjacent waiter holding an older ticket.
	FairnessTicket Fairness = "ticket"
)

var ErrInvalidConfig = errors.New("arbiter: invalid config")

type Config struct {
	Strict   bool
	Variant  Variant
	Fairness Fairness
	Audit    bool
}

func DefaultConfig() Config {
	return Config{
		Strict:   true,
		Variant:  VariantWakeup,
		Fairness: FairnessNone,
	}
}

// WithDefaults fills empty enum fields.
func (c Config) WithDefaults() Config {
	if c.Variant == "" {
		c.Variant = VariantWakeup
	}
	if c.Fairness == "" {
		c.Fairness = FairnessNone
	}
	return c
}

func (c Config) Validate() error {
	if _, err := ParseVariant(string(c.Variant)); err != nil {
		return err
	}
	if _, err := ParseFairness(string(c.Fairness)); err != nil {
		return err
	}
	if c.Fairness == FairnessTicket && c.Variant != VariantWakeup {
		return fmt.Errorf("%w: ticket fairness requires the %s variant", ErrInvalidConfig, VariantWakeup)
	}
	return nil
}

func ParseVariant(raw string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(raw))); v {
	case VariantWakeup, VariantPolling:
		return v, nil
	default:
		return "", fmt.Errorf("%w: variant %q", ErrInvalidConfig, raw)
	}
}

func ParseFairness(raw string) (Fairness, error) {
	switch f := Fairness(strings.ToLower(strings.TrimSpace(raw))); f {
	case FairnessNone, FairnessTicket:
		return f, nil
	default:
		return "", fmt.Errorf("%w: fairness %q", ErrInvalidConfig, raw)
	}
}

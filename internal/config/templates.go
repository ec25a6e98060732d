package config

import (
	"fmt"
	"os"
	"strings"
)

// Kinds lists the template kinds Template accepts.
var Kinds = []string{"broker", "philosopher", "simulation"}

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "broker":
		return brokerTemplate, nil
	case "philosopher":
		return philosopherTemplate, nil
	case "simulation":
		return simulationTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// Validate loads path as kind and reports the first problem.
func Validate(kind, path string) error {
	var err error
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "broker":
		_, err = LoadBrokerFile(path)
	case "philosopher":
		_, err = LoadPhilosopherFile(path)
	case "simulation":
		_, err = LoadSimulationFile(path)
	default:
		err = fmt.Errorf("unknown config kind: %s", kind)
	}
	return err
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const brokerTemplate = `addr = ":9400"
admin_listen_addr = "127.0.0.1:9401"
seats = 5
variant = "wakeup"
fairness = "none"
strict = true
audit = false
require_identity_binding = false
cors_origins = ["http://localhost:3000"]
admin_token = ""
session_security_mode = "development"
session_tls_enabled = false
`

const philosopherTemplate = `broker_addr = "127.0.0.1:9400"
philosopher_id = "phil.0"
seat = 0
think = "0s..10s"
eat = "0s..10s"
strict = true
meals = 0
max_connect_attempts = 0
session_security_mode = "development"
session_tls_enabled = false
`

const simulationTemplate = `seats = 5
meals = 10
duration = ""
seed = 0
variant = "wakeup"
fairness = "none"
strict = true
audit = true
diner_strict = true
think = "10ms..100ms"
eat = "10ms..100ms"
retry = "250ms..5s"
`

package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/danmuck/tablectl/internal/config"
)

// defaultPath maps a config kind to the command that reads it.
func defaultPath(kind string) (string, error) {
	switch kind {
	case "broker":
		return "cmd/tablectl/config.toml", nil
	case "philosopher":
		return "cmd/philctl/config.toml", nil
	case "simulation":
		return "cmd/simctl/config.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s (want %s)", kind, strings.Join(config.Kinds, "|"))
	}
}

func main() {
	kind := flag.String("kind", "broker", "config kind: broker|philosopher|simulation")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			p, err := defaultPath(*kind)
			if err != nil {
				log.Fatal(err)
			}
			path = p
		}
		if err := config.Validate(*kind, path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		p, err := defaultPath(*kind)
		if err != nil {
			log.Fatal(err)
		}
		target = p
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

package main

import (
	"path/filepath"
	"testing"

	"github.com/danmuck/tablectl/internal/config"
	"github.com/danmuck/tablectl/internal/testutil/testlog"
)

func TestDefaultPathCoversEveryKind(t *testing.T) {
	testlog.Start(t)
	for _, kind := range config.Kinds {
		if _, err := defaultPath(kind); err != nil {
			t.Fatalf("kind %s has no default path: %v", kind, err)
		}
	}
	if _, err := defaultPath("kitchen"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestTemplatesValidate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for _, kind := range config.Kinds {
		path := filepath.Join(dir, kind+".toml")
		if err := config.WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		if err := config.Validate(kind, path); err != nil {
			t.Fatalf("%s template does not validate: %v", kind, err)
		}
	}
}

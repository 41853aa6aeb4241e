package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: \"123:abc\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Logger.Level != "info" {
		t.Errorf("logger level = %q, want info", cfg.Logger.Level)
	}
	if cfg.Media.MaxConcurrent != 3 {
		t.Errorf("max concurrent = %d, want 3", cfg.Media.MaxConcurrent)
	}
	if cfg.Ingest.RestartDelay != 5*time.Second {
		t.Errorf("restart delay = %v, want 5s", cfg.Ingest.RestartDelay)
	}
	if cfg.Retention.MaxAge != 90*24*time.Hour {
		t.Errorf("retention max age = %v, want 2160h", cfg.Retention.MaxAge)
	}
	if len(cfg.Scheduler.Tasks) == 0 {
		t.Error("default scheduler tasks missing")
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
logger:
  level: debug
  json: true
media:
  max_concurrent: 5
  dir: /tmp/cache
ingest:
  restart_delay: 10s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Logger.Level != "debug" || !cfg.Logger.JSON {
		t.Errorf("logger = %q/%v, want debug/json", cfg.Logger.Level, cfg.Logger.JSON)
	}
	if cfg.Media.MaxConcurrent != 5 {
		t.Errorf("max concurrent = %d, want 5", cfg.Media.MaxConcurrent)
	}
	if cfg.Ingest.RestartDelay != 10*time.Second {
		t.Errorf("restart delay = %v, want 10s", cfg.Ingest.RestartDelay)
	}
}

func TestLoadConfigRequiresToken(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: info\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("missing token should fail validation")
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "bad log level",
			content: "telegram:\n  token: \"123:abc\"\nlogger:\n  level: verbose\n",
		},
		{
			name:    "concurrency above bound",
			content: "telegram:\n  token: \"123:abc\"\nmedia:\n  max_concurrent: 100\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("invalid config should fail validation")
			}
		})
	}
}

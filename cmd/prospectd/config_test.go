// WHAT: Tests for config loading: defaults, YAML merge, validation.
// WHY: A silently mis-parsed provider section means a research source
// that never fetches; better to fail at startup.
package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
research:
  cooldown_hours: 6
  news:
    base_url: https://serp.example/search
    headers:
      X-API-Key: ${SERP_KEY}
flight:
  base_url: https://flights.example/v1/flights
  access_key: ${FLIGHT_KEY}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.DBPath != "db/prospect.db" {
		t.Errorf("default db_path lost: %q", cfg.DBPath)
	}
	if cfg.Research.News.Headers["X-API-Key"] != "${SERP_KEY}" {
		t.Errorf("headers = %v (must stay unexpanded until call time)", cfg.Research.News.Headers)
	}

	svcCfg := cfg.Research.serviceConfig()
	if svcCfg.Cooldown != 6*time.Hour {
		t.Errorf("cooldown = %v", svcCfg.Cooldown)
	}
	if svcCfg.News.BaseURL != "https://serp.example/search" {
		t.Errorf("news base_url = %q", svcCfg.News.BaseURL)
	}
}

func TestLoadConfigRejectsBadInsightProvider(t *testing.T) {
	path := writeConfig(t, `
insight:
  provider: grok
  api_key: x
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestLoadConfigRequiresInsightKey(t *testing.T) {
	path := writeConfig(t, `
insight:
  provider: openai
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing api_key")
	}
}

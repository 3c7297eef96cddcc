package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
environment: test
feed:
  websocket_url: wss://feed.example.com/ws
  instruments: [EURUSD, GBPUSD]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Stealth.ProtectionLevel != "medium" {
		t.Fatalf("expected medium protection, got %s", cfg.Stealth.ProtectionLevel)
	}
	if cfg.Engine.CooldownInterval != 15*time.Minute {
		t.Fatalf("expected 15m cooldown, got %v", cfg.Engine.CooldownInterval)
	}
	if cfg.Engine.FallbackFloor < cfg.Engine.MinConfidence {
		t.Fatalf("defaults violate fallback floor constraint")
	}
}

func TestLoadRejectsUnknownProtectionLevel(t *testing.T) {
	body := baseYAML + `
stealth:
  protection_level: paranoid
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for unknown protection level")
	}
}

func TestLoadRejectsCapInversion(t *testing.T) {
	body := baseYAML + `
stealth:
  per_instrument_cap: 10
  total_cap: 2
`
	_, err := Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "per_instrument_cap") {
		t.Fatalf("expected cap inversion error, got %v", err)
	}
}

func TestLoadRejectsDelayInversion(t *testing.T) {
	body := baseYAML + `
stealth:
  entry_delay_min: 60s
  entry_delay_max: 10s
`
	_, err := Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "entry_delay_min") {
		t.Fatalf("expected delay inversion error, got %v", err)
	}
}

func TestLoadRejectsFallbackBelowMinConfidence(t *testing.T) {
	body := baseYAML + `
engine:
  min_confidence: 80
  fallback_floor: 60
`
	_, err := Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "fallback_floor") {
		t.Fatalf("expected fallback floor error, got %v", err)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("FEED_API_KEY", "k-123")
	t.Setenv("INSTRUMENTS", "USDJPY,AUDUSD")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("PROTECTION_LEVEL", "ghost")
	t.Setenv("STEALTH_SEED", "42")

	cfg, err := LoadWithEnv(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if cfg.Feed.APIKey != "k-123" {
		t.Fatalf("api key override missed")
	}
	if len(cfg.Feed.Instruments) != 2 || cfg.Feed.Instruments[0] != "USDJPY" {
		t.Fatalf("instruments override missed: %v", cfg.Feed.Instruments)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Fatalf("brokers override missed: %v", cfg.Kafka.Brokers)
	}
	if cfg.Stealth.ProtectionLevel != "ghost" || cfg.Stealth.Seed != 42 {
		t.Fatalf("stealth overrides missed: %s %d", cfg.Stealth.ProtectionLevel, cfg.Stealth.Seed)
	}
}

func TestLoadWithEnvRevalidates(t *testing.T) {
	t.Setenv("PROTECTION_LEVEL", "invisible")
	if _, err := LoadWithEnv(writeConfig(t, baseYAML)); err == nil {
		t.Fatalf("expected validation error for env protection level")
	}
}

func TestBaseSizeFallsBackToDefault(t *testing.T) {
	body := baseYAML + `
engine:
  default_size: 0.5
  base_sizes:
    EURUSD: 2.0
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.BaseSize("EURUSD"); got != 2.0 {
		t.Fatalf("expected configured base size, got %v", got)
	}
	if got := cfg.BaseSize("GBPUSD"); got != 0.5 {
		t.Fatalf("expected default size, got %v", got)
	}
}

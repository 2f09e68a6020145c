// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Recommend.DecayRate != 0.02 {
		t.Errorf("decay rate = %v, want 0.02", cfg.Recommend.DecayRate)
	}
	if cfg.Recommend.DefaultK != 5 {
		t.Errorf("default k = %d, want 5", cfg.Recommend.DefaultK)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
recommend:
  default_k: 10
  max_k: 50
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RECOMMEND_DECAY_RATE", "0.05")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// File overrides defaults.
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090 from file", cfg.Server.Port)
	}
	if cfg.Recommend.DefaultK != 10 {
		t.Errorf("default_k = %d, want 10 from file", cfg.Recommend.DefaultK)
	}
	// Env overrides file and defaults.
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug from env", cfg.Logging.Level)
	}
	if cfg.Recommend.DecayRate != 0.05 {
		t.Errorf("decay rate = %v, want 0.05 from env", cfg.Recommend.DecayRate)
	}
	// Defaults survive where nothing overrides.
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want default 30s", cfg.Server.Timeout)
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("cors origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("cors[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"decay rate one", func(c *Config) { c.Recommend.DecayRate = 1.0 }},
		{"decay rate negative", func(c *Config) { c.Recommend.DecayRate = -0.1 }},
		{"max_k below default_k", func(c *Config) { c.Recommend.MaxK = 1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"empty index dir", func(c *Config) { c.Index.Dir = "" }},
		{"ingest enabled without key", func(c *Config) {
			c.Ingest.Enabled = true
			c.Ingest.APIKey = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config passed validation")
			}
		})
	}
}

func TestUnmappedEnvIgnored(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("PATH mapped to %q, want dropped", got)
	}
	if got := envTransformFunc("HTTP_PORT"); got != "server.port" {
		t.Errorf("HTTP_PORT mapped to %q, want server.port", got)
	}
	if got := envTransformFunc("NEWSPRISM_HTTP_PORT"); got != "server.port" {
		t.Errorf("NEWSPRISM_HTTP_PORT mapped to %q, want server.port", got)
	}
}

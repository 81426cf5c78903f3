package config

import "testing"

type testConfig struct {
	Addr    string `env:"WORKLOG_TEST_ADDR" envDefault:":8080"`
	Retries int    `env:"WORKLOG_TEST_RETRIES" envDefault:"3"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, ":8080")
	}
	if cfg.Retries != 3 {
		t.Fatalf("retries = %d, want 3", cfg.Retries)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("WORKLOG_TEST_ADDR", ":9999")
	t.Setenv("WORKLOG_TEST_RETRIES", "7")

	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("addr = %q, want %q", cfg.Addr, ":9999")
	}
	if cfg.Retries != 7 {
		t.Fatalf("retries = %d, want 7", cfg.Retries)
	}
}

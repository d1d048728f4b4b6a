package db

import (
	"testing"
	"time"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig("postgres://u:p@localhost:5432/notesync", 8, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConns != 8 || cfg.MinConns != 2 {
		t.Errorf("expected 8/2 conns, got %d/%d", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.MaxConnIdleTime != 10*time.Minute {
		t.Errorf("unexpected idle time %s", cfg.MaxConnIdleTime)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != applicationName {
		t.Errorf("expected application_name %q, got %q", applicationName, got)
	}
	if got := cfg.ConnConfig.RuntimeParams["timezone"]; got != "UTC" {
		t.Errorf("expected UTC session, got %q", got)
	}
}

func TestPoolConfig_KeepsExplicitParams(t *testing.T) {
	cfg, err := poolConfig("postgres://localhost/notesync?application_name=ops&timezone=America/Chicago", 4, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "ops" {
		t.Errorf("expected application_name from url, got %q", got)
	}
	if got := cfg.ConnConfig.RuntimeParams["timezone"]; got != "America/Chicago" {
		t.Errorf("expected timezone from url, got %q", got)
	}
}

func TestPoolConfig_BadURL(t *testing.T) {
	if _, err := poolConfig("://nope", 4, 1); err == nil {
		t.Error("expected parse error")
	}
}

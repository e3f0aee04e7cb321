package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if err := cfg.ValidateSecurity(); err == nil {
		t.Fatalf("expected missing AUTH_SECRET to be rejected")
	}
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")
	t.Setenv("NOTIFY_CHANNEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Address())
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("expected 5s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.AccessTokenTTL() != 480*time.Minute {
		t.Fatalf("expected token ttl fallback, got %s", cfg.AccessTokenTTL())
	}
	if cfg.NotifyChannel != "ledger-changes" {
		t.Fatalf("expected default notify channel, got %q", cfg.NotifyChannel)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	if _, err := Load(); err == nil {
		t.Fatalf("expected malformed REDIS_DB to fail")
	}
}

func TestValidateSecurity(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		ok     bool
	}{
		{name: "short", secret: "short"},
		{name: "repeated", secret: strings.Repeat("a", 40)},
		{name: "strong", secret: "0123456789abcdef0123456789abcdef", ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Config{AuthSecret: tc.secret}.ValidateSecurity()
			if tc.ok && err != nil {
				t.Fatalf("expected pass, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

package config

import (
	"testing"
	"time"
)

func TestEffectiveSessionTTLCapsAtTwelveHours(t *testing.T) {
	cases := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{0, 12 * time.Hour},
		{3 * time.Hour, 3 * time.Hour},
		{12 * time.Hour, 12 * time.Hour},
		{48 * time.Hour, 12 * time.Hour},
	}
	for _, tc := range cases {
		cfg := &AppConfig{SessionTTL: tc.ttl}
		if got := cfg.EffectiveSessionTTL(); got != tc.want {
			t.Fatalf("EffectiveSessionTTL(%s) = %s, want %s", tc.ttl, got, tc.want)
		}
	}
}

func TestLoginRateDefaults(t *testing.T) {
	cfg := &AppConfig{}
	if got := cfg.LoginRateLimit(); got != 5 {
		t.Fatalf("expected default limit 5, got %d", got)
	}
	if got := cfg.LoginRateWindow(); got != time.Minute {
		t.Fatalf("expected default window 1m, got %s", got)
	}
	cfg.Security.LoginRateLimit = 10
	cfg.Security.LoginRateWindow = 30
	if got := cfg.LoginRateLimit(); got != 10 {
		t.Fatalf("expected configured limit, got %d", got)
	}
	if got := cfg.LoginRateWindow(); got != 30*time.Second {
		t.Fatalf("expected configured window, got %s", got)
	}
}

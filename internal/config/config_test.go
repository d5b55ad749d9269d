package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_LOCATION_ID", "")
	t.Setenv("SYNC_PROBE_SECONDS", "")
	t.Setenv("SERVER_URL", "http://pos.example.com/")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.LocationID != "main-store" {
		t.Fatalf("expected default location main-store, got %q", cfg.LocationID)
	}
	if cfg.SyncProbeSeconds != 15 {
		t.Fatalf("expected default probe interval 15, got %d", cfg.SyncProbeSeconds)
	}
	if cfg.ServerURL != "http://pos.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.ServerURL)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadRejectsBadNumericValues(t *testing.T) {
	t.Setenv("SYNC_PROBE_SECONDS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.SyncProbeSeconds != 15 {
		t.Fatalf("expected fallback probe interval, got %d", cfg.SyncProbeSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 43200 {
		t.Fatalf("expected fallback token ttl, got %d", cfg.AccessTokenTTLMinutes)
	}
}

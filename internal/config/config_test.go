package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENDPOINT_URL", "")
	t.Setenv("NEXT_PUBLIC_ENDPOINT_URL", "http://backend.local/")
	t.Setenv("WHATSAPP_POLL_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.BackendURL != "http://backend.local" {
		t.Fatalf("expected trimmed fallback backend url, got %s", cfg.BackendURL)
	}
	if cfg.WhatsAppPollInterval != 2*time.Second {
		t.Fatalf("expected 2s poll interval, got %s", cfg.WhatsAppPollInterval)
	}
	if cfg.WhatsAppMaxRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.WhatsAppMaxRetries)
	}
	if cfg.SessionTTL != 8*time.Hour {
		t.Fatalf("expected 8h session ttl, got %s", cfg.SessionTTL)
	}
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "many")
	if got := Load().RateLimitBurst; got != 30 {
		t.Fatalf("expected fallback 30, got %d", got)
	}
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("INTSYNC_TEST_A=file\nINTSYNC_TEST_B=file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("INTSYNC_TEST_A", "process")
	t.Setenv("INTSYNC_TEST_B", "")
	os.Unsetenv("INTSYNC_TEST_B")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("INTSYNC_TEST_A"); got != "process" {
		t.Fatalf("expected process value to win, got %s", got)
	}
	if got := os.Getenv("INTSYNC_TEST_B"); got != "file" {
		t.Fatalf("expected file value, got %s", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}

func TestDefaultRoutePolicy(t *testing.T) {
	policy := DefaultRoutePolicy()
	cases := []struct {
		method string
		path   string
		role   string
		want   bool
	}{
		{"GET", "/api/audit", "admin", true},
		{"GET", "/api/audit", "manager", false},
		{"GET", "/api/whatsapp", "manager", true},
		{"POST", "/api/whatsapp", "staff", false},
		{"GET", "/whatsapp", "staff", false},
		{"GET", "/api/attributes", "staff", true},
		{"POST", "/api/attributes", "staff", false},
		{"DELETE", "/api/attributes/abc", "manager", true},
		{"POST", "/attributes/abc/delete", "staff", false},
		{"GET", "/attributes", "staff", true},
		{"GET", "/api/tickets", "staff", true},
		{"GET", "/auditing", "staff", true},
	}
	for _, tt := range cases {
		if got := policy.Allowed(tt.method, tt.path, tt.role); got != tt.want {
			t.Fatalf("Allowed(%s %s, %s)=%v, want %v", tt.method, tt.path, tt.role, got, tt.want)
		}
	}
}

func TestParseRoutePolicyLongestPrefixWins(t *testing.T) {
	policy, err := ParseRoutePolicy([]byte(`
rules:
  - prefix: /api
    roles: [admin]
  - prefix: /api/tickets
    roles: [admin, staff]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !policy.Allowed("GET", "/api/tickets/1", "staff") {
		t.Fatalf("expected staff to reach tickets")
	}
	if policy.Allowed("GET", "/api/customers", "staff") {
		t.Fatalf("expected staff to be denied customers")
	}
}

func TestParseRoutePolicyRejectsInvalid(t *testing.T) {
	if _, err := ParseRoutePolicy([]byte("rules:\n  - prefix: api\n    roles: [admin]\n")); err == nil {
		t.Fatalf("expected error for relative prefix")
	}
	if _, err := ParseRoutePolicy([]byte("rules:\n  - prefix: /api\n")); err == nil {
		t.Fatalf("expected error for missing roles")
	}
}

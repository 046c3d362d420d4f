package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"CHAT_API_BASE_URL", "CHAT_WS_URL", "CHAT_TOKEN", "CHAT_TOKEN_FILE", "PORT", "APP_ENV"} {
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8080" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.WSURL != "ws://localhost:8080/api/v1/ws" {
		t.Errorf("WSURL = %q", cfg.WSURL)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
}

func TestBearerTokenPrefersEnv(t *testing.T) {
	cfg := &Config{Token: "env-token", TokenFile: "/nonexistent"}
	if got := cfg.BearerToken(); got != "env-token" {
		t.Errorf("BearerToken = %q", got)
	}
}

func TestBearerTokenReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  file-token\n"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}

	cfg := &Config{TokenFile: path}
	if got := cfg.BearerToken(); got != "file-token" {
		t.Errorf("BearerToken = %q, want trimmed file contents", got)
	}
}

func TestBearerTokenEmptyWithoutSources(t *testing.T) {
	cfg := &Config{}
	if got := cfg.BearerToken(); got != "" {
		t.Errorf("BearerToken = %q, want empty", got)
	}

	cfg = &Config{TokenFile: "/nonexistent/token"}
	if got := cfg.BearerToken(); got != "" {
		t.Errorf("BearerToken = %q, want empty on unreadable file", got)
	}
}

func TestNormalizeEnv(t *testing.T) {
	cases := map[string]string{
		"dev":        "development",
		"Develop":    "development",
		"PROD":       "production",
		"staging":    "staging",
		"test":       "test",
		" custom ":   "custom",
		"production": "production",
	}
	for in, want := range cases {
		if got := normalizeEnv(in); got != want {
			t.Errorf("normalizeEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

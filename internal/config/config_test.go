package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.AuthMode != AuthModeJWT || cfg.SweepInterval != 100*time.Millisecond {
		t.Fatalf("defaults = %+v", cfg)
	}
	if !cfg.DefaultTimeControl.Unlimited() {
		t.Fatalf("default time control should be unlimited")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_MODE", "accounts")
	t.Setenv("ACCOUNTS_BASE_URL", "http://accounts:8080")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("DEFAULT_TIME_CONTROL", "3+2")
	t.Setenv("SWEEP_INTERVAL_MS", "50")
	t.Setenv("PEER_SEND_BUFFER", "-3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.DefaultTimeControl.InitialMs != 180_000 || cfg.DefaultTimeControl.IncrementMs != 2_000 {
		t.Fatalf("time control = %+v", cfg.DefaultTimeControl)
	}
	if cfg.SweepInterval != 50*time.Millisecond || cfg.PeerSendBuffer != 64 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	if _, err := Load(); err == nil {
		t.Fatalf("jwt mode without secret should fail")
	}
	t.Setenv("AUTH_MODE", "magic")
	if _, err := Load(); err == nil {
		t.Fatalf("unknown auth mode should fail")
	}
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DEFAULT_TIME_CONTROL", "fast please")
	if _, err := Load(); err == nil {
		t.Fatalf("bad time control should fail")
	}
}

func TestLoadClient(t *testing.T) {
	if _, err := LoadClient(); err == nil {
		t.Fatalf("missing url should fail")
	}
	t.Setenv("MATCH_WS_URL", "ws://localhost:8080/ws")
	t.Setenv("MATCH_TOKEN", "tok")
	t.Setenv("MATCH_RECONNECT_DELAY_MS", "250")
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RetryDelay != 250*time.Millisecond || cfg.Locale != "en" || cfg.GameID != "" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("MATCH_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MATCH_TEST_DOTENV", "")
	os.Unsetenv("MATCH_TEST_DOTENV")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("MATCH_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("MATCH_TEST_DOTENV = %q", got)
	}
}

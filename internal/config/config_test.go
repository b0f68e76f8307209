package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "serene.db" || cfg.LogFormat != "text" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.TickInterval != time.Second || cfg.IdleTimeout != 30*time.Minute {
		t.Errorf("durations = %s, %s", cfg.TickInterval, cfg.IdleTimeout)
	}
	if cfg.ChallengeTarget != 3 || cfg.PointsPerComplete != 10 {
		t.Errorf("challenge settings = %d, %d", cfg.ChallengeTarget, cfg.PointsPerComplete)
	}
	if cfg.JWTSecret == "" {
		t.Error("development should fall back to a dev secret")
	}
	if cfg.PushEnabled() {
		t.Error("push should be disabled without VAPID keys")
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"SERENE_PORT":              "9090",
		"SERENE_LOG_FORMAT":        "json",
		"SERENE_TICK_INTERVAL":     "500ms",
		"SERENE_CHALLENGE_TARGET":  "4",
		"SERENE_ALLOWED_ORIGINS":   "app.serene.test, localhost:5173 ,",
		"SERENE_VAPID_PUBLIC_KEY":  "pub",
		"SERENE_VAPID_PRIVATE_KEY": "priv",
	}))
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Port != "9090" || cfg.LogFormat != "json" || cfg.TickInterval != 500*time.Millisecond || cfg.ChallengeTarget != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "localhost:5173" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
	if !cfg.PushEnabled() {
		t.Error("push should be enabled")
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{"SERENE_ENV": "production"}))
	if err == nil || !strings.Contains(err.Error(), "SERENE_JWT_SECRET") {
		t.Fatalf("err = %v, want secret error", err)
	}

	_, err = FromEnv(envMap(map[string]string{"SERENE_ENV": "production", "SERENE_JWT_SECRET": "short"}))
	if err == nil {
		t.Error("short secret should be rejected in production")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{
		"SERENE_PORT":             "0",
		"SERENE_LOG_LEVEL":        "loud",
		"SERENE_CHALLENGE_TARGET": "1",
		"SERENE_VAPID_PUBLIC_KEY": "only-public",
	}))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"port", "log level", "challenge target", "VAPID"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestBadDuration(t *testing.T) {
	if _, err := FromEnv(envMap(map[string]string{"SERENE_TICK_INTERVAL": "soon"})); err == nil {
		t.Error("expected duration parse error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SERENE_PORT=7070\nSERENE_DB_PATH=/tmp/dotenv.db\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SERENE_DB_PATH", "/tmp/from-env.db")
	t.Cleanup(func() { os.Unsetenv("SERENE_PORT") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("port = %q, want value from .env", cfg.Port)
	}
	if cfg.DBPath != "/tmp/from-env.db" {
		t.Errorf("db path = %q, environment should win", cfg.DBPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings read from SERENE_* environment variables.
type Config struct {
	Env               string
	Port              string
	DBPath            string
	LogLevel          string
	LogFormat         string
	JWTSecret         string
	TokenIssuer       string
	VAPIDPublicKey    string
	VAPIDPrivateKey   string
	PushSubject       string
	JournalPassphrase string
	AllowedOrigins    []string
	TickInterval      time.Duration
	IdleTimeout       time.Duration
	ChallengeTarget   int
	PointsPerComplete int
}

const devSecret = "serene-development-secret"

// Load reads an optional .env file at path (skipped when missing) and then
// the environment. Values already set in the environment win over the file.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates it.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Env:               get("SERENE_ENV", "development"),
		Port:              get("SERENE_PORT", "8080"),
		DBPath:            get("SERENE_DB_PATH", "serene.db"),
		LogLevel:          get("SERENE_LOG_LEVEL", "info"),
		LogFormat:         get("SERENE_LOG_FORMAT", "text"),
		JWTSecret:         get("SERENE_JWT_SECRET", ""),
		TokenIssuer:       get("SERENE_TOKEN_ISSUER", "serene"),
		VAPIDPublicKey:    get("SERENE_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:   get("SERENE_VAPID_PRIVATE_KEY", ""),
		PushSubject:       get("SERENE_PUSH_SUBJECT", "mailto:support@serene.app"),
		JournalPassphrase: getenv("SERENE_JOURNAL_PASSPHRASE"),
	}
	if origins := get("SERENE_ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	var err error
	if cfg.TickInterval, err = duration(get("SERENE_TICK_INTERVAL", "1s")); err != nil {
		return Config{}, fmt.Errorf("SERENE_TICK_INTERVAL: %w", err)
	}
	if cfg.IdleTimeout, err = duration(get("SERENE_SESSION_IDLE_TIMEOUT", "30m")); err != nil {
		return Config{}, fmt.Errorf("SERENE_SESSION_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ChallengeTarget, err = strconv.Atoi(get("SERENE_CHALLENGE_TARGET", "3")); err != nil {
		return Config{}, fmt.Errorf("SERENE_CHALLENGE_TARGET: %w", err)
	}
	if cfg.PointsPerComplete, err = strconv.Atoi(get("SERENE_CHALLENGE_POINTS", "10")); err != nil {
		return Config{}, fmt.Errorf("SERENE_CHALLENGE_POINTS: %w", err)
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = devSecret
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// PushEnabled reports whether VAPID keys are configured.
func (c Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("port %q is not a valid TCP port", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level %q must be debug, info, warn or error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.LogFormat))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("SERENE_JWT_SECRET is required outside development"))
	} else if !c.IsDevelopment() && len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("SERENE_JWT_SECRET must be at least 32 characters"))
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("VAPID public and private keys must be set together"))
	}
	if c.TickInterval <= 0 || c.TickInterval > time.Minute {
		errs = append(errs, fmt.Errorf("tick interval %s must be between 0 and 1m", c.TickInterval))
	}
	if c.IdleTimeout < time.Minute {
		errs = append(errs, fmt.Errorf("session idle timeout %s must be at least 1m", c.IdleTimeout))
	}
	if c.ChallengeTarget < 2 {
		errs = append(errs, fmt.Errorf("challenge target %d must be at least 2", c.ChallengeTarget))
	}
	if c.PointsPerComplete <= 0 {
		errs = append(errs, fmt.Errorf("challenge points %d must be positive", c.PointsPerComplete))
	}

	return errors.Join(errs...)
}

func duration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d, nil
}

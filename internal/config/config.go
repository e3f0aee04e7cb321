package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	NotifyChannel string        `envconfig:"NOTIFY_CHANNEL" default:"ledger-changes"`
	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`

	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads the process environment. Out-of-range numbers fall back to
// their defaults; secrets are never defaulted.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.NotifyChannel = strings.TrimSpace(cfg.NotifyChannel)
	if cfg.NotifyChannel == "" {
		cfg.NotifyChannel = "ledger-changes"
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// ValidateSecurity rejects configurations that would sign tokens with a weak
// key.
func (c Config) ValidateSecurity() error {
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if strings.Count(c.AuthSecret, c.AuthSecret[:1]) == len(c.AuthSecret) {
		return fmt.Errorf("AUTH_SECRET must not repeat a single character")
	}
	return nil
}

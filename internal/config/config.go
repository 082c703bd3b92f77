// Package config loads runtime configuration for the portal client
// from the environment, with an optional .env file.
package config

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the portal client.
type Config struct {
	BaseURL            string        `env:"PORTAL_BASE_URL,default=http://localhost:8000"`
	AccessCode         string        `env:"PORTAL_ACCESS_CODE"`
	HTTPTimeout        time.Duration `env:"PORTAL_HTTP_TIMEOUT,default=15s"`
	NotifyPollInterval time.Duration `env:"PORTAL_NOTIFY_POLL_INTERVAL,default=60s"`
	AuthPollInterval   time.Duration `env:"PORTAL_AUTH_POLL_INTERVAL,default=2s"`
	AttendanceTick     time.Duration `env:"PORTAL_ATTENDANCE_TICK,default=1s"`
	StatePath          string        `env:"PORTAL_STATE_PATH,default=.portal/state.json"`
	LogLevel           string        `env:"PORTAL_LOG_LEVEL,default=info"`
}

// Load returns a Config populated from the environment. A .env file in
// the working directory is folded in when present.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

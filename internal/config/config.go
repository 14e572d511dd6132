/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name below.
const EnvPrefix = "AURALUX_"

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
	LogBuffer   int    `env:"LOG_BUFFER" envDefault:"5000"` // recent lines kept for /api/v1/logs

	// Discord front-end
	DiscordToken  string `env:"DISCORD_TOKEN"` // also DISCORD_TOKEN
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`

	// Liveness / metrics HTTP server
	HTTPBind string `env:"HTTP_BIND" envDefault:"0.0.0.0"`
	HTTPPort int    `env:"HTTP_PORT"` // also PORT, default 8080

	// Playback
	IdleGrace      time.Duration `env:"IDLE_GRACE" envDefault:"300s"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	DefaultVolume  int           `env:"DEFAULT_VOLUME" envDefault:"50"`
	QueuePreview   int           `env:"QUEUE_PREVIEW" envDefault:"10"`
	PlayRate       float64       `env:"PLAY_RATE" envDefault:"1"` // play requests per second per guild
	PlayBurst      int           `env:"PLAY_BURST" envDefault:"5"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"15s"`
	FFmpegBin      string        `env:"FFMPEG_BIN" envDefault:"ffmpeg"`

	// Resolver
	ResolveTimeout  time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"45s"`
	YTDLPCookies    string        `env:"YTDLP_COOKIES"`
	RedisAddr       string        `env:"REDIS_ADDR"` // empty disables the resolve cache
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	ResolveCacheTTL time.Duration `env:"RESOLVE_CACHE_TTL" envDefault:"30m"`

	// Entitlements
	EntitlementsFile string   `env:"ENTITLEMENTS_FILE"`
	PremiumUsers     []string `env:"PREMIUM_USERS" envSeparator:","`
	PremiumGuilds    []string `env:"PREMIUM_GUILDS" envSeparator:","`
	PremiumContact   string   `env:"PREMIUM_CONTACT"` // who to ask for premium, shown in replies

	// Tracing configuration
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads an optional .env file and the environment, applies defaults,
// and validates the result.
func Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()
	return load()
}

// LoadUnvalidated reads the configuration like Load but skips Validate.
// Offline tools that never connect to Discord use it.
func LoadUnvalidated() (*Config, error) {
	_ = godotenv.Load()
	return parse()
}

func load() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.DiscordToken == "" {
		cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = getEnvInt("PORT", 8080)
	}
	cfg.PremiumUsers = compact(cfg.PremiumUsers)
	cfg.PremiumGuilds = compact(cfg.PremiumGuilds)
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, fmt.Errorf("%sDISCORD_TOKEN or DISCORD_TOKEN must be provided", EnvPrefix))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http port %d out of range", c.HTTPPort))
	}
	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		errs = append(errs, fmt.Errorf("default volume %d must be between 0 and 100", c.DefaultVolume))
	}
	if c.IdleGrace <= 0 {
		errs = append(errs, fmt.Errorf("idle grace must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be positive"))
	}
	if c.QueuePreview <= 0 {
		errs = append(errs, fmt.Errorf("queue preview must be positive"))
	}
	if c.PlayRate <= 0 || c.PlayBurst <= 0 {
		errs = append(errs, fmt.Errorf("play rate and burst must be positive"))
	}
	if strings.TrimSpace(c.CommandPrefix) == "" {
		errs = append(errs, fmt.Errorf("command prefix must not be empty"))
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing sample rate must be between 0 and 1"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// DefaultGain returns DefaultVolume as a 0-1 gain.
func (c *Config) DefaultGain() float64 {
	return float64(c.DefaultVolume) / 100
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func compact(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

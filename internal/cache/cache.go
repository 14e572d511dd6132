/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for resolved tracks.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/auralux/internal/models"
)

// DefaultTrackTTL is kept below the lifetime of signed media URLs.
const DefaultTrackTTL = 30 * time.Minute

// KeyTrack prefixes resolved track entries: + tier + ":" + query hash.
const KeyTrack = "auralux:resolve:"

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TrackTTL time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		TrackTTL:       DefaultTrackTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. An empty
// RedisAddr yields a permanently disabled cache.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. Redis being unreachable is not an
// error: the cache starts disabled and every lookup misses.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.TrackTTL <= 0 {
		cfg.TrackTTL = DefaultTrackTTL
	}
	if cfg.RedisAddr == "" {
		logger.Info().Msg("Redis cache not configured, running without caching")
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// TrackKey builds the cache key for a query at a quality tier. Queries
// differing only in case or surrounding space share an entry.
func TrackKey(query string, tier models.QualityTier) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return KeyTrack + tier.String() + ":" + hex.EncodeToString(sum[:12])
}

// GetTrack retrieves a cached resolution.
func (c *Cache) GetTrack(ctx context.Context, query string, tier models.QualityTier) (models.Track, bool) {
	var t models.Track
	found, err := c.get(ctx, TrackKey(query, tier), &t)
	if err != nil || !found || t.StreamRef == "" {
		return models.Track{}, false
	}
	c.logger.Debug().Str("title", t.Title).Str("tier", tier.String()).Msg("track cache hit")
	return t, true
}

// SetTrack caches a resolution.
func (c *Cache) SetTrack(ctx context.Context, query string, tier models.QualityTier, t models.Track) error {
	c.logger.Debug().Str("title", t.Title).Str("tier", tier.String()).Msg("caching track")
	return c.set(ctx, TrackKey(query, tier), t, c.config.TrackTTL)
}

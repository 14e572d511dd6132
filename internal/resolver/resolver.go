/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package resolver turns free-text queries and page URLs into playable
// tracks.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/auralux/internal/models"
	"github.com/friendsincode/auralux/internal/telemetry"
)

var (
	// ErrNotFound indicates the query matched nothing playable.
	ErrNotFound = errors.New("no playable result")

	// ErrResolutionFailed indicates the extractor itself failed.
	ErrResolutionFailed = errors.New("resolution failed")
)

// Format selectors passed to the extractor.
const (
	FormatStandard = "bestaudio[ext=m4a]/bestaudio[ext=mp3]/bestaudio"
	FormatHigh     = "bestaudio[acodec=opus]/bestaudio[ext=m4a]/bestaudio"
)

// DefaultTimeout bounds one Resolve call.
const DefaultTimeout = 45 * time.Second

// Resolver resolves a query at a quality tier.
type Resolver interface {
	Resolve(ctx context.Context, query string, tier models.QualityTier) (models.Track, error)
}

// Extractor fetches one track for target using a format selector. target
// is a page URL or an extractor search expression.
type Extractor interface {
	Extract(ctx context.Context, target, format string) (models.Track, error)
}

// TrackCache stores resolutions by query and tier.
type TrackCache interface {
	GetTrack(ctx context.Context, query string, tier models.QualityTier) (models.Track, bool)
	SetTrack(ctx context.Context, query string, tier models.QualityTier, t models.Track) error
}

// Gateway is the Resolver used by the bot. It searches through the primary
// extractor, retries YouTube URLs through the fallback and upgrades the
// format for the high tier.
type Gateway struct {
	primary  Extractor
	fallback Extractor
	cache    TrackCache
	timeout  time.Duration
	logger   zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithFallback sets the extractor used when the primary fails on a
// YouTube URL.
func WithFallback(e Extractor) Option {
	return func(g *Gateway) { g.fallback = e }
}

// WithCache enables result caching.
func WithCache(c TrackCache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGateway creates a gateway around the primary extractor.
func NewGateway(primary Extractor, logger zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		primary: primary,
		timeout: DefaultTimeout,
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve implements Resolver.
func (g *Gateway) Resolve(ctx context.Context, query string, tier models.QualityTier) (track models.Track, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.Track{}, ErrNotFound
	}

	ctx, span := telemetry.StartSpan(ctx, "resolver.Resolve",
		attribute.String("resolver.tier", tier.String()),
	)
	start := time.Now()
	defer func() {
		telemetry.ResolveDuration.WithLabelValues(tier.String(), resultLabel(err)).Observe(time.Since(start).Seconds())
		telemetry.EndSpan(span, err)
	}()

	if g.cache != nil {
		if t, ok := g.cache.GetTrack(ctx, query, tier); ok {
			telemetry.ResolveCacheHits.WithLabelValues("hit").Inc()
			return t, nil
		}
		telemetry.ResolveCacheHits.WithLabelValues("miss").Inc()
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	track, err = g.resolveStandard(ctx, query)
	if err != nil {
		return models.Track{}, err
	}

	if tier == models.TierHigh {
		ref := track.SourceRef
		if ref == "" {
			ref = query
		}
		hq, hqErr := g.primary.Extract(ctx, ref, FormatHigh)
		if hqErr != nil {
			// Premium requests still play at the standard tier.
			g.logger.Debug().Err(hqErr).Str("source_ref", ref).Msg("high quality fetch failed, using standard")
		} else {
			track = hq
		}
	}

	if g.cache != nil {
		if cerr := g.cache.SetTrack(ctx, query, tier, track); cerr != nil {
			g.logger.Debug().Err(cerr).Msg("caching resolution failed")
		}
	}

	g.logger.Debug().
		Str("title", track.Title).
		Str("tier", tier.String()).
		Dur("took", time.Since(start)).
		Msg("query resolved")
	return track, nil
}

func (g *Gateway) resolveStandard(ctx context.Context, query string) (models.Track, error) {
	target := query
	if !isURL(query) {
		target = "ytsearch1:" + query
	}

	track, err := g.primary.Extract(ctx, target, FormatStandard)
	if err == nil {
		return track, nil
	}

	if g.fallback != nil && isYouTubeURL(query) {
		g.logger.Info().Err(err).Str("query", query).Msg("primary extractor failed, trying fallback")
		fb, fbErr := g.fallback.Extract(ctx, query, FormatStandard)
		if fbErr == nil {
			return fb, nil
		}
		g.logger.Warn().Err(fbErr).Str("query", query).Msg("fallback extractor failed")
	}

	if errors.Is(err, ErrNotFound) {
		return models.Track{}, err
	}
	return models.Track{}, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isYouTubeURL(s string) bool {
	if !isURL(s) {
		return false
	}
	u, _ := url.Parse(s)
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

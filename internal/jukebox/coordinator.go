/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package jukebox turns front-end intents into resolver and scheduler
// calls. It holds no playback state of its own.
package jukebox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/friendsincode/auralux/internal/entitlement"
	"github.com/friendsincode/auralux/internal/models"
	"github.com/friendsincode/auralux/internal/playback"
	"github.com/friendsincode/auralux/internal/resolver"
	"github.com/friendsincode/auralux/internal/sink"
	"github.com/friendsincode/auralux/internal/telemetry"
)

var (
	// ErrNotInVoiceContext indicates the requester is not in a voice channel.
	ErrNotInVoiceContext = errors.New("requester is not in a voice channel")

	// ErrNotPremium indicates a premium-only intent from a non-premium user.
	ErrNotPremium = errors.New("premium feature")

	// ErrRateLimited indicates the tenant sent play requests too quickly.
	ErrRateLimited = errors.New("too many play requests")
)

// DefaultQueuePreview is how many queued tracks RequestQueueView returns.
const DefaultQueuePreview = 10

// Player is the part of the playback scheduler the coordinator drives.
type Player interface {
	Connect(ctx context.Context, vc sink.VoiceContext) error
	Enqueue(tenantID string, t models.Track) (int, bool, error)
	Skip(tenantID string) (models.Track, error)
	Pause(tenantID string) error
	Resume(tenantID string) error
	SetGain(tenantID string, volume int) error
	ToggleLoop(tenantID string) (bool, error)
	ToggleStay(tenantID string) (bool, error)
	StopAndDrain(tenantID string) error
	View(tenantID string) (playback.SessionView, error)
}

// PlayRequest is one play intent. Voice is nil when the requester is not
// in a voice channel.
type PlayRequest struct {
	TenantID    string
	Voice       *sink.VoiceContext
	Query       string
	RequesterID string
}

// PlayResult reports what happened to a play request.
type PlayResult struct {
	Track    models.Track
	Tier     models.QualityTier
	Position int  // 1-based queue position when not started
	Started  bool // the track began playing immediately
}

// QueueView is the head of a tenant's queue.
type QueueView struct {
	Items []models.Track
	Total int
}

// NowPlaying describes the current track.
type NowPlaying struct {
	Track  models.Track
	Loop   bool
	Paused bool
	Volume int
}

// Config tunes the coordinator.
type Config struct {
	PlayRate     rate.Limit // play requests per second per tenant
	PlayBurst    int
	QueuePreview int
}

// Coordinator implements the front-end intents.
type Coordinator struct {
	player       Player
	resolver     resolver.Resolver
	entitlements entitlement.Checker
	cfg          Config
	logger       zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a coordinator.
func New(player Player, res resolver.Resolver, ent entitlement.Checker, cfg Config, logger zerolog.Logger) *Coordinator {
	if cfg.QueuePreview <= 0 {
		cfg.QueuePreview = DefaultQueuePreview
	}
	if cfg.PlayRate <= 0 {
		cfg.PlayRate = rate.Inf
	}
	if cfg.PlayBurst <= 0 {
		cfg.PlayBurst = 1
	}
	if ent == nil {
		ent = &entitlement.Static{}
	}
	return &Coordinator{
		player:       player,
		resolver:     res,
		entitlements: ent,
		cfg:          cfg,
		logger:       logger.With().Str("component", "jukebox").Logger(),
		limiters:     make(map[string]*rate.Limiter),
	}
}

// RequestPlay resolves the query at the requester's tier, connects to the
// requester's voice channel and enqueues the result.
func (c *Coordinator) RequestPlay(ctx context.Context, req PlayRequest) (result PlayResult, err error) {
	if req.Voice == nil || req.Voice.ChannelID == "" {
		return PlayResult{}, ErrNotInVoiceContext
	}
	if !c.limiter(req.TenantID).Allow() {
		return PlayResult{}, ErrRateLimited
	}

	ctx, span := telemetry.StartSpan(ctx, "jukebox.RequestPlay",
		attribute.String("tenant_id", req.TenantID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	tier := models.TierStandard
	if c.entitlements.IsPremium(req.RequesterID, req.TenantID) {
		tier = models.TierHigh
	}

	// Resolution runs before any session exists or lock is taken.
	track, err := c.resolver.Resolve(ctx, req.Query, tier)
	if err != nil {
		return PlayResult{}, fmt.Errorf("resolve %q: %w", req.Query, err)
	}

	vc := *req.Voice
	vc.TenantID = req.TenantID
	if vc.UserID == "" {
		vc.UserID = req.RequesterID
	}

	pos, started, err := c.connectAndEnqueue(ctx, vc, track)
	if err != nil {
		return PlayResult{}, err
	}

	c.logger.Info().
		Str("tenant_id", req.TenantID).
		Str("requester_id", req.RequesterID).
		Str("title", track.Title).
		Str("tier", tier.String()).
		Bool("started", started).
		Int("position", pos).
		Msg("play request accepted")

	return PlayResult{Track: track, Tier: tier, Position: pos, Started: started}, nil
}

func (c *Coordinator) connectAndEnqueue(ctx context.Context, vc sink.VoiceContext, track models.Track) (int, bool, error) {
	// The session can be reaped between connect and enqueue; one retry
	// creates a fresh one.
	for attempt := 0; ; attempt++ {
		if err := c.player.Connect(ctx, vc); err != nil {
			return 0, false, err
		}
		pos, started, err := c.player.Enqueue(vc.TenantID, track)
		if errors.Is(err, playback.ErrNoSession) && attempt == 0 {
			continue
		}
		return pos, started, err
	}
}

// RequestSkip skips the current track and returns it.
func (c *Coordinator) RequestSkip(tenantID string) (models.Track, error) {
	return c.player.Skip(tenantID)
}

// RequestPause pauses playback.
func (c *Coordinator) RequestPause(tenantID string) error {
	return c.player.Pause(tenantID)
}

// RequestResume resumes playback.
func (c *Coordinator) RequestResume(tenantID string) error {
	return c.player.Resume(tenantID)
}

// RequestStop clears the queue and starts the idle countdown.
func (c *Coordinator) RequestStop(tenantID string) error {
	return c.player.StopAndDrain(tenantID)
}

// RequestSetVolume sets the volume from 0 to 100.
func (c *Coordinator) RequestSetVolume(tenantID string, volume int) error {
	return c.player.SetGain(tenantID, volume)
}

// RequestToggleLoop flips loop mode.
func (c *Coordinator) RequestToggleLoop(tenantID string) (bool, error) {
	return c.player.ToggleLoop(tenantID)
}

// RequestToggleStay flips the stay-connected flag. Premium only.
func (c *Coordinator) RequestToggleStay(tenantID, requesterID string) (bool, error) {
	if !c.entitlements.IsPremium(requesterID, tenantID) {
		return false, ErrNotPremium
	}
	return c.player.ToggleStay(tenantID)
}

// RequestHighQuality confirms high quality playback for the requester.
// The tier is decided per play request, so this only checks entitlement.
func (c *Coordinator) RequestHighQuality(tenantID, requesterID string) error {
	if !c.entitlements.IsPremium(requesterID, tenantID) {
		return ErrNotPremium
	}
	return nil
}

// RequestQueueView returns the first QueuePreview queued tracks and the
// total. A tenant without a session has an empty queue.
func (c *Coordinator) RequestQueueView(tenantID string) (QueueView, error) {
	v, err := c.player.View(tenantID)
	if errors.Is(err, playback.ErrNoSession) {
		return QueueView{}, nil
	}
	if err != nil {
		return QueueView{}, err
	}
	items := v.Queue
	if len(items) > c.cfg.QueuePreview {
		items = items[:c.cfg.QueuePreview]
	}
	return QueueView{Items: items, Total: len(v.Queue)}, nil
}

// RequestNowPlaying returns the current track.
func (c *Coordinator) RequestNowPlaying(tenantID string) (NowPlaying, error) {
	v, err := c.player.View(tenantID)
	if errors.Is(err, playback.ErrNoSession) {
		return NowPlaying{}, playback.ErrNoActiveTrack
	}
	if err != nil {
		return NowPlaying{}, err
	}
	if v.Current == nil {
		return NowPlaying{}, playback.ErrNoActiveTrack
	}
	return NowPlaying{
		Track:  *v.Current,
		Loop:   v.Loop,
		Paused: v.State == playback.StatePaused,
		Volume: v.Volume,
	}, nil
}

// Forget drops per-tenant limiter state once a session is gone.
func (c *Coordinator) Forget(tenantID string) {
	c.mu.Lock()
	delete(c.limiters, tenantID)
	c.mu.Unlock()
}

func (c *Coordinator) limiter(tenantID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(c.cfg.PlayRate, c.cfg.PlayBurst)
		c.limiters[tenantID] = l
	}
	return l
}

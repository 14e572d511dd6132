/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package jukebox

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/friendsincode/auralux/internal/entitlement"
	"github.com/friendsincode/auralux/internal/models"
	"github.com/friendsincode/auralux/internal/playback"
	"github.com/friendsincode/auralux/internal/resolver"
	"github.com/friendsincode/auralux/internal/sink"
)

type fakeResolver struct {
	tiers []models.QualityTier
	err   error
}

func (r *fakeResolver) Resolve(_ context.Context, query string, tier models.QualityTier) (models.Track, error) {
	r.tiers = append(r.tiers, tier)
	if r.err != nil {
		return models.Track{}, r.err
	}
	return models.Track{Title: query, StreamRef: "https://cdn.example/" + query}, nil
}

type fakePlayer struct {
	connects   []sink.VoiceContext
	connectErr error
	enqueued   []models.Track
	enqueueErr []error // consumed per call
	view       playback.SessionView
	viewErr    error
	stays      int
}

func (p *fakePlayer) Connect(_ context.Context, vc sink.VoiceContext) error {
	p.connects = append(p.connects, vc)
	return p.connectErr
}

func (p *fakePlayer) Enqueue(_ string, t models.Track) (int, bool, error) {
	if len(p.enqueueErr) > 0 {
		err := p.enqueueErr[0]
		p.enqueueErr = p.enqueueErr[1:]
		if err != nil {
			return 0, false, err
		}
	}
	p.enqueued = append(p.enqueued, t)
	if len(p.enqueued) == 1 {
		return 0, true, nil
	}
	return len(p.enqueued) - 1, false, nil
}

func (p *fakePlayer) Skip(string) (models.Track, error) { return models.Track{}, nil }
func (p *fakePlayer) Pause(string) error { return nil }
func (p *fakePlayer) Resume(string) error { return nil }
func (p *fakePlayer) SetGain(string, int) error { return nil }
func (p *fakePlayer) ToggleLoop(string) (bool, error) { return true, nil }
func (p *fakePlayer) StopAndDrain(string) error { return nil }
func (p *fakePlayer) View(string) (playback.SessionView, error) { return p.view, p.viewErr }

func (p *fakePlayer) ToggleStay(string) (bool, error) {
	p.stays++
	return p.stays%2 == 1, nil
}

func newCoordinator(p *fakePlayer, r *fakeResolver, cfg Config) *Coordinator {
	return New(p, r, entitlement.New([]string{"vip"}, []string{"vip-guild"}), cfg, zerolog.Nop())
}

func voice() *sink.VoiceContext {
	return &sink.VoiceContext{ChannelID: "vc1", UserID: "u1"}
}

func TestRequestPlay(t *testing.T) {
	p := &fakePlayer{}
	r := &fakeResolver{}
	c := newCoordinator(p, r, Config{})

	res, err := c.RequestPlay(context.Background(), PlayRequest{TenantID: "g1", Voice: voice(), Query: "song a", RequesterID: "u1"})
	if err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}
	if !res.Started || res.Track.Title != "song a" || res.Tier != models.TierStandard {
		t.Errorf("unexpected result %+v", res)
	}
	if len(p.connects) != 1 || p.connects[0].TenantID != "g1" || p.connects[0].ChannelID != "vc1" {
		t.Errorf("unexpected connects %+v", p.connects)
	}

	res, err = c.RequestPlay(context.Background(), PlayRequest{TenantID: "g1", Voice: voice(), Query: "song b", RequesterID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Started || res.Position != 1 {
		t.Errorf("second play = %+v, want queued at 1", res)
	}
}

func TestRequestPlayNotInVoice(t *testing.T) {
	p := &fakePlayer{}
	r := &fakeResolver{}
	c := newCoordinator(p, r, Config{})

	for _, vc := range []*sink.VoiceContext{nil, {ChannelID: ""}} {
		_, err := c.RequestPlay(context.Background(), PlayRequest{TenantID: "g1", Voice: vc, Query: "x"})
		if !errors.Is(err, ErrNotInVoiceContext) {
			t.Errorf("expected ErrNotInVoiceContext, got %v", err)
		}
	}
	if len(r.tiers) != 0 || len(p.connects) != 0 {
		t.Error("resolver or player called without voice context")
	}
}

func TestRequestPlayPremiumTier(t *testing.T) {
	r := &fakeResolver{}
	c := newCoordinator(&fakePlayer{}, r, Config{})

	c.RequestPlay(context.Background(), PlayRequest{TenantID: "g1", Voice: voice(), Query: "a", RequesterID: "vip"})
	c.RequestPlay(context.Background(), PlayRequest{TenantID: "vip-guild", Voice: voice(), Query: "b", RequesterID: "u1"})
	c.RequestPlay(context.Background(), PlayRequest{TenantID: "g1", Voice: voice(), Query: "c", RequesterID: "u1"})

	want := []models.QualityTier{models.TierHigh, models.TierHigh, models.TierStandard}
	for i, tier := range want {
		if r.tiers[i] != tier {
			t.Errorf("request %d tier = %s, want %s", i, r.tiers[i], tier)
		}
	}
}

func TestRequestPlayResolutionFailure(t *testing.T) {
	p := &fakePlayer{}
	r := &fakeResolver{err: fmt.Errorf("%w: nothing", resolver.ErrNotFound)}
	c := newCoordinator(p, r, Config{})

	_, err := c.RequestPlay(context.Background(), PlayRequest{TenantID: "g1", Voice: voice(), Query: "zzz"})
	if !errors.Is(err, resolver.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(p.connects) != 0 {
		t.Error("connected despite failed resolution")
	}
}

func TestRequestPlayConnectFailure(t *testing.T) {
	p := &fakePlayer{connectErr: fmt.Errorf("%w: timeout", playback.ErrSinkConnectFailed)}
	c := newCoordinator(p, &fakeResolver{}, Config{})

	_, err := c.RequestPlay(context.Background(), PlayRequest{TenantID: "g1", Voice: voice(), Query: "a"})
	if !errors.Is(err, playback.ErrSinkConnectFailed) {
		t.Fatalf("expected ErrSinkConnectFailed, got %v", err)
	}
	if len(p.enqueued) != 0 {
		t.Error("enqueued after connect failure")
	}
}

func TestRequestPlayRetriesReapedSession(t *testing.T) {
	p := &fakePlayer{enqueueErr: []error{playback.ErrNoSession}}
	c := newCoordinator(p, &fakeResolver{}, Config{})

	if _, err := c.RequestPlay(context.Background(), PlayRequest{TenantID: "g1", Voice: voice(), Query: "a"}); err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}
	if len(p.connects) != 2 || len(p.enqueued) != 1 {
		t.Errorf("connects=%d enqueued=%d, want 2 and 1", len(p.connects), len(p.enqueued))
	}
}

func TestRequestPlayRateLimited(t *testing.T) {
	c := newCoordinator(&fakePlayer{}, &fakeResolver{}, Config{PlayRate: rate.Limit(0.001), PlayBurst: 2})
	req := PlayRequest{TenantID: "g1", Voice: voice(), Query: "a"}

	for i := 0; i < 2; i++ {
		if _, err := c.RequestPlay(context.Background(), req); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if _, err := c.RequestPlay(context.Background(), req); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Limits are per tenant.
	other := req
	other.TenantID = "g2"
	if _, err := c.RequestPlay(context.Background(), other); err != nil {
		t.Fatalf("other tenant limited: %v", err)
	}

	c.Forget("g1")
	if _, err := c.RequestPlay(context.Background(), req); err != nil {
		t.Fatalf("after Forget: %v", err)
	}
}

func TestPremiumIntents(t *testing.T) {
	p := &fakePlayer{}
	c := newCoordinator(p, &fakeResolver{}, Config{})

	if _, err := c.RequestToggleStay("g1", "u1"); !errors.Is(err, ErrNotPremium) {
		t.Errorf("ToggleStay: expected ErrNotPremium, got %v", err)
	}
	if p.stays != 0 {
		t.Error("non-premium stay reached the player")
	}
	if on, err := c.RequestToggleStay("g1", "vip"); err != nil || !on {
		t.Errorf("ToggleStay(vip) = (%v, %v)", on, err)
	}

	if err := c.RequestHighQuality("g1", "u1"); !errors.Is(err, ErrNotPremium) {
		t.Errorf("HighQuality: expected ErrNotPremium, got %v", err)
	}
	if err := c.RequestHighQuality("vip-guild", "u1"); err != nil {
		t.Errorf("HighQuality in premium guild: %v", err)
	}
}

func TestRequestQueueView(t *testing.T) {
	queue := make([]models.Track, 13)
	for i := range queue {
		queue[i] = models.Track{Title: fmt.Sprintf("t%d", i)}
	}
	p := &fakePlayer{view: playback.SessionView{Queue: queue}}
	c := newCoordinator(p, &fakeResolver{}, Config{})

	v, err := c.RequestQueueView("g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Items) != 10 || v.Total != 13 || v.Items[0].Title != "t0" {
		t.Errorf("unexpected view: %d items, total %d", len(v.Items), v.Total)
	}

	p.viewErr = playback.ErrNoSession
	v, err = c.RequestQueueView("g1")
	if err != nil || v.Total != 0 {
		t.Errorf("missing session: view=%+v err=%v", v, err)
	}
}

func TestRequestNowPlaying(t *testing.T) {
	cur := models.Track{Title: "A", DurationSeconds: 75}
	p := &fakePlayer{view: playback.SessionView{Current: &cur, Loop: true, State: playback.StatePaused, Volume: 40}}
	c := newCoordinator(p, &fakeResolver{}, Config{})

	np, err := c.RequestNowPlaying("g1")
	if err != nil {
		t.Fatal(err)
	}
	if np.Track.Title != "A" || !np.Loop || !np.Paused || np.Volume != 40 {
		t.Errorf("unexpected now playing %+v", np)
	}

	p.view = playback.SessionView{State: playback.StateDraining}
	if _, err := c.RequestNowPlaying("g1"); !errors.Is(err, playback.ErrNoActiveTrack) {
		t.Errorf("expected ErrNoActiveTrack, got %v", err)
	}
	p.viewErr = playback.ErrNoSession
	if _, err := c.RequestNowPlaying("g1"); !errors.Is(err, playback.ErrNoActiveTrack) {
		t.Errorf("expected ErrNoActiveTrack without session, got %v", err)
	}
}

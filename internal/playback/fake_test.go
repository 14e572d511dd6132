/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/friendsincode/auralux/internal/events"
	"github.com/friendsincode/auralux/internal/models"
	"github.com/friendsincode/auralux/internal/sink"
)

const testGrace = 5 * time.Minute

type fakeSink struct {
	mu         sync.Mutex
	handles    []*fakeHandle
	connectErr error
	failTitles map[string]bool
}

func (f *fakeSink) Connect(_ context.Context, vc sink.VoiceContext) (sink.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, fmt.Errorf("%w: %v", sink.ErrConnect, f.connectErr)
	}
	h := &fakeHandle{
		channelID:  vc.ChannelID,
		connected:  true,
		failTitles: f.failTitles,
		live:       make(map[string]sink.CompletionFunc),
	}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeSink) handleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *fakeSink) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}

type playCall struct {
	attemptID string
	title     string
	gain      float64
}

type fakeHandle struct {
	mu           sync.Mutex
	channelID    string
	connected    bool
	failTitles   map[string]bool
	seq          int
	plays        []playCall
	live         map[string]sink.CompletionFunc
	maxLive      int
	paused       bool
	gain         float64
	stops        int
	disconnected bool
}

func (h *fakeHandle) ChannelID() string { return h.channelID }

func (h *fakeHandle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *fakeHandle) Play(t models.Track, gain float64, done sink.CompletionFunc) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failTitles[t.Title] {
		return "", fmt.Errorf("%w: %s", sink.ErrPlay, t.Title)
	}
	h.seq++
	id := fmt.Sprintf("attempt-%d", h.seq)
	h.plays = append(h.plays, playCall{attemptID: id, title: t.Title, gain: gain})
	h.live[id] = done
	if len(h.live) > h.maxLive {
		h.maxLive = len(h.live)
	}
	h.gain = gain
	h.paused = false
	return id, nil
}

// finish ends an attempt as if the stream ran out.
func (h *fakeHandle) finish(attemptID string, err error) {
	h.mu.Lock()
	done, ok := h.live[attemptID]
	delete(h.live, attemptID)
	h.mu.Unlock()
	if ok {
		done(attemptID, err)
	}
}

// finishLast ends the most recent attempt.
func (h *fakeHandle) finishLast() string {
	id := h.lastAttempt()
	h.finish(id, nil)
	return id
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	h.stops++
	ended := h.live
	h.live = make(map[string]sink.CompletionFunc)
	h.mu.Unlock()
	for id, done := range ended {
		go done(id, nil)
	}
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

func (h *fakeHandle) Resume() {
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()
}

func (h *fakeHandle) SetGain(gain float64) {
	h.mu.Lock()
	h.gain = gain
	h.mu.Unlock()
}

func (h *fakeHandle) Disconnect() error {
	h.mu.Lock()
	h.connected = false
	h.disconnected = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) drop() {
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
}

func (h *fakeHandle) titles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.plays))
	for _, p := range h.plays {
		out = append(out, p.title)
	}
	return out
}

func (h *fakeHandle) lastAttempt() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.plays) == 0 {
		return ""
	}
	return h.plays[len(h.plays)-1].attemptID
}

func (h *fakeHandle) playCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.plays)
}

type harness struct {
	registry  *Registry
	reaper    *Reaper
	scheduler *Scheduler
	sink      *fakeSink
	clock     *clock.Mock
	bus       *events.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewMock()
	reg := NewRegistry(clk, DefaultGain)
	bus := events.NewBus()
	reaper := NewReaper(reg, clk, testGrace, time.Minute, bus, zerolog.Nop())
	fs := &fakeSink{failTitles: map[string]bool{}}
	return &harness{
		registry:  reg,
		reaper:    reaper,
		scheduler: NewScheduler(reg, fs, reaper, bus, zerolog.Nop()),
		sink:      fs,
		clock:     clk,
		bus:       bus,
	}
}

// connect opens a session for tenant and returns its handle.
func (h *harness) connect(t *testing.T, tenant string) *fakeHandle {
	t.Helper()
	before := h.sink.handleCount()
	if err := h.scheduler.Connect(context.Background(), sink.VoiceContext{TenantID: tenant, ChannelID: "vc-" + tenant, UserID: "u1"}); err != nil {
		t.Fatalf("Connect(%s): %v", tenant, err)
	}
	if h.sink.handleCount() != before+1 {
		t.Fatalf("expected a new handle for %s", tenant)
	}
	return h.sink.handle(before)
}

func (h *harness) view(t *testing.T, tenant string) SessionView {
	t.Helper()
	v, err := h.scheduler.View(tenant)
	if err != nil {
		t.Fatalf("View(%s): %v", tenant, err)
	}
	return v
}

func track(title string) models.Track {
	return models.Track{Title: title, DurationSeconds: 180, StreamRef: "https://cdn.example/" + title, SourceRef: "https://example.com/watch?v=" + title}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

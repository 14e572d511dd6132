/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package discord

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/auralux/internal/jukebox"
	"github.com/friendsincode/auralux/internal/models"
	"github.com/friendsincode/auralux/internal/playback"
	"github.com/friendsincode/auralux/internal/resolver"
	"github.com/friendsincode/auralux/internal/sink"
)

type fakeIntents struct {
	playResult jukebox.PlayResult
	playErr    error
	lastPlay   jukebox.PlayRequest
	err        error
	toggled    bool
	volume     int
	queue      jukebox.QueueView
	now        jukebox.NowPlaying
	forgotten  []string
}

func (f *fakeIntents) RequestPlay(_ context.Context, req jukebox.PlayRequest) (jukebox.PlayResult, error) {
	f.lastPlay = req
	return f.playResult, f.playErr
}

func (f *fakeIntents) RequestSkip(string) (models.Track, error) { return models.Track{}, f.err }
func (f *fakeIntents) RequestPause(string) error                { return f.err }
func (f *fakeIntents) RequestResume(string) error               { return f.err }
func (f *fakeIntents) RequestStop(string) error                 { return f.err }

func (f *fakeIntents) RequestSetVolume(_ string, v int) error {
	if v < 0 || v > 100 {
		return playback.ErrInvalidVolumeRange
	}
	f.volume = v
	return f.err
}

func (f *fakeIntents) RequestToggleLoop(string) (bool, error)         { return f.toggled, f.err }
func (f *fakeIntents) RequestToggleStay(string, string) (bool, error) { return f.toggled, f.err }
func (f *fakeIntents) RequestHighQuality(string, string) error        { return f.err }

func (f *fakeIntents) RequestQueueView(string) (jukebox.QueueView, error) { return f.queue, f.err }
func (f *fakeIntents) RequestNowPlaying(string) (jukebox.NowPlaying, error) {
	return f.now, f.err
}

func (f *fakeIntents) Forget(tenantID string) { f.forgotten = append(f.forgotten, tenantID) }

func request(name, args string) Request {
	return Request{
		Command:     Command{Name: name, Args: args},
		TenantID:    "guild-1",
		ChannelID:   "text-1",
		RequesterID: "user-1",
		Voice:       &sink.VoiceContext{TenantID: "guild-1", ChannelID: "voice-1", UserID: "user-1"},
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		content string
		want    Command
		ok      bool
	}{
		{"!play never gonna give you up", Command{"play", "never gonna give you up"}, true},
		{"!PLAY  spaced  ", Command{"play", "spaced"}, true},
		{"!skip", Command{"skip", ""}, true},
		{"! skip", Command{"skip", ""}, true},
		{"!", Command{}, false},
		{"play something", Command{}, false},
		{"", Command{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseCommand("!", tt.content)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, %v; want %+v, %v", tt.content, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHandlePlay(t *testing.T) {
	track := models.Track{Title: "Song", DurationSeconds: 125, StreamRef: "s"}

	t.Run("queued", func(t *testing.T) {
		f := &fakeIntents{playResult: jukebox.PlayResult{Track: track, Position: 3}}
		h := NewHandler(f, "!", 5*time.Minute, "")
		got := h.Handle(context.Background(), request("play", "song"))
		if got.Content != "✅ Added to queue: **Song** (Position: 3)" {
			t.Fatalf("reply = %q", got.Content)
		}
		if f.lastPlay.Query != "song" || f.lastPlay.RequesterID != "user-1" || f.lastPlay.Voice == nil {
			t.Fatalf("play request = %+v", f.lastPlay)
		}
	})

	t.Run("started is announced elsewhere", func(t *testing.T) {
		f := &fakeIntents{playResult: jukebox.PlayResult{Track: track, Started: true}}
		h := NewHandler(f, "!", 5*time.Minute, "")
		if got := h.Handle(context.Background(), request("play", "song")); !got.empty() {
			t.Fatalf("reply = %+v, want empty", got)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		h := NewHandler(&fakeIntents{}, "!", 5*time.Minute, "")
		got := h.Handle(context.Background(), request("play", ""))
		if got.Content != "❌ Missing required argument! Use `!help` for command usage." {
			t.Fatalf("reply = %q", got.Content)
		}
	})
}

func TestHandleErrorTexts(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    string
		err     error
		want    string
	}{
		{"not in voice", "play", "x", jukebox.ErrNotInVoiceContext, msgNotInVoice},
		{"not found", "play", "x", fmt.Errorf("resolve: %w", resolver.ErrNotFound), msgNotFound},
		{"resolution failed", "play", "x", fmt.Errorf("resolve: %w", resolver.ErrResolutionFailed), msgNotFound},
		{"rate limited", "play", "x", jukebox.ErrRateLimited, msgRateLimited},
		{"join failed", "play", "x", fmt.Errorf("%w: timeout", playback.ErrSinkConnectFailed), msgJoinFailed},
		{"only track failed to start", "play", "x", fmt.Errorf("%w: broken", playback.ErrSinkPlayFailed), ""},
		{"skip idle", "skip", "", playback.ErrNotPlaying, msgNotPlaying},
		{"skip without session", "skip", "", playback.ErrNoSession, msgNotPlaying},
		{"pause idle", "pause", "", playback.ErrNotPlaying, msgNotPlaying},
		{"resume not paused", "resume", "", playback.ErrNotPaused, msgNotPaused},
		{"resume without session", "resume", "", playback.ErrNoSession, msgNotPaused},
		{"stop without session", "stop", "", playback.ErrNoSession, msgNotConnected},
		{"loop idle", "loop", "", playback.ErrNoActiveTrack, msgNotPlaying},
		{"nowplaying idle", "nowplaying", "", playback.ErrNoActiveTrack, msgNotPlaying},
		{"hq not premium", "hq", "", jukebox.ErrNotPremium, msgPremium},
		{"stay not premium", "stay", "", jukebox.ErrNotPremium, msgPremium},
		{"unexpected", "stop", "", fmt.Errorf("boom"), msgCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeIntents{playErr: tt.err, err: tt.err}
			h := NewHandler(f, "!", 5*time.Minute, "")
			got := h.Handle(context.Background(), request(tt.command, tt.args))
			if got.Content != tt.want {
				t.Fatalf("reply = %q, want %q", got.Content, tt.want)
			}
		})
	}
}

func TestHandlePremiumContact(t *testing.T) {
	h := NewHandler(&fakeIntents{err: jukebox.ErrNotPremium}, "!", 5*time.Minute, "windyy_918")
	got := h.Handle(context.Background(), request("hq", ""))
	if got.Content != "🔒 It is a premium feature, dm windyy_918 to get premium." {
		t.Fatalf("reply = %q", got.Content)
	}
}

func TestHandleVolume(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{"75", "🔊 Volume set to 75%!"},
		{"0", "🔊 Volume set to 0%!"},
		{"150", msgVolumeRange},
		{"-1", msgVolumeRange},
		{"loud", "❌ Missing required argument! Use `!help` for command usage."},
		{"", "❌ Missing required argument! Use `!help` for command usage."},
	}
	for _, tt := range tests {
		h := NewHandler(&fakeIntents{}, "!", 5*time.Minute, "")
		got := h.Handle(context.Background(), request("volume", tt.args))
		if got.Content != tt.want {
			t.Errorf("volume %q: reply = %q, want %q", tt.args, got.Content, tt.want)
		}
	}
}

func TestHandleToggles(t *testing.T) {
	h := NewHandler(&fakeIntents{toggled: true}, "!", 5*time.Minute, "")
	if got := h.Handle(context.Background(), request("loop", "")); got.Content != "🔄 Loop enabled!" {
		t.Fatalf("loop reply = %q", got.Content)
	}
	if got := h.Handle(context.Background(), request("stay", "")); got.Content != "🏠 Stay forever mode enabled!" {
		t.Fatalf("stay reply = %q", got.Content)
	}

	h = NewHandler(&fakeIntents{toggled: false}, "!", 5*time.Minute, "")
	if got := h.Handle(context.Background(), request("loop", "")); got.Content != "🔄 Loop disabled!" {
		t.Fatalf("loop reply = %q", got.Content)
	}
}

func TestHandleStopQuotesGrace(t *testing.T) {
	tests := []struct {
		grace time.Duration
		want  string
	}{
		{5 * time.Minute, "⏹️ Music stopped! I'll stay here for 5 more minutes."},
		{90 * time.Second, "⏹️ Music stopped! I'll stay here for 1.5 more minutes."},
	}
	for _, tt := range tests {
		h := NewHandler(&fakeIntents{}, "!", tt.grace, "")
		if got := h.Handle(context.Background(), request("stop", "")); got.Content != tt.want {
			t.Errorf("grace %v: reply = %q, want %q", tt.grace, got.Content, tt.want)
		}
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	h := NewHandler(&fakeIntents{}, "!", 5*time.Minute, "")
	if h.Known("dance") {
		t.Fatal("dance should not be a command")
	}
	if got := h.Handle(context.Background(), request("dance", "")); !got.empty() {
		t.Fatalf("reply = %+v, want empty", got)
	}
}

func TestFormatQueue(t *testing.T) {
	if got := FormatQueue(jukebox.QueueView{}); got != msgQueueEmpty {
		t.Fatalf("empty queue = %q", got)
	}

	items := make([]models.Track, 10)
	for i := range items {
		items[i] = models.Track{Title: fmt.Sprintf("T%d", i+1)}
	}
	got := FormatQueue(jukebox.QueueView{Items: items, Total: 13})
	if !strings.HasPrefix(got, "📋 **Current Queue:**\n1. T1\n2. T2\n") {
		t.Fatalf("queue = %q", got)
	}
	if !strings.Contains(got, "10. T10\n") {
		t.Fatalf("queue missing tenth entry: %q", got)
	}
	if !strings.HasSuffix(got, "... and 3 more songs") {
		t.Fatalf("queue missing overflow line: %q", got)
	}

	short := FormatQueue(jukebox.QueueView{Items: items[:2], Total: 2})
	if strings.Contains(short, "more songs") {
		t.Fatalf("short queue has overflow line: %q", short)
	}
}

func TestNowPlayingEmbed(t *testing.T) {
	e := NowPlayingEmbed(jukebox.NowPlaying{
		Track: models.Track{Title: "Song", DurationSeconds: 65},
		Loop:  true,
	})
	if e.Title != "🎵 Now Playing" || len(e.Fields) != 3 {
		t.Fatalf("embed = %+v", e)
	}
	if e.Fields[0].Value != "Song" || e.Fields[1].Value != "1:05" || e.Fields[2].Value != "✅" {
		t.Fatalf("fields = %v %v %v", e.Fields[0].Value, e.Fields[1].Value, e.Fields[2].Value)
	}

	unknown := NowPlayingEmbed(jukebox.NowPlaying{Track: models.Track{Title: "Live"}})
	if unknown.Fields[1].Value != "Unknown" || unknown.Fields[2].Value != "❌" {
		t.Fatalf("fields = %v %v", unknown.Fields[1].Value, unknown.Fields[2].Value)
	}
}

func TestHelpEmbedUsesPrefix(t *testing.T) {
	e := HelpEmbed("?", "")
	if !strings.Contains(e.Fields[0].Value, "`?play <song>`") {
		t.Fatalf("music commands = %q", e.Fields[0].Value)
	}
	if strings.Contains(e.Fields[1].Value, "DM") {
		t.Fatalf("premium commands mention a contact: %q", e.Fields[1].Value)
	}
	if !strings.Contains(HelpEmbed("!", "someone").Fields[1].Value, "*DM someone for premium access*") {
		t.Fatal("premium contact missing from help")
	}
}

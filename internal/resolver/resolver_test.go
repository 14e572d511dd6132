/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/auralux/internal/models"
)

type extractCall struct {
	target string
	format string
}

type fakeExtractor struct {
	mu      sync.Mutex
	calls   []extractCall
	results map[string]models.Track // by format
	errs    map[string]error        // by format
}

func (f *fakeExtractor) Extract(_ context.Context, target, format string) (models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, extractCall{target: target, format: format})
	if err := f.errs[format]; err != nil {
		return models.Track{}, err
	}
	if t, ok := f.results[format]; ok {
		return t, nil
	}
	return models.Track{}, ErrNotFound
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]models.Track
	sets int
}

func (c *mapCache) GetTrack(_ context.Context, q string, tier models.QualityTier) (models.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.data[tier.String()+q]
	return t, ok
}

func (c *mapCache) SetTrack(_ context.Context, q string, tier models.QualityTier, t models.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[tier.String()+q] = t
	c.sets++
	return nil
}

var (
	stdTrack = models.Track{Title: "Song", DurationSeconds: 200, StreamRef: "https://cdn.example/std.m4a", SourceRef: "https://www.youtube.com/watch?v=abc"}
	hqTrack  = models.Track{Title: "Song", DurationSeconds: 200, StreamRef: "https://cdn.example/hq.webm", SourceRef: "https://www.youtube.com/watch?v=abc"}
)

func TestResolveSearchQuery(t *testing.T) {
	primary := &fakeExtractor{results: map[string]models.Track{FormatStandard: stdTrack}}
	g := NewGateway(primary, zerolog.Nop())

	got, err := g.Resolve(context.Background(), "  some song ", models.TierStandard)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != stdTrack {
		t.Errorf("got %+v, want %+v", got, stdTrack)
	}
	if len(primary.calls) != 1 || primary.calls[0].target != "ytsearch1:some song" || primary.calls[0].format != FormatStandard {
		t.Errorf("unexpected calls %+v", primary.calls)
	}
}

func TestResolveURLNotSearched(t *testing.T) {
	primary := &fakeExtractor{results: map[string]models.Track{FormatStandard: stdTrack}}
	g := NewGateway(primary, zerolog.Nop())

	if _, err := g.Resolve(context.Background(), "https://soundcloud.com/a/b", models.TierStandard); err != nil {
		t.Fatal(err)
	}
	if primary.calls[0].target != "https://soundcloud.com/a/b" {
		t.Errorf("target = %q", primary.calls[0].target)
	}
}

func TestResolveHighTier(t *testing.T) {
	primary := &fakeExtractor{results: map[string]models.Track{FormatStandard: stdTrack, FormatHigh: hqTrack}}
	g := NewGateway(primary, zerolog.Nop())

	got, err := g.Resolve(context.Background(), "some song", models.TierHigh)
	if err != nil {
		t.Fatal(err)
	}
	if got.StreamRef != hqTrack.StreamRef {
		t.Errorf("StreamRef = %q, want high quality", got.StreamRef)
	}
	if len(primary.calls) != 2 || primary.calls[1].target != stdTrack.SourceRef || primary.calls[1].format != FormatHigh {
		t.Errorf("unexpected calls %+v", primary.calls)
	}
}

func TestResolveHighTierFallsBackSilently(t *testing.T) {
	primary := &fakeExtractor{
		results: map[string]models.Track{FormatStandard: stdTrack},
		errs:    map[string]error{FormatHigh: errors.New("format not available")},
	}
	g := NewGateway(primary, zerolog.Nop())

	got, err := g.Resolve(context.Background(), "some song", models.TierHigh)
	if err != nil {
		t.Fatalf("expected silent fallback, got %v", err)
	}
	if got != stdTrack {
		t.Errorf("got %+v, want standard track", got)
	}
}

func TestResolveNotFound(t *testing.T) {
	g := NewGateway(&fakeExtractor{}, zerolog.Nop())
	if _, err := g.Resolve(context.Background(), "nothing matches", models.TierStandard); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := g.Resolve(context.Background(), "   ", models.TierStandard); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty query, got %v", err)
	}
}

func TestResolveExtractorFailure(t *testing.T) {
	primary := &fakeExtractor{errs: map[string]error{FormatStandard: errors.New("exit status 1")}}
	g := NewGateway(primary, zerolog.Nop())

	_, err := g.Resolve(context.Background(), "song", models.TierStandard)
	if !errors.Is(err, ErrResolutionFailed) {
		t.Fatalf("expected ErrResolutionFailed, got %v", err)
	}
}

func TestResolveYouTubeFallback(t *testing.T) {
	primary := &fakeExtractor{errs: map[string]error{FormatStandard: errors.New("sign in to confirm")}}
	fallback := &fakeExtractor{results: map[string]models.Track{FormatStandard: stdTrack}}
	g := NewGateway(primary, zerolog.Nop(), WithFallback(fallback))

	got, err := g.Resolve(context.Background(), "https://youtu.be/abc", models.TierStandard)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != stdTrack {
		t.Errorf("got %+v", got)
	}

	// Search queries never use the fallback.
	if _, err := g.Resolve(context.Background(), "plain search", models.TierStandard); err == nil {
		t.Fatal("expected failure for search query")
	}
	if len(fallback.calls) != 1 {
		t.Errorf("fallback calls = %d, want 1", len(fallback.calls))
	}
}

func TestResolveUsesCache(t *testing.T) {
	primary := &fakeExtractor{results: map[string]models.Track{FormatStandard: stdTrack}}
	c := &mapCache{data: map[string]models.Track{}}
	g := NewGateway(primary, zerolog.Nop(), WithCache(c))

	for i := 0; i < 3; i++ {
		if _, err := g.Resolve(context.Background(), "song", models.TierStandard); err != nil {
			t.Fatal(err)
		}
	}
	if len(primary.calls) != 1 {
		t.Errorf("extractor calls = %d, want 1", len(primary.calls))
	}
	if c.sets != 1 {
		t.Errorf("cache sets = %d, want 1", c.sets)
	}

	// Tiers are cached separately.
	if _, err := g.Resolve(context.Background(), "song", models.TierHigh); err != nil {
		t.Fatal(err)
	}
	if len(primary.calls) == 1 {
		t.Error("high tier served from standard cache entry")
	}
}

func TestParsePrintOutput(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		want    models.Track
		wantErr error
	}{
		{
			name:   "single line",
			stdout: "https://cdn.example/a.m4a\tA Song\t213.0\thttps://www.youtube.com/watch?v=a\n",
			want:   models.Track{Title: "A Song", DurationSeconds: 213, StreamRef: "https://cdn.example/a.m4a", SourceRef: "https://www.youtube.com/watch?v=a"},
		},
		{
			name:   "unknown duration and title",
			stdout: "https://cdn.example/b\tNA\tNA\tNA",
			want:   models.Track{Title: "Unknown", StreamRef: "https://cdn.example/b"},
		},
		{
			name:   "skips malformed lines",
			stdout: "garbage\nhttps://cdn.example/c\tC\t60\thttps://x/c",
			want:   models.Track{Title: "C", DurationSeconds: 60, StreamRef: "https://cdn.example/c", SourceRef: "https://x/c"},
		},
		{name: "empty", stdout: "", wantErr: ErrNotFound},
		{name: "no url", stdout: "NA\tTitle\t10\thttps://x", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePrintOutput(tt.stdout)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsYouTubeURL(t *testing.T) {
	tests := map[string]bool{
		"https://www.youtube.com/watch?v=abc": true,
		"https://youtu.be/abc":                true,
		"https://music.youtube.com/watch?v=x": true,
		"https://soundcloud.com/a":            false,
		"youtube.com/watch?v=abc":             false,
		"never gonna give you up":             false,
	}
	for in, want := range tests {
		if got := isYouTubeURL(in); got != want {
			t.Errorf("isYouTubeURL(%q) = %v, want %v", in, got, want)
		}
	}
}

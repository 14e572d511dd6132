/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"strings"
)

// QualityTier selects the audio format requested from the resolver.
type QualityTier int

const (
	TierStandard QualityTier = iota
	TierHigh
)

// String returns the tier name used in logs, metrics and cache keys.
func (t QualityTier) String() string {
	switch t {
	case TierHigh:
		return "high"
	default:
		return "standard"
	}
}

// Track is a resolved, playable item. It is produced once by the resolver
// and passed around by value; nothing mutates it afterwards.
type Track struct {
	Title           string `json:"title"`
	DurationSeconds uint32 `json:"duration_seconds"` // 0 = unknown
	StreamRef       string `json:"stream_ref"`       // direct media URL handed to the sink
	SourceRef       string `json:"source_ref"`       // canonical page URL
}

// NewTrack validates resolver output and applies defaults.
func NewTrack(title string, durationSeconds uint32, streamRef, sourceRef string) (Track, error) {
	if strings.TrimSpace(streamRef) == "" {
		return Track{}, fmt.Errorf("track %q has no stream reference", title)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Unknown"
	}
	return Track{
		Title:           title,
		DurationSeconds: durationSeconds,
		StreamRef:       streamRef,
		SourceRef:       sourceRef,
	}, nil
}

// DurationString formats the duration as m:ss, or "Unknown" when not known.
func (t Track) DurationString() string {
	if t.DurationSeconds == 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%d:%02d", t.DurationSeconds/60, t.DurationSeconds%60)
}

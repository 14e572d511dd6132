/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "testing"

func TestNewTrackDefaults(t *testing.T) {
	tr, err := NewTrack("  ", 0, "https://cdn.example/a.m4a", "https://youtube.com/watch?v=a")
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	if tr.Title != "Unknown" {
		t.Errorf("Title = %q, want Unknown", tr.Title)
	}
	if tr.DurationString() != "Unknown" {
		t.Errorf("DurationString = %q, want Unknown", tr.DurationString())
	}
}

func TestNewTrackRequiresStreamRef(t *testing.T) {
	if _, err := NewTrack("A", 120, "", "src"); err == nil {
		t.Fatal("expected error for empty stream reference")
	}
}

func TestDurationString(t *testing.T) {
	tests := []struct {
		seconds uint32
		want    string
	}{
		{0, "Unknown"},
		{59, "0:59"},
		{90, "1:30"},
		{120, "2:00"},
		{3725, "62:05"},
	}

	for _, tt := range tests {
		got := Track{DurationSeconds: tt.seconds}.DurationString()
		if got != tt.want {
			t.Errorf("DurationString(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestQualityTierString(t *testing.T) {
	if TierStandard.String() != "standard" {
		t.Errorf("TierStandard = %q", TierStandard.String())
	}
	if TierHigh.String() != "high" {
		t.Errorf("TierHigh = %q", TierHigh.String())
	}
}

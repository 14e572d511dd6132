/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"errors"

	"github.com/friendsincode/auralux/internal/sink"
)

var (
	// ErrNoSession indicates the tenant has no live session.
	ErrNoSession = errors.New("no active session")

	// ErrNotPlaying indicates the operation needs a playing (or paused) track.
	ErrNotPlaying = errors.New("nothing is playing")

	// ErrNotPaused indicates resume was requested while not paused.
	ErrNotPaused = errors.New("nothing is paused")

	// ErrNoActiveTrack indicates there is no current track to act on.
	ErrNoActiveTrack = errors.New("no active track")

	// ErrInvalidVolumeRange indicates a volume outside 0-100.
	ErrInvalidVolumeRange = errors.New("volume must be between 0 and 100")

	// ErrInvalidTransition indicates an invalid state transition was attempted.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSinkConnectFailed wraps sink connect failures.
	ErrSinkConnectFailed = sink.ErrConnect

	// ErrSinkPlayFailed wraps synchronous sink play failures.
	ErrSinkPlayFailed = sink.ErrPlay
)

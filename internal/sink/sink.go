/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sink defines the audio transport boundary used by the playback
// scheduler and provides the Discord voice implementation.
package sink

import (
	"context"
	"errors"

	"github.com/friendsincode/auralux/internal/models"
)

var (
	// ErrConnect indicates the voice connection could not be established.
	ErrConnect = errors.New("sink connect failed")

	// ErrPlay indicates a stream could not be started.
	ErrPlay = errors.New("sink play failed")

	// ErrNotConnected indicates the handle lost its voice connection.
	ErrNotConnected = errors.New("sink not connected")
)

// VoiceContext identifies where the requester is listening.
type VoiceContext struct {
	TenantID  string // guild
	ChannelID string // voice channel
	UserID    string // requester
}

// CompletionFunc is called exactly once per playback attempt when the
// attempt ends, either naturally, by Stop, or with a stream error. It is
// always called from a goroutine owned by the sink, never from inside Play.
type CompletionFunc func(attemptID string, err error)

// Sink opens voice connections.
type Sink interface {
	Connect(ctx context.Context, vc VoiceContext) (Handle, error)
}

// Handle is one exclusive connection to a voice channel.
type Handle interface {
	ChannelID() string
	Connected() bool

	// Play starts streaming t and returns the attempt id that will be passed
	// to done. A returned error means no attempt was started and done will
	// not be called.
	Play(t models.Track, gain float64, done CompletionFunc) (string, error)
	Stop()
	Pause()
	Resume()
	SetGain(gain float64)
	Disconnect() error
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/friendsincode/auralux/internal/models"
	"github.com/friendsincode/auralux/internal/sink"
)

// DefaultGain is the gain of a freshly created session.
const DefaultGain = 0.5

// Session is the playback state of one tenant. Every field below mu is
// guarded by it.
type Session struct {
	tenantID string

	// connectMu serializes voice connects for the tenant so that two
	// concurrent requests never open two handles.
	connectMu sync.Mutex

	mu           sync.Mutex
	state        LifecycleState
	queue        []models.Track
	current      *models.Track
	handle       sink.Handle
	attempt      string
	loop         bool
	pinned       bool
	gain         float64
	grace        *clock.Timer
	graceGen     uint64
	created      time.Time
	lastActivity time.Time
}

func newSession(tenantID string, gain float64, now time.Time) *Session {
	return &Session{
		tenantID:     tenantID,
		state:        StateIdle,
		queue:        make([]models.Track, 0),
		gain:         gain,
		created:      now,
		lastActivity: now,
	}
}

// TenantID returns the tenant the session belongs to.
func (s *Session) TenantID() string {
	return s.tenantID
}

// SessionView is a read-only copy of a session for rendering.
type SessionView struct {
	TenantID     string         `json:"tenant_id"`
	State        LifecycleState `json:"state"`
	Current      *models.Track  `json:"current,omitempty"`
	Queue        []models.Track `json:"queue"`
	Loop         bool           `json:"loop"`
	Pinned       bool           `json:"pinned"`
	Volume       int            `json:"volume"`
	ChannelID    string         `json:"channel_id,omitempty"`
	Connected    bool           `json:"connected"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// viewLocked must be called with s.mu held.
func (s *Session) viewLocked() SessionView {
	v := SessionView{
		TenantID:     s.tenantID,
		State:        s.state,
		Queue:        append([]models.Track(nil), s.queue...),
		Loop:         s.loop,
		Pinned:       s.pinned,
		Volume:       int(s.gain*100 + 0.5),
		CreatedAt:    s.created,
		LastActivity: s.lastActivity,
	}
	if s.current != nil {
		cur := *s.current
		v.Current = &cur
	}
	if s.handle != nil {
		v.ChannelID = s.handle.ChannelID()
		v.Connected = s.handle.Connected()
	}
	return v
}

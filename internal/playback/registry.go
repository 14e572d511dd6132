/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/friendsincode/auralux/internal/telemetry"
)

// Registry owns the tenant to session mapping. It never takes a session
// lock; callers holding a session lock may call into it.
type Registry struct {
	clock       clock.Clock
	defaultGain float64

	mu       sync.RWMutex
	sessions map[string]*Session // tenantID -> session
}

// NewRegistry creates an empty registry. New sessions start at defaultGain.
func NewRegistry(clk clock.Clock, defaultGain float64) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if defaultGain < 0 || defaultGain > 1 {
		defaultGain = DefaultGain
	}
	return &Registry{
		clock:       clk,
		defaultGain: defaultGain,
		sessions:    make(map[string]*Session),
	}
}

// GetOrCreate returns the tenant's session, creating it with default flags.
func (r *Registry) GetOrCreate(tenantID string) *Session {
	r.mu.RLock()
	sess, ok := r.sessions[tenantID]
	r.mu.RUnlock()
	if ok {
		return sess
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[tenantID]; ok {
		return sess
	}
	sess = newSession(tenantID, r.defaultGain, r.clock.Now())
	r.sessions[tenantID] = sess
	telemetry.SessionsActive.Set(float64(len(r.sessions)))
	return sess
}

// Get returns the tenant's session if one exists.
func (r *Registry) Get(tenantID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[tenantID]
	return sess, ok
}

// Remove deletes the tenant's session unconditionally.
func (r *Registry) Remove(tenantID string) {
	r.mu.Lock()
	delete(r.sessions, tenantID)
	telemetry.SessionsActive.Set(float64(len(r.sessions)))
	r.mu.Unlock()
}

// RemoveIf deletes the tenant's entry only if it still points at sess.
func (r *Registry) RemoveIf(tenantID string, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[tenantID] != sess {
		return false
	}
	delete(r.sessions, tenantID)
	telemetry.SessionsActive.Set(float64(len(r.sessions)))
	return true
}

// Snapshot returns the current sessions ordered by tenant ID.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].tenantID < out[j].tenantID
	})
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/friendsincode/auralux/internal/events"
	"github.com/friendsincode/auralux/internal/telemetry"
)

// Removal reasons used for metrics and events.
const (
	ReasonIdle         = "idle"
	ReasonDisconnected = "disconnected"
	ReasonShutdown     = "shutdown"
)

// Reaper disconnects sessions that stay idle past the grace period and
// purges sessions whose voice connection dropped out of band.
type Reaper struct {
	registry *Registry
	clock    clock.Clock
	grace    time.Duration
	interval time.Duration
	bus      *events.Bus
	logger   zerolog.Logger
}

// NewReaper creates a reaper. grace is the idle period before a drained
// session is disconnected; interval is how often Run sweeps for dead
// connections.
func NewReaper(registry *Registry, clk clock.Clock, grace, interval time.Duration, bus *events.Bus, logger zerolog.Logger) *Reaper {
	if clk == nil {
		clk = clock.New()
	}
	return &Reaper{
		registry: registry,
		clock:    clk,
		grace:    grace,
		interval: interval,
		bus:      bus,
		logger:   logger.With().Str("component", "reaper").Logger(),
	}
}

// Grace returns the configured idle grace period.
func (r *Reaper) Grace() time.Duration {
	return r.grace
}

// armLocked (re)starts the session's grace timer. Must be called with
// sess.mu held.
func (r *Reaper) armLocked(sess *Session) {
	r.cancelLocked(sess)
	sess.graceGen++
	gen := sess.graceGen
	sess.grace = r.clock.AfterFunc(r.grace, func() {
		r.fire(sess, gen)
	})
	r.logger.Debug().
		Str("tenant_id", sess.tenantID).
		Dur("grace", r.grace).
		Msg("idle timer armed")
}

// cancelLocked stops the session's grace timer. Bumping the generation
// invalidates a callback that already fired and is waiting on the lock.
func (r *Reaper) cancelLocked(sess *Session) {
	if sess.grace != nil {
		sess.grace.Stop()
		sess.grace = nil
	}
	sess.graceGen++
}

func (r *Reaper) fire(sess *Session, gen uint64) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.graceGen != gen {
		return
	}
	sess.grace = nil
	if !idleLocked(sess) {
		return
	}

	r.logger.Info().
		Str("tenant_id", sess.tenantID).
		Msg("session idle past grace period, disconnecting")
	r.purgeLocked(sess, ReasonIdle)
	r.bus.Publish(events.EventSessionReaped, events.Payload{
		"tenant_id": sess.tenantID,
		"reason":    ReasonIdle,
	})
}

// idleLocked reports whether the session has nothing to do and may be
// reaped.
func idleLocked(sess *Session) bool {
	if sess.pinned || sess.current != nil || len(sess.queue) > 0 {
		return false
	}
	return sess.state == StateIdle || sess.state == StateDraining
}

// purgeLocked tears the session down and drops it from the registry.
// Must be called with sess.mu held.
func (r *Reaper) purgeLocked(sess *Session, reason string) {
	r.cancelLocked(sess)

	handle := sess.handle
	sess.handle = nil
	sess.queue = nil
	sess.current = nil
	sess.attempt = ""
	if sess.state != StateDisconnecting {
		if err := sess.transitionLocked(StateDisconnecting); err != nil {
			r.logger.Error().Err(err).Str("tenant_id", sess.tenantID).Msg("purge transition rejected")
			sess.state = StateDisconnecting
		}
	}

	if handle != nil {
		handle.Stop()
		if err := handle.Disconnect(); err != nil {
			r.logger.Warn().Err(err).Str("tenant_id", sess.tenantID).Msg("voice disconnect failed")
		}
	}

	if r.registry.RemoveIf(sess.tenantID, sess) {
		telemetry.SessionsRemoved.WithLabelValues(reason).Inc()
	}
}

// Sweep purges sessions that are disconnecting or whose voice connection
// is gone. It returns the number of sessions removed.
func (r *Reaper) Sweep() int {
	purged := 0
	for _, sess := range r.registry.Snapshot() {
		sess.mu.Lock()
		dead := sess.state == StateDisconnecting ||
			(sess.handle != nil && !sess.handle.Connected())
		if dead {
			r.logger.Info().
				Str("tenant_id", sess.tenantID).
				Str("state", string(sess.state)).
				Msg("purging disconnected session")
			r.purgeLocked(sess, ReasonDisconnected)
			purged++
		}
		sess.mu.Unlock()

		if dead {
			r.bus.Publish(events.EventSessionPurged, events.Payload{
				"tenant_id": sess.tenantID,
				"reason":    ReasonDisconnected,
			})
		}
	}
	return purged
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	if r.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug().Int("purged", n).Msg("sweep complete")
			}
		}
	}
}

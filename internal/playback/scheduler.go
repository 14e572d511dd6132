/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/auralux/internal/events"
	"github.com/friendsincode/auralux/internal/models"
	"github.com/friendsincode/auralux/internal/sink"
	"github.com/friendsincode/auralux/internal/telemetry"
)

// DefaultConnectTimeout bounds a single voice connect.
const DefaultConnectTimeout = 15 * time.Second

// Scheduler drives per-tenant playback: it owns the queue, hands tracks to
// the sink one at a time and advances on completion.
type Scheduler struct {
	registry       *Registry
	sink           sink.Sink
	reaper         *Reaper
	bus            *events.Bus
	connectTimeout time.Duration
	logger         zerolog.Logger
}

// NewScheduler wires a scheduler to its registry, sink and reaper.
func NewScheduler(registry *Registry, sk sink.Sink, reaper *Reaper, bus *events.Bus, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		registry:       registry,
		sink:           sk,
		reaper:         reaper,
		bus:            bus,
		connectTimeout: DefaultConnectTimeout,
		logger:         logger.With().Str("component", "scheduler").Logger(),
	}
}

// SetConnectTimeout overrides DefaultConnectTimeout.
func (s *Scheduler) SetConnectTimeout(d time.Duration) {
	if d > 0 {
		s.connectTimeout = d
	}
}

// Connect ensures the tenant has a session bound to a live voice handle.
// A connected handle is reused as is.
func (s *Scheduler) Connect(ctx context.Context, vc sink.VoiceContext) error {
	for {
		sess := s.registry.GetOrCreate(vc.TenantID)
		retry, err := s.connectSession(ctx, sess, vc)
		if retry {
			continue
		}
		return err
	}
}

func (s *Scheduler) connectSession(ctx context.Context, sess *Session, vc sink.VoiceContext) (bool, error) {
	sess.connectMu.Lock()
	defer sess.connectMu.Unlock()

	logger := s.logger.With().Str("tenant_id", vc.TenantID).Str("channel_id", vc.ChannelID).Logger()

	sess.mu.Lock()
	switch {
	case sess.state == StateDisconnecting:
		// Torn down between lookup and lock: drop it and start fresh.
		s.reaper.purgeLocked(sess, ReasonDisconnected)
		sess.mu.Unlock()
		return true, nil

	case sess.handle != nil && sess.handle.Connected():
		sess.lastActivity = s.registry.clock.Now()
		sess.mu.Unlock()
		return false, nil

	case sess.state.Active():
		// Playing on a handle that is gone: the whole session is dead.
		logger.Warn().Str("state", string(sess.state)).Msg("voice handle lost while active, discarding session")
		s.reaper.purgeLocked(sess, ReasonDisconnected)
		sess.mu.Unlock()
		return true, nil
	}

	fresh := sess.handle == nil && sess.current == nil && len(sess.queue) == 0 && sess.state == StateIdle
	if stale := sess.handle; stale != nil {
		sess.handle = nil
		if err := stale.Disconnect(); err != nil {
			logger.Debug().Err(err).Msg("releasing stale voice handle")
		}
	}
	sess.current = nil
	sess.attempt = ""
	s.reaper.cancelLocked(sess)
	if err := sess.transitionLocked(StateConnecting); err != nil {
		sess.mu.Unlock()
		return false, err
	}
	sess.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()
	logger.Info().Msg("connecting to voice channel")
	handle, connErr := s.sink.Connect(connectCtx, vc)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StateConnecting {
		if handle != nil {
			_ = handle.Disconnect()
		}
		return false, fmt.Errorf("%w: session closed during connect", ErrSinkConnectFailed)
	}

	if connErr != nil {
		logger.Warn().Err(connErr).Msg("voice connect failed")
		if fresh {
			s.reaper.purgeLocked(sess, ReasonDisconnected)
		} else {
			s.transition(sess, StateIdle)
			if idleLocked(sess) {
				s.reaper.armLocked(sess)
			}
		}
		return false, fmt.Errorf("%w: %v", ErrSinkConnectFailed, connErr)
	}

	sess.handle = handle
	sess.lastActivity = s.registry.clock.Now()
	s.transition(sess, StateIdle)
	logger.Info().Msg("voice connected")

	// Tracks queued while connecting start now.
	if len(sess.queue) > 0 {
		s.advanceLocked(sess)
	} else if idleLocked(sess) {
		s.reaper.armLocked(sess)
	}
	return false, nil
}

// Enqueue appends t to the tenant's queue. If nothing is playing the queue
// starts immediately; started reports whether t became the current track.
// Otherwise position is t's 1-based place in the queue. When t was the only
// track and the sink refused it, the error wraps ErrSinkPlayFailed.
func (s *Scheduler) Enqueue(tenantID string, t models.Track) (position int, started bool, err error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return 0, false, ErrNoSession
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == StateDisconnecting {
		return 0, false, ErrNoSession
	}

	s.reaper.cancelLocked(sess)
	sess.lastActivity = s.registry.clock.Now()
	sess.queue = append(sess.queue, t)

	if sess.current == nil && (sess.state == StateIdle || sess.state == StateDraining) {
		s.advanceLocked(sess)
		if len(sess.queue) == 0 {
			if sess.current == nil {
				// track.failed was already published for t.
				return 0, false, fmt.Errorf("%w: %s", ErrSinkPlayFailed, t.Title)
			}
			return 0, true, nil
		}
	}
	return len(sess.queue), false, nil
}

// OnSinkComplete is the sink's completion callback. Completions for
// attempts other than the session's current one are ignored.
func (s *Scheduler) OnSinkComplete(tenantID, attemptID string, err error) {
	logger := s.logger.With().Str("tenant_id", tenantID).Str("attempt_id", attemptID).Logger()

	sess, ok := s.registry.Get(tenantID)
	if !ok {
		telemetry.StaleCompletions.Inc()
		logger.Debug().Msg("completion for unknown session dropped")
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if attemptID == "" || attemptID != sess.attempt {
		telemetry.StaleCompletions.Inc()
		logger.Debug().Str("current_attempt", sess.attempt).Msg("stale completion dropped")
		return
	}
	sess.attempt = ""
	if err != nil {
		logger.Error().Err(err).Msg("playback ended with error")
	}
	sess.lastActivity = s.registry.clock.Now()
	s.advanceLocked(sess)
}

func (s *Scheduler) completionFor(tenantID string) sink.CompletionFunc {
	return func(attemptID string, err error) {
		s.OnSinkComplete(tenantID, attemptID, err)
	}
}

// advanceLocked picks the next track and hands it to the sink. Must be
// called with sess.mu held.
func (s *Scheduler) advanceLocked(sess *Session) {
	logger := s.logger.With().Str("tenant_id", sess.tenantID).Logger()
	sess.attempt = ""

	// Each failure either discards a queued track or ends a loop, so this
	// bound is only reached if the sink misbehaves.
	budget := len(sess.queue) + 1
	for failures := 0; ; failures++ {
		if sess.handle == nil || !sess.handle.Connected() {
			logger.Warn().Msg("voice handle not connected, abandoning playback")
			sess.current = nil
			s.transition(sess, StateDisconnecting)
			return
		}
		if failures > budget {
			s.drainLocked(sess)
			return
		}

		var next models.Track
		switch {
		case sess.loop && sess.current != nil:
			next = *sess.current
		case len(sess.queue) > 0:
			next = sess.queue[0]
			sess.queue[0] = models.Track{}
			sess.queue = sess.queue[1:]
		default:
			s.drainLocked(sess)
			return
		}

		attemptID, err := sess.handle.Play(next, sess.gain, s.completionFor(sess.tenantID))
		if err != nil {
			telemetry.PlayFailures.Inc()
			logger.Warn().Err(err).Str("title", next.Title).Msg("failed to start track, skipping")
			sess.current = nil
			s.bus.Publish(events.EventTrackFailed, events.Payload{
				"tenant_id": sess.tenantID,
				"title":     next.Title,
				"error":     err.Error(),
			})
			continue
		}

		sess.current = &next
		sess.attempt = attemptID
		s.transition(sess, StatePlaying)
		telemetry.TracksStarted.Inc()
		logger.Info().
			Str("title", next.Title).
			Str("attempt_id", attemptID).
			Bool("loop", sess.loop).
			Msg("track started")
		s.bus.Publish(events.EventTrackStarted, events.Payload{
			"tenant_id":  sess.tenantID,
			"title":      next.Title,
			"duration":   next.DurationString(),
			"source_ref": next.SourceRef,
			"attempt_id": attemptID,
		})
		return
	}
}

func (s *Scheduler) drainLocked(sess *Session) {
	sess.current = nil
	sess.attempt = ""
	s.transition(sess, StateDraining)
	s.bus.Publish(events.EventQueueDrained, events.Payload{
		"tenant_id": sess.tenantID,
	})
	if !sess.pinned {
		s.reaper.armLocked(sess)
	}
}

func (s *Scheduler) transition(sess *Session, to LifecycleState) {
	from := sess.state
	if err := sess.transitionLocked(to); err != nil {
		s.logger.Error().Err(err).Str("tenant_id", sess.tenantID).Msg("state transition rejected")
		return
	}
	if from != to {
		s.logger.Debug().
			Str("tenant_id", sess.tenantID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("session state changed")
	}
}

// Skip stops the current track; its completion advances the queue. With
// loop on the same track replays.
func (s *Scheduler) Skip(tenantID string) (models.Track, error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return models.Track{}, ErrNotPlaying
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.state.Active() || sess.current == nil || sess.handle == nil {
		return models.Track{}, ErrNotPlaying
	}
	skipped := *sess.current
	sess.lastActivity = s.registry.clock.Now()
	sess.handle.Stop()
	return skipped, nil
}

// Pause pauses the current track.
func (s *Scheduler) Pause(tenantID string) error {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return ErrNotPlaying
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StatePlaying || sess.handle == nil {
		return ErrNotPlaying
	}
	sess.handle.Pause()
	sess.lastActivity = s.registry.clock.Now()
	s.transition(sess, StatePaused)
	return nil
}

// Resume resumes a paused track.
func (s *Scheduler) Resume(tenantID string) error {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return ErrNotPaused
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StatePaused || sess.handle == nil {
		return ErrNotPaused
	}
	s.reaper.cancelLocked(sess)
	sess.handle.Resume()
	sess.lastActivity = s.registry.clock.Now()
	s.transition(sess, StatePlaying)
	return nil
}

// SetGain sets the session volume from a 0-100 value. It applies to the
// playing track immediately and to every later track.
func (s *Scheduler) SetGain(tenantID string, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidVolumeRange, volume)
	}
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return ErrNoSession
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == StateDisconnecting {
		return ErrNoSession
	}
	sess.gain = float64(volume) / 100
	if sess.state.Active() && sess.handle != nil {
		sess.handle.SetGain(sess.gain)
	}
	return nil
}

// ToggleLoop flips loop mode and returns the new value.
func (s *Scheduler) ToggleLoop(tenantID string) (bool, error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return false, ErrNoActiveTrack
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.current == nil {
		return false, ErrNoActiveTrack
	}
	sess.loop = !sess.loop
	return sess.loop, nil
}

// ToggleStay flips the pinned flag and returns the new value. A pinned
// session is never reaped for idleness.
func (s *Scheduler) ToggleStay(tenantID string) (bool, error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return false, ErrNoSession
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == StateDisconnecting {
		return false, ErrNoSession
	}
	sess.pinned = !sess.pinned
	if sess.pinned {
		s.reaper.cancelLocked(sess)
	} else if idleLocked(sess) {
		s.reaper.armLocked(sess)
	}
	return sess.pinned, nil
}

// StopAndDrain clears the queue, stops playback and starts the idle timer.
func (s *Scheduler) StopAndDrain(tenantID string) error {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return ErrNoSession
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == StateDisconnecting {
		return ErrNoSession
	}

	sess.queue = sess.queue[:0]
	sess.current = nil
	sess.attempt = ""
	if sess.handle != nil {
		sess.handle.Stop()
	}
	if sess.state != StateConnecting {
		s.transition(sess, StateDraining)
	}
	// The timer is armed even when pinned; the pin is checked again when
	// it fires.
	s.reaper.armLocked(sess)
	return nil
}

// View returns a snapshot of the tenant's session.
func (s *Scheduler) View(tenantID string) (SessionView, error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return SessionView{}, ErrNoSession
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.viewLocked(), nil
}

// Sessions returns the number of registered sessions. It takes no tenant
// lock.
func (s *Scheduler) Sessions() int {
	return s.registry.Len()
}

// Views returns snapshots of every session ordered by tenant.
func (s *Scheduler) Views() []SessionView {
	sessions := s.registry.Snapshot()
	out := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		sess.mu.Lock()
		out = append(out, sess.viewLocked())
		sess.mu.Unlock()
	}
	return out
}

// Shutdown disconnects every session.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	sessions := s.registry.Snapshot()
	s.logger.Info().Int("sessions", len(sessions)).Msg("disconnecting all sessions")
	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			return err
		}
		sess.mu.Lock()
		s.reaper.purgeLocked(sess, ReasonShutdown)
		sess.mu.Unlock()
	}
	return nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "fmt"

// LifecycleState is the scheduler state of one tenant session.
type LifecycleState string

const (
	StateIdle          LifecycleState = "idle"
	StateConnecting    LifecycleState = "connecting"
	StatePlaying       LifecycleState = "playing"
	StatePaused        LifecycleState = "paused"
	StateDraining      LifecycleState = "draining"
	StateDisconnecting LifecycleState = "disconnecting"
)

var validTransitions = map[LifecycleState][]LifecycleState{
	StateIdle: {
		StateConnecting,
		StatePlaying,
		StateDraining,
		StateDisconnecting,
	},
	StateConnecting: {
		StateIdle,
		StateDisconnecting,
	},
	StatePlaying: {
		StatePlaying, // next track or loop replay
		StatePaused,
		StateDraining,
		StateDisconnecting,
	},
	StatePaused: {
		StatePlaying,
		StateDraining,
		StateDisconnecting,
	},
	StateDraining: {
		StateIdle,
		StateConnecting,
		StatePlaying,
		StateDraining,
		StateDisconnecting,
	},
	// Disconnecting is terminal: the session is removed from the registry.
	StateDisconnecting: {},
}

func isValidTransition(from, to LifecycleState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Active reports whether a track is handed to the sink in this state.
func (s LifecycleState) Active() bool {
	return s == StatePlaying || s == StatePaused
}

// transitionLocked moves the session to a new state. Must be called with
// s.mu held.
func (s *Session) transitionLocked(to LifecycleState) error {
	if !isValidTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	return nil
}

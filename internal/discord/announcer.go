/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/friendsincode/auralux/internal/events"
)

// Messenger sends chat messages. *discordgo.Session implements it.
type Messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Announcer posts playback events to the text channel each guild last
// used for a command.
type Announcer struct {
	messenger Messenger
	intents   Intents
	bus       *events.Bus
	logger    zerolog.Logger

	mu       sync.Mutex
	channels map[string]string // tenant -> text channel
}

// NewAnnouncer creates an announcer. intents may be nil.
func NewAnnouncer(m Messenger, intents Intents, bus *events.Bus, logger zerolog.Logger) *Announcer {
	return &Announcer{
		messenger: m,
		intents:   intents,
		bus:       bus,
		logger:    logger.With().Str("component", "announcer").Logger(),
		channels:  make(map[string]string),
	}
}

// Remember records the text channel to announce to for tenantID.
func (a *Announcer) Remember(tenantID, channelID string) {
	a.mu.Lock()
	a.channels[tenantID] = channelID
	a.mu.Unlock()
}

// Channel returns the remembered text channel for tenantID.
func (a *Announcer) Channel(tenantID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.channels[tenantID]
	return ch, ok
}

func (a *Announcer) forget(tenantID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.channels[tenantID]
	delete(a.channels, tenantID)
	return ch, ok
}

// Run consumes bus events until ctx is done.
func (a *Announcer) Run(ctx context.Context) {
	started := a.bus.Subscribe(events.EventTrackStarted)
	failed := a.bus.Subscribe(events.EventTrackFailed)
	reaped := a.bus.Subscribe(events.EventSessionReaped)
	purged := a.bus.Subscribe(events.EventSessionPurged)
	defer func() {
		a.bus.Unsubscribe(events.EventTrackStarted, started)
		a.bus.Unsubscribe(events.EventTrackFailed, failed)
		a.bus.Unsubscribe(events.EventSessionReaped, reaped)
		a.bus.Unsubscribe(events.EventSessionPurged, purged)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-started:
			a.handle(events.EventTrackStarted, p)
		case p := <-failed:
			a.handle(events.EventTrackFailed, p)
		case p := <-reaped:
			a.handle(events.EventSessionReaped, p)
		case p := <-purged:
			a.handle(events.EventSessionPurged, p)
		}
	}
}

func (a *Announcer) handle(t events.EventType, p events.Payload) {
	tenantID, _ := p["tenant_id"].(string)
	if tenantID == "" {
		return
	}

	switch t {
	case events.EventTrackStarted:
		title, _ := p["title"].(string)
		duration, _ := p["duration"].(string)
		a.send(tenantID, fmt.Sprintf(msgNowPlaying, title, duration))
	case events.EventTrackFailed:
		a.send(tenantID, msgPlayFailed)
	case events.EventSessionReaped:
		if ch, ok := a.forget(tenantID); ok {
			a.post(tenantID, ch, msgGoodbye)
		}
		a.release(tenantID)
	case events.EventSessionPurged:
		a.forget(tenantID)
		a.release(tenantID)
	}
}

func (a *Announcer) release(tenantID string) {
	if a.intents != nil {
		a.intents.Forget(tenantID)
	}
}

func (a *Announcer) send(tenantID, content string) {
	ch, ok := a.Channel(tenantID)
	if !ok {
		a.logger.Debug().Str("tenant_id", tenantID).Msg("no channel to announce to")
		return
	}
	a.post(tenantID, ch, content)
}

func (a *Announcer) post(tenantID, channelID, content string) {
	if _, err := a.messenger.ChannelMessageSend(channelID, content); err != nil {
		a.logger.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("channel_id", channelID).
			Msg("announcement failed")
	}
}

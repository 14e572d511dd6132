/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package discord is the text-command front-end: it parses prefix
// commands, calls jukebox intents and posts replies and announcements.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/friendsincode/auralux/internal/events"
	"github.com/friendsincode/auralux/internal/sink"
)

// commandTimeout bounds one command, resolution included.
const commandTimeout = 90 * time.Second

// Options configures the bot.
type Options struct {
	Prefix         string
	Grace          time.Duration
	PremiumContact string
}

// Bot owns the gateway session and routes messages to the handler.
type Bot struct {
	session   *discordgo.Session
	handler   *Handler
	announcer *Announcer
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates a gateway session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent
	return s, nil
}

// New wires a bot onto session. The session is not opened.
func New(session *discordgo.Session, intents Intents, bus *events.Bus, opts Options, logger zerolog.Logger) *Bot {
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	b := &Bot{
		session:   session,
		handler:   NewHandler(intents, opts.Prefix, opts.Grace, opts.PremiumContact),
		announcer: NewAnnouncer(session, intents, bus, logger),
		logger:    logger.With().Str("component", "discord").Logger(),
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	return b
}

// Open connects to the gateway and starts announcing events.
func (b *Bot) Open() error {
	go b.announcer.Run(b.ctx)
	if err := b.session.Open(); err != nil {
		b.cancel()
		return fmt.Errorf("open discord session: %w", err)
	}
	return nil
}

// Close stops command handling and closes the gateway session.
func (b *Bot) Close() error {
	b.cancel()
	return b.session.Close()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("discord ready")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	cmd, ok := ParseCommand(b.handler.prefix, m.Content)
	if !ok || !b.handler.Known(cmd.Name) {
		return
	}

	req := Request{
		Command:     cmd,
		TenantID:    m.GuildID,
		ChannelID:   m.ChannelID,
		RequesterID: m.Author.ID,
		Voice:       voiceContext(s, m.GuildID, m.Author.ID),
	}
	b.announcer.Remember(req.TenantID, req.ChannelID)

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	log := b.logger.With().
		Str("tenant_id", req.TenantID).
		Str("requester_id", req.RequesterID).
		Str("command", cmd.Name).
		Logger()
	log.Debug().Str("args", cmd.Args).Msg("command received")

	reply := b.handler.Handle(ctx, req)
	if reply.empty() {
		return
	}
	var err error
	if reply.Embed != nil {
		_, err = s.ChannelMessageSendEmbed(m.ChannelID, reply.Embed)
	} else {
		_, err = s.ChannelMessageSend(m.ChannelID, reply.Content)
	}
	if err != nil {
		log.Warn().Err(err).Msg("reply failed")
	}
}

// voiceContext returns where userID is listening in guildID, or nil.
func voiceContext(s *discordgo.Session, guildID, userID string) *sink.VoiceContext {
	if s.State == nil {
		return nil
	}
	vs, err := s.State.VoiceState(guildID, userID)
	if err != nil || vs.ChannelID == "" {
		return nil
	}
	return &sink.VoiceContext{
		TenantID:  guildID,
		ChannelID: vs.ChannelID,
		UserID:    userID,
	}
}

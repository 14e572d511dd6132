/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/friendsincode/auralux/internal/jukebox"
	"github.com/friendsincode/auralux/internal/models"
	"github.com/friendsincode/auralux/internal/playback"
	"github.com/friendsincode/auralux/internal/resolver"
	"github.com/friendsincode/auralux/internal/sink"
	"github.com/friendsincode/auralux/internal/telemetry"
)

// Reply texts.
const (
	msgNotInVoice      = "❌ You need to be in a voice channel to use this command!"
	msgNotFound        = "❌ Could not find the song. Please try a different search term."
	msgJoinFailed      = "❌ Could not join your voice channel. Please try again."
	msgRateLimited     = "⏳ Slow down! Try again in a moment."
	msgQueued          = "✅ Added to queue: **%s** (Position: %d)"
	msgNowPlaying      = "🎵 Now playing: **%s** (%s)"
	msgSkipped         = "⏭️ Skipped the current song!"
	msgPaused          = "⏸️ Music paused!"
	msgResumed         = "▶️ Music resumed!"
	msgStopped         = "⏹️ Music stopped! I'll stay here for %s more minutes."
	msgVolume          = "🔊 Volume set to %d%%!"
	msgVolumeRange     = "❌ Volume must be between 0 and 100!"
	msgLoop            = "🔄 Loop %s!"
	msgQueueEmpty      = "📭 The queue is empty!"
	msgQueueHeader     = "📋 **Current Queue:**\n"
	msgQueueMore       = "... and %d more songs"
	msgHighQuality     = "✨ High quality mode is now active for your next songs!"
	msgStay            = "🏠 Stay forever mode %s!"
	msgPremium         = "🔒 It is a premium feature."
	msgPremiumContact  = "🔒 It is a premium feature, dm %s to get premium."
	msgNotPlaying      = "❌ No music is currently playing!"
	msgNotPaused       = "❌ No music is currently paused!"
	msgNotConnected    = "❌ Bot is not connected to a voice channel!"
	msgMissingArgument = "❌ Missing required argument! Use `%shelp` for command usage."
	msgCommandError    = "❌ An error occurred while processing the command."
	msgPlayFailed      = "❌ Error creating audio source. Skipping..."
	msgGoodbye         = "Thanks for using Auralux music bot, hope you had a good experience 😊"
)

// Intents is the jukebox surface the front-end drives.
type Intents interface {
	RequestPlay(ctx context.Context, req jukebox.PlayRequest) (jukebox.PlayResult, error)
	RequestSkip(tenantID string) (models.Track, error)
	RequestPause(tenantID string) error
	RequestResume(tenantID string) error
	RequestStop(tenantID string) error
	RequestSetVolume(tenantID string, volume int) error
	RequestToggleLoop(tenantID string) (bool, error)
	RequestToggleStay(tenantID, requesterID string) (bool, error)
	RequestHighQuality(tenantID, requesterID string) error
	RequestQueueView(tenantID string) (jukebox.QueueView, error)
	RequestNowPlaying(tenantID string) (jukebox.NowPlaying, error)
	Forget(tenantID string)
}

// Command is one parsed prefix command.
type Command struct {
	Name string
	Args string
}

// ParseCommand splits "!play never gonna" into {play, "never gonna"}.
// Names are case-insensitive. ok is false when content is not a command.
func ParseCommand(prefix, content string) (cmd Command, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}
	rest := strings.TrimSpace(content[len(prefix):])
	if rest == "" {
		return Command{}, false
	}
	name, args, _ := strings.Cut(rest, " ")
	return Command{
		Name: strings.ToLower(name),
		Args: strings.TrimSpace(args),
	}, true
}

// Request carries a command and who sent it from where.
type Request struct {
	Command
	TenantID    string
	ChannelID   string // text channel
	RequesterID string
	Voice       *sink.VoiceContext
}

// Reply is what the bot sends back. Empty replies are not sent.
type Reply struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

func (r Reply) empty() bool {
	return r.Content == "" && r.Embed == nil
}

type handlerFunc func(ctx context.Context, req Request) (Reply, error)

// Handler maps commands to jukebox intents and renders replies.
type Handler struct {
	intents        Intents
	prefix         string
	grace          time.Duration
	premiumContact string
	commands       map[string]handlerFunc
}

// NewHandler creates a command handler. grace is quoted by the stop reply.
func NewHandler(intents Intents, prefix string, grace time.Duration, premiumContact string) *Handler {
	h := &Handler{
		intents:        intents,
		prefix:         prefix,
		grace:          grace,
		premiumContact: premiumContact,
	}
	h.commands = map[string]handlerFunc{
		"play":       h.play,
		"skip":       h.skip,
		"pause":      h.pause,
		"resume":     h.resume,
		"stop":       h.stop,
		"volume":     h.volume,
		"loop":       h.loop,
		"queue":      h.queue,
		"nowplaying": h.nowPlaying,
		"hq":         h.highQuality,
		"stay":       h.stay,
		"help":       h.help,
	}
	return h
}

// Known reports whether name is a registered command.
func (h *Handler) Known(name string) bool {
	_, ok := h.commands[name]
	return ok
}

// Handle runs one command. Unknown commands produce an empty reply.
func (h *Handler) Handle(ctx context.Context, req Request) Reply {
	fn, ok := h.commands[req.Name]
	if !ok {
		return Reply{}
	}
	reply, err := fn(ctx, req)
	result := "ok"
	if err != nil {
		result = "error"
		reply = Reply{Content: h.errorText(err)}
	}
	telemetry.CommandsTotal.WithLabelValues(req.Name, result).Inc()
	return reply
}

var errMissingArgument = errors.New("missing required argument")

// errorText picks the user-visible text for a failed intent.
func (h *Handler) errorText(err error) string {
	switch {
	case errors.Is(err, errMissingArgument):
		return fmt.Sprintf(msgMissingArgument, h.prefix)
	case errors.Is(err, jukebox.ErrNotInVoiceContext):
		return msgNotInVoice
	case errors.Is(err, jukebox.ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, jukebox.ErrNotPremium):
		if h.premiumContact != "" {
			return fmt.Sprintf(msgPremiumContact, h.premiumContact)
		}
		return msgPremium
	case errors.Is(err, resolver.ErrNotFound), errors.Is(err, resolver.ErrResolutionFailed):
		return msgNotFound
	case errors.Is(err, playback.ErrSinkConnectFailed):
		return msgJoinFailed
	case errors.Is(err, playback.ErrSinkPlayFailed):
		// The announcer reports it from track.failed.
		return ""
	case errors.Is(err, playback.ErrInvalidVolumeRange):
		return msgVolumeRange
	case errors.Is(err, playback.ErrNotPlaying), errors.Is(err, playback.ErrNoActiveTrack):
		return msgNotPlaying
	case errors.Is(err, playback.ErrNotPaused):
		return msgNotPaused
	case errors.Is(err, playback.ErrNoSession):
		return msgNotConnected
	default:
		return msgCommandError
	}
}

func (h *Handler) play(ctx context.Context, req Request) (Reply, error) {
	if req.Args == "" {
		return Reply{}, errMissingArgument
	}
	res, err := h.intents.RequestPlay(ctx, jukebox.PlayRequest{
		TenantID:    req.TenantID,
		Voice:       req.Voice,
		Query:       req.Args,
		RequesterID: req.RequesterID,
	})
	if err != nil {
		return Reply{}, err
	}
	// A started track is announced from the track.started event.
	if res.Started {
		return Reply{}, nil
	}
	return Reply{Content: fmt.Sprintf(msgQueued, res.Track.Title, res.Position)}, nil
}

func (h *Handler) skip(_ context.Context, req Request) (Reply, error) {
	if _, err := h.intents.RequestSkip(req.TenantID); err != nil {
		if errors.Is(err, playback.ErrNoSession) {
			return Reply{}, playback.ErrNotPlaying
		}
		return Reply{}, err
	}
	return Reply{Content: msgSkipped}, nil
}

func (h *Handler) pause(_ context.Context, req Request) (Reply, error) {
	if err := h.intents.RequestPause(req.TenantID); err != nil {
		if errors.Is(err, playback.ErrNoSession) {
			return Reply{}, playback.ErrNotPlaying
		}
		return Reply{}, err
	}
	return Reply{Content: msgPaused}, nil
}

func (h *Handler) resume(_ context.Context, req Request) (Reply, error) {
	if err := h.intents.RequestResume(req.TenantID); err != nil {
		if errors.Is(err, playback.ErrNoSession) {
			return Reply{}, playback.ErrNotPaused
		}
		return Reply{}, err
	}
	return Reply{Content: msgResumed}, nil
}

func (h *Handler) stop(_ context.Context, req Request) (Reply, error) {
	if err := h.intents.RequestStop(req.TenantID); err != nil {
		return Reply{}, err
	}
	return Reply{Content: fmt.Sprintf(msgStopped, graceMinutes(h.grace))}, nil
}

func (h *Handler) volume(_ context.Context, req Request) (Reply, error) {
	if req.Args == "" {
		return Reply{}, errMissingArgument
	}
	vol, err := strconv.Atoi(strings.Fields(req.Args)[0])
	if err != nil {
		return Reply{}, fmt.Errorf("volume %q: %w", req.Args, errMissingArgument)
	}
	if err := h.intents.RequestSetVolume(req.TenantID, vol); err != nil {
		return Reply{}, err
	}
	return Reply{Content: fmt.Sprintf(msgVolume, vol)}, nil
}

func (h *Handler) loop(_ context.Context, req Request) (Reply, error) {
	on, err := h.intents.RequestToggleLoop(req.TenantID)
	if err != nil {
		if errors.Is(err, playback.ErrNoSession) {
			return Reply{}, playback.ErrNotPlaying
		}
		return Reply{}, err
	}
	return Reply{Content: fmt.Sprintf(msgLoop, enabledText(on))}, nil
}

func (h *Handler) queue(_ context.Context, req Request) (Reply, error) {
	v, err := h.intents.RequestQueueView(req.TenantID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Content: FormatQueue(v)}, nil
}

func (h *Handler) nowPlaying(_ context.Context, req Request) (Reply, error) {
	np, err := h.intents.RequestNowPlaying(req.TenantID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Embed: NowPlayingEmbed(np)}, nil
}

func (h *Handler) highQuality(_ context.Context, req Request) (Reply, error) {
	if err := h.intents.RequestHighQuality(req.TenantID, req.RequesterID); err != nil {
		return Reply{}, err
	}
	return Reply{Content: msgHighQuality}, nil
}

func (h *Handler) stay(_ context.Context, req Request) (Reply, error) {
	on, err := h.intents.RequestToggleStay(req.TenantID, req.RequesterID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Content: fmt.Sprintf(msgStay, enabledText(on))}, nil
}

func (h *Handler) help(context.Context, Request) (Reply, error) {
	return Reply{Embed: HelpEmbed(h.prefix, h.premiumContact)}, nil
}

// FormatQueue renders a queue view as a chat message.
func FormatQueue(v jukebox.QueueView) string {
	if v.Total == 0 {
		return msgQueueEmpty
	}
	var b strings.Builder
	b.WriteString(msgQueueHeader)
	for i, t := range v.Items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Title)
	}
	if more := v.Total - len(v.Items); more > 0 {
		fmt.Fprintf(&b, msgQueueMore, more)
	}
	return b.String()
}

// NowPlayingEmbed renders the current track.
func NowPlayingEmbed(np jukebox.NowPlaying) *discordgo.MessageEmbed {
	loop := "❌"
	if np.Loop {
		loop = "✅"
	}
	return &discordgo.MessageEmbed{
		Title: "🎵 Now Playing",
		Color: 0x00ff00,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Title", Value: np.Track.Title},
			{Name: "Duration", Value: np.Track.DurationString(), Inline: true},
			{Name: "Loop", Value: loop, Inline: true},
		},
	}
}

// HelpEmbed lists the commands.
func HelpEmbed(prefix, premiumContact string) *discordgo.MessageEmbed {
	music := []string{
		"`%splay <song>` - Play a song",
		"`%sskip` - Skip current song",
		"`%spause` - Pause music",
		"`%sresume` - Resume music",
		"`%sstop` - Stop music",
		"`%svolume <0-100>` - Set volume",
		"`%sloop` - Toggle loop",
		"`%squeue` - Show queue",
		"`%snowplaying` - Show current song",
	}
	premium := []string{
		"`%shq` - High quality mode",
		"`%sstay` - Stay in VC forever",
	}
	render := func(lines []string) []string {
		out := make([]string, len(lines))
		for i, l := range lines {
			out[i] = fmt.Sprintf(l, prefix)
		}
		return out
	}
	premiumLines := render(premium)
	if premiumContact != "" {
		premiumLines = append(premiumLines, fmt.Sprintf("*DM %s for premium access*", premiumContact))
	}
	return &discordgo.MessageEmbed{
		Title: "🎵 Auralux Music Bot Commands",
		Color: 0x0099ff,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🎵 Music Commands", Value: strings.Join(render(music), "\n")},
			{Name: "⭐ Premium Commands", Value: strings.Join(premiumLines, "\n")},
		},
	}
}

func enabledText(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// graceMinutes renders a grace period as whole minutes, or a fraction
// when shorter than one.
func graceMinutes(d time.Duration) string {
	if d%time.Minute == 0 {
		return strconv.Itoa(int(d / time.Minute))
	}
	return strconv.FormatFloat(d.Minutes(), 'f', 1, 64)
}

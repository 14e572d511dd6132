/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/auralux/internal/models"
)

const sendTimeout = 2 * time.Second

// DiscordSink streams tracks into Discord voice channels through ffmpeg and
// an Opus encoder.
type DiscordSink struct {
	session *discordgo.Session
	ffmpeg  string
	logger  zerolog.Logger
}

// NewDiscordSink creates a sink using the given gateway session.
func NewDiscordSink(session *discordgo.Session, ffmpegBin string, logger zerolog.Logger) *DiscordSink {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	return &DiscordSink{
		session: session,
		ffmpeg:  ffmpegBin,
		logger:  logger.With().Str("component", "sink").Logger(),
	}
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// Connect joins the voice channel. discordgo's join does not take a
// context, so a join that completes after ctx expires is torn down.
func (s *DiscordSink) Connect(ctx context.Context, vctx VoiceContext) (Handle, error) {
	result := make(chan joinResult, 1)
	go func() {
		vc, err := s.session.ChannelVoiceJoin(vctx.TenantID, vctx.ChannelID, false, true)
		result <- joinResult{vc: vc, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnect, r.err)
		}
		logger := s.logger.With().Str("tenant_id", vctx.TenantID).Str("channel_id", vctx.ChannelID).Logger()
		return newVoiceHandle(r.vc, s.ffmpeg, logger), nil
	case <-ctx.Done():
		go func() {
			if r := <-result; r.vc != nil {
				_ = r.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("%w: %v", ErrConnect, ctx.Err())
	}
}

type attempt struct {
	id       string
	cancel   context.CancelFunc
	finished chan struct{}
}

type voiceHandle struct {
	vc     *discordgo.VoiceConnection
	ffmpeg string
	leave  func() error // leaves the voice channel
	logger zerolog.Logger

	gain atomic.Uint64 // math.Float64bits

	mu           sync.Mutex
	cur          *attempt
	resume       chan struct{} // non-nil while paused
	disconnected bool
}

func newVoiceHandle(vc *discordgo.VoiceConnection, ffmpegBin string, logger zerolog.Logger) *voiceHandle {
	h := &voiceHandle{
		vc:     vc,
		ffmpeg: ffmpegBin,
		leave:  vc.Disconnect,
		logger: logger,
	}
	h.SetGain(1)
	return h
}

func (h *voiceHandle) ChannelID() string {
	h.vc.RLock()
	defer h.vc.RUnlock()
	return h.vc.ChannelID
}

func (h *voiceHandle) Connected() bool {
	h.mu.Lock()
	gone := h.disconnected
	h.mu.Unlock()
	if gone {
		return false
	}
	h.vc.RLock()
	defer h.vc.RUnlock()
	return h.vc.Ready
}

func (h *voiceHandle) Play(t models.Track, gain float64, done CompletionFunc) (string, error) {
	if !h.Connected() {
		return "", fmt.Errorf("%w: %v", ErrPlay, ErrNotConnected)
	}
	if t.StreamRef == "" {
		return "", fmt.Errorf("%w: empty stream reference", ErrPlay)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.ffmpeg, ffmpegArgs(t.StreamRef)...)
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return "", fmt.Errorf("%w: ffmpeg pipe: %v", ErrPlay, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return "", fmt.Errorf("%w: start ffmpeg: %v", ErrPlay, err)
	}

	h.SetGain(gain)
	h.resumeLocked()

	prev := h.cur
	if prev != nil {
		prev.cancel()
	}
	a := &attempt{
		id:       uuid.NewString(),
		cancel:   cancel,
		finished: make(chan struct{}),
	}
	h.cur = a

	go func() {
		// done runs before finished closes so the next attempt cannot
		// report ahead of this one.
		defer close(a.finished)
		if prev != nil {
			<-prev.finished
		}
		err := h.stream(ctx, t, stdout)
		stopped := ctx.Err() != nil
		if err != nil {
			cancel()
		}
		// After EOF ffmpeg exits on its own; its exit status tells a
		// finished track from a failed fetch.
		waitErr := cmd.Wait()
		cancel()
		if err == nil && !stopped && waitErr != nil {
			err = fmt.Errorf("ffmpeg: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
		}

		h.mu.Lock()
		if h.cur == a {
			h.cur = nil
		}
		h.mu.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("attempt_id", a.id).Str("title", t.Title).Msg("stream ended with error")
		} else {
			h.logger.Debug().Str("attempt_id", a.id).Str("title", t.Title).Msg("stream ended")
		}
		done(a.id, err)
	}()

	return a.id, nil
}

// stream pumps PCM from ffmpeg through the encoder into the voice
// connection until EOF, cancellation or a send failure.
func (h *voiceHandle) stream(ctx context.Context, t models.Track, pcm io.Reader) error {
	encoder, err := newEncoder()
	if err != nil {
		return err
	}

	_ = h.vc.Speaking(true)
	defer func() { _ = h.vc.Speaking(false) }()

	h.logger.Debug().Str("title", t.Title).Msg("stream started")

	buf := make([]int16, frameSize*channels)
	for {
		if gate := h.pauseGate(); gate != nil {
			_ = h.vc.Speaking(false)
			select {
			case <-gate:
				_ = h.vc.Speaking(true)
			case <-ctx.Done():
				return nil
			}
		}

		if err := readFrame(pcm, buf); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read pcm: %w", err)
		}
		applyGain(buf, h.currentGain())

		packet, err := encoder.Encode(buf, frameSize, maxOpusPacket)
		if err != nil {
			return fmt.Errorf("encode opus: %w", err)
		}

		select {
		case h.vc.OpusSend <- packet:
		case <-ctx.Done():
			return nil
		case <-time.After(sendTimeout):
			return fmt.Errorf("%w: voice send timeout", ErrNotConnected)
		}
	}
}

func (h *voiceHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur != nil {
		h.cur.cancel()
	}
	h.resumeLocked()
}

func (h *voiceHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resume == nil {
		h.resume = make(chan struct{})
	}
}

func (h *voiceHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resumeLocked()
}

func (h *voiceHandle) resumeLocked() {
	if h.resume != nil {
		close(h.resume)
		h.resume = nil
	}
}

func (h *voiceHandle) pauseGate() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resume == nil {
		return nil
	}
	return h.resume
}

func (h *voiceHandle) SetGain(gain float64) {
	h.gain.Store(math.Float64bits(gain))
}

func (h *voiceHandle) currentGain() float64 {
	return math.Float64frombits(h.gain.Load())
}

func (h *voiceHandle) Disconnect() error {
	h.mu.Lock()
	if h.cur != nil {
		h.cur.cancel()
	}
	h.resumeLocked()
	already := h.disconnected
	h.disconnected = true
	h.mu.Unlock()

	if already {
		return nil
	}
	if err := h.leave(); err != nil {
		return fmt.Errorf("voice disconnect: %w", err)
	}
	return nil
}

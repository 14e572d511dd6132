/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sink

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"

	"layeh.com/gopus"
)

// Discord voice expects 20ms stereo Opus frames at 48kHz.
const (
	frameRate     = 48000
	channels      = 2
	frameSize     = 960
	maxOpusPacket = 4000
)

// ffmpegArgs builds the transcode command line: any input to raw s16le
// stereo PCM on stdout. The reconnect flags keep remote HTTP streams alive
// across short drops.
func ffmpegArgs(streamRef string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamRef,
		"-vn",
		"-f", "s16le",
		"-ar", fmt.Sprint(frameRate),
		"-ac", fmt.Sprint(channels),
		"-loglevel", "error",
		"pipe:1",
	}
}

// readFrame fills buf with one PCM frame. A trailing partial frame is
// dropped and reported as io.EOF.
func readFrame(r io.Reader, buf []int16) error {
	err := binary.Read(r, binary.LittleEndian, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}

// applyGain scales samples in place, clipping to the int16 range.
func applyGain(buf []int16, gain float64) {
	if gain == 1 {
		return
	}
	for i, s := range buf {
		v := float64(s) * gain
		switch {
		case v > math.MaxInt16:
			buf[i] = math.MaxInt16
		case v < math.MinInt16:
			buf[i] = math.MinInt16
		default:
			buf[i] = int16(v)
		}
	}
}

// Probe fails when the ffmpeg binary is missing or does not run.
func Probe(ctx context.Context, ffmpegBin string) error {
	path, err := exec.LookPath(ffmpegBin)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if err := exec.CommandContext(ctx, path, "-hide_banner", "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not runnable: %w", err)
	}
	return nil
}

func newEncoder() (*gopus.Encoder, error) {
	enc, err := gopus.NewEncoder(frameRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	return enc, nil
}

// ProbeEncoder fails when libopus cannot encode a frame of silence.
func ProbeEncoder() error {
	enc, err := newEncoder()
	if err != nil {
		return err
	}
	if _, err := enc.Encode(make([]int16, frameSize*channels), frameSize, maxOpusPacket); err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}
	return nil
}

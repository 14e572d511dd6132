/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/friendsincode/auralux/internal/models"
)

// YouTube extracts tracks straight from YouTube without yt-dlp. It only
// understands video URLs and ignores the format selector beyond picking
// the best audio stream.
type YouTube struct {
	client *youtube.Client
}

// NewYouTube creates the fallback extractor.
func NewYouTube() *YouTube {
	return &YouTube{client: &youtube.Client{}}
}

// Extract implements Extractor.
func (y *YouTube) Extract(ctx context.Context, target, _ string) (models.Track, error) {
	id, err := youtube.ExtractVideoID(target)
	if err != nil {
		return models.Track{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	video, err := y.client.GetVideoContext(ctx, id)
	if err != nil {
		return models.Track{}, fmt.Errorf("youtube: get video: %w", err)
	}

	format, ok := bestAudio(video.Formats.WithAudioChannels())
	if !ok {
		return models.Track{}, fmt.Errorf("%w: no audio formats for %s", ErrNotFound, id)
	}

	streamURL, err := y.client.GetStreamURLContext(ctx, video, &format)
	if err != nil {
		return models.Track{}, fmt.Errorf("youtube: stream url: %w", err)
	}

	return models.NewTrack(video.Title, uint32(video.Duration.Seconds()), streamURL, "https://www.youtube.com/watch?v="+id)
}

// bestAudio prefers audio-only formats, then the highest bitrate.
func bestAudio(formats youtube.FormatList) (youtube.Format, bool) {
	var best youtube.Format
	found := false
	for _, f := range formats {
		audioOnly := strings.HasPrefix(f.MimeType, "audio/")
		bestAudioOnly := strings.HasPrefix(best.MimeType, "audio/")
		switch {
		case !found:
		case audioOnly && !bestAudioOnly:
		case audioOnly == bestAudioOnly && f.Bitrate > best.Bitrate:
		default:
			continue
		}
		best = f
		found = true
	}
	return best, found
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/friendsincode/auralux/internal/models"
)

// printTemplate is one tab-separated line per result.
const printTemplate = "%(url)s\t%(title)s\t%(duration)s\t%(webpage_url)s"

// YTDLP extracts tracks by running yt-dlp.
type YTDLP struct {
	cookies string
}

// NewYTDLP creates a yt-dlp extractor. cookies is an optional Netscape
// cookie file.
func NewYTDLP(cookies string) *YTDLP {
	return &YTDLP{cookies: cookies}
}

// Extract implements Extractor.
func (y *YTDLP) Extract(ctx context.Context, target, format string) (models.Track, error) {
	args := []string{"--socket-timeout", "30"}
	if y.cookies != "" {
		args = append(args, "--cookies", y.cookies)
	}

	res, err := ytdlp.New().
		Format(format).
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Print(printTemplate).
		Run(ctx, append(args, target)...)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		if isUnavailable(stderr) {
			return models.Track{}, fmt.Errorf("%w: %s", ErrNotFound, stderr)
		}
		return models.Track{}, fmt.Errorf("yt-dlp: %w: %s", err, stderr)
	}
	return parsePrintOutput(res.Stdout)
}

// parsePrintOutput reads the first result line of printTemplate output.
func parsePrintOutput(stdout string) (models.Track, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) < 4 {
			continue
		}
		streamRef := naToEmpty(fields[0])
		if streamRef == "" {
			continue
		}
		return models.NewTrack(naToEmpty(fields[1]), parseSeconds(fields[2]), streamRef, naToEmpty(fields[3]))
	}
	return models.Track{}, ErrNotFound
}

// parseSeconds accepts yt-dlp durations such as "213", "213.0" or "NA".
func parseSeconds(s string) uint32 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return 0
	}
	return uint32(f)
}

func naToEmpty(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

func isUnavailable(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range []string{"video unavailable", "private video", "no video formats", "not available"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

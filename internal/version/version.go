/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides version information and update checking.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is the current version of Auralux.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/auralux/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// GitHubRepo is the repository to check for updates
const GitHubRepo = "friendsincode/auralux"

// UpdateInfo contains information about available updates.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	CheckedAt       time.Time `json:"checked_at,omitempty"`
}

// Checker periodically checks GitHub for a newer release.
type Checker struct {
	mu          sync.RWMutex
	info        UpdateInfo
	logger      zerolog.Logger
	endpoint    string
	checkPeriod time.Duration
	httpClient  *http.Client
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// NewChecker creates a new update checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		logger:      logger.With().Str("component", "update-checker").Logger(),
		endpoint:    fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", GitHubRepo),
		checkPeriod: 6 * time.Hour,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		info:        UpdateInfo{CurrentVersion: Version},
	}
}

// Run checks once immediately and then every check period until ctx is
// cancelled. Failures are logged at debug and never fatal.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.checkPeriod)
	defer ticker.Stop()

	for {
		if _, err := c.Check(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("update check failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Info returns the last known update information.
func (c *Checker) Info() UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Check fetches the latest release and records the result.
func (c *Checker) Check(ctx context.Context) (UpdateInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return UpdateInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "Auralux/"+Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UpdateInfo{}, fmt.Errorf("fetch release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UpdateInfo{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return UpdateInfo{}, fmt.Errorf("decode release: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	info := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: compareVersions(Version, latest) < 0,
		ReleaseURL:      release.HTMLURL,
		CheckedAt:       time.Now(),
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info.UpdateAvailable {
		c.logger.Info().
			Str("current", Version).
			Str("latest", latest).
			Str("url", release.HTMLURL).
			Msg("new version available")
	}
	return info, nil
}

// compareVersions compares two semver versions, ignoring pre-release and
// build suffixes. Returns -1 if a < b, 0 if a == b, 1 if a > b.
func compareVersions(a, b string) int {
	aParts := parseVersion(a)
	bParts := parseVersion(b)

	for i := 0; i < 3; i++ {
		if aParts[i] < bParts[i] {
			return -1
		}
		if aParts[i] > bParts[i] {
			return 1
		}
	}
	return 0
}

// parseVersion parses a semver string into major, minor, patch.
func parseVersion(v string) [3]int {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}

	var result [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		result[i] = n
	}
	return result
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package entitlement decides which users and guilds get premium features.
package entitlement

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Checker answers the premium predicate.
type Checker interface {
	IsPremium(userID, tenantID string) bool
}

// File is the on-disk entitlement document.
//
//	premium_users: ["1234"]
//	premium_guilds: ["5678"]
type File struct {
	PremiumUsers  []string `yaml:"premium_users"`
	PremiumGuilds []string `yaml:"premium_guilds"`
}

// Static grants premium to listed users, and to every user in listed
// guilds. The zero value grants nothing.
type Static struct {
	mu     sync.RWMutex
	users  map[string]struct{}
	guilds map[string]struct{}
}

// New builds a Static from explicit lists.
func New(users, guilds []string) *Static {
	s := &Static{}
	s.set(users, guilds)
	return s
}

// Load reads path (if non-empty) and merges it with the extra lists. A
// missing file is an error; an empty path is not.
func Load(path string, users, guilds []string) (*Static, error) {
	s := New(users, guilds)
	if path == "" {
		return s, nil
	}
	if err := s.Reload(path, users, guilds); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the grants with path merged with the extra lists.
func (s *Static) Reload(path string, users, guilds []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read entitlements: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse entitlements %s: %w", path, err)
	}
	if len(f.PremiumUsers) == 0 && len(f.PremiumGuilds) == 0 && len(strings.TrimSpace(string(data))) > 0 {
		return errors.New("entitlements file has no premium_users or premium_guilds")
	}
	s.set(append(f.PremiumUsers, users...), append(f.PremiumGuilds, guilds...))
	return nil
}

func (s *Static) set(users, guilds []string) {
	u := toSet(users)
	g := toSet(guilds)
	s.mu.Lock()
	s.users, s.guilds = u, g
	s.mu.Unlock()
}

// IsPremium implements Checker.
func (s *Static) IsPremium(userID, tenantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.users[userID]; ok && userID != "" {
		return true
	}
	_, ok := s.guilds[tenantID]
	return ok && tenantID != ""
}

// Counts returns the number of premium users and guilds.
func (s *Static) Counts() (users, guilds int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), len(s.guilds)
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log lines in memory so the HTTP
// API can show what happened in a guild without shell access.
package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 5000

// LogEntry is one decoded zerolog line.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-size ring of log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add appends entry, overwriting the oldest one when full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Entries returns every entry oldest first.
func (b *Buffer) Entries() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]LogEntry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(start+i)%b.capacity]
	}
	return out
}

// Query filters entries. Zero fields match everything.
type Query struct {
	Level      string
	Component  string
	TenantID   string
	Search     string // case-insensitive, message and string fields
	Since      time.Time
	Limit      int
	Descending bool
}

func (q Query) match(e LogEntry) bool {
	if q.Level != "" && e.Level != q.Level {
		return false
	}
	if q.Component != "" && e.Component != q.Component {
		return false
	}
	if q.TenantID != "" && e.TenantID != q.TenantID {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	if strings.Contains(strings.ToLower(e.Message), needle) {
		return true
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// Find returns the entries matching q.
func (b *Buffer) Find(q Query) []LogEntry {
	var out []LogEntry
	for _, e := range b.Entries() {
		if q.match(e) {
			out = append(out, e)
		}
	}
	if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Stats summarises the buffer.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
}

// Stats counts entries per level, restricted to tenantID when non-empty.
func (b *Buffer) Stats(tenantID string) Stats {
	stats := Stats{Capacity: b.capacity, LevelCount: make(map[string]int)}
	for _, e := range b.Entries() {
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		stats.Count++
		stats.LevelCount[e.Level]++
	}
	return stats
}

// Writer decodes zerolog JSON lines into the buffer. Lines that are not
// JSON objects are dropped.
type Writer struct {
	buffer *Buffer
}

// NewWriter returns a zerolog output feeding buffer.
func NewWriter(buffer *Buffer) *Writer {
	return &Writer{buffer: buffer}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}

	entry := LogEntry{Timestamp: time.Now()}
	entry.Level, _ = take(raw, "level").(string)
	entry.Message, _ = take(raw, "message").(string)
	entry.Component, _ = take(raw, "component").(string)
	entry.TenantID, _ = take(raw, "tenant_id").(string)
	switch ts := take(raw, "time").(type) {
	case float64:
		entry.Timestamp = time.Unix(int64(ts), 0)
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = t
		}
	}
	if len(raw) > 0 {
		entry.Fields = raw
	}

	w.buffer.Add(entry)
	return len(p), nil
}

func take(m map[string]any, key string) any {
	v := m[key]
	delete(m, key)
	return v
}

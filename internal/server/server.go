/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/auralux/internal/config"
	"github.com/friendsincode/auralux/internal/logbuffer"
	"github.com/friendsincode/auralux/internal/models"
	"github.com/friendsincode/auralux/internal/playback"
	"github.com/friendsincode/auralux/internal/telemetry"
	"github.com/friendsincode/auralux/internal/version"
)

// Sessions is the read-only playback state the server exposes.
type Sessions interface {
	// Sessions returns the number of live sessions without taking any
	// tenant lock.
	Sessions() int
	View(tenantID string) (playback.SessionView, error)
	Views() []playback.SessionView
}

// UpdateSource reports release checks. *version.Checker implements it.
type UpdateSource interface {
	Info() version.UpdateInfo
}

// Server serves liveness, metrics and a read-only session API.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	sessions  Sessions
	updates   UpdateSource
	logBuffer *logbuffer.Buffer
}

// New constructs the server and its routes. updates and logBuf may be nil.
func New(cfg *config.Config, sessions Sessions, updates UpdateSource, logBuf *logbuffer.Buffer, logger zerolog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	if cfg.TracingEnabled {
		router.Use(telemetry.TracingMiddleware("auralux-http"))
	}
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))

	srv := &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "http").Logger(),
		router:   router,
		sessions:  sessions,
		updates:   updates,
		logBuffer: logBuf,
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request at debug through zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the buffer served under /api/v1/logs.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and runs the close hooks.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

type healthResponse struct {
	Status   string              `json:"status"`
	Version  string              `json:"version"`
	Sessions int                 `json:"sessions"`
	Update   *version.UpdateInfo `json:"update,omitempty"`
}

// trackResponse omits the stream URL, which is a signed media link.
type trackResponse struct {
	Title           string `json:"title"`
	DurationSeconds uint32 `json:"duration_seconds"`
	Duration        string `json:"duration"`
	SourceRef       string `json:"source_ref,omitempty"`
}

func newTrackResponse(t models.Track) trackResponse {
	return trackResponse{
		Title:           t.Title,
		DurationSeconds: t.DurationSeconds,
		Duration:        t.DurationString(),
		SourceRef:       t.SourceRef,
	}
}

type sessionResponse struct {
	TenantID     string                  `json:"tenant_id"`
	State        playback.LifecycleState `json:"state"`
	Current      *trackResponse          `json:"current,omitempty"`
	Queue        []trackResponse         `json:"queue"`
	Loop         bool                    `json:"loop"`
	Pinned       bool                    `json:"pinned"`
	Volume       int                     `json:"volume"`
	ChannelID    string                  `json:"channel_id,omitempty"`
	Connected    bool                    `json:"connected"`
	CreatedAt    time.Time               `json:"created_at"`
	LastActivity time.Time               `json:"last_activity"`
}

func newSessionResponse(v playback.SessionView) sessionResponse {
	resp := sessionResponse{
		TenantID:     v.TenantID,
		State:        v.State,
		Queue:        make([]trackResponse, 0, len(v.Queue)),
		Loop:         v.Loop,
		Pinned:       v.Pinned,
		Volume:       v.Volume,
		ChannelID:    v.ChannelID,
		Connected:    v.Connected,
		CreatedAt:    v.CreatedAt,
		LastActivity: v.LastActivity,
	}
	if v.Current != nil {
		cur := newTrackResponse(*v.Current)
		resp.Current = &cur
	}
	for _, t := range v.Queue {
		resp.Queue = append(resp.Queue, newTrackResponse(t))
	}
	return resp
}

func (s *Server) configureRoutes() {
	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Bot is alive!"))
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:   "ok",
			Version:  version.Version,
			Sessions: s.sessions.Sessions(),
		}
		if s.updates != nil {
			info := s.updates.Info()
			if !info.CheckedAt.IsZero() {
				resp.Update = &info
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
			views := s.sessions.Views()
			out := make([]sessionResponse, 0, len(views))
			for _, v := range views {
				out = append(out, newSessionResponse(v))
			}
			writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
		})
		r.Get("/sessions/{tenantID}", func(w http.ResponseWriter, r *http.Request) {
			v, err := s.sessions.View(chi.URLParam(r, "tenantID"))
			if errors.Is(err, playback.ErrNoSession) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
				return
			}
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, newSessionResponse(v))
		})
		if s.logBuffer != nil {
			r.Get("/logs", s.handleLogs)
			r.Get("/logs/stats", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.logBuffer.Stats(r.URL.Query().Get("tenant_id")))
			})
		}
	})
}

const defaultLogLimit = 200

// handleLogs returns recent log entries, newest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := logbuffer.Query{
		Level:      params.Get("level"),
		Component:  params.Get("component"),
		TenantID:   params.Get("tenant_id"),
		Search:     params.Get("search"),
		Limit:      defaultLogLimit,
		Descending: true,
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		q.Limit = n
	}
	if v := params.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		q.Since = since
	}
	entries := s.logBuffer.Find(q)
	if entries == nil {
		entries = []logbuffer.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

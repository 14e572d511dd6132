/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsActive is the number of sessions held by the registry.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auralux_sessions_active",
		Help: "Number of live tenant sessions",
	})

	// TracksStarted counts playback attempts handed to the sink.
	TracksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auralux_tracks_started_total",
		Help: "Playback attempts started",
	})

	// PlayFailures counts tracks discarded because the sink refused them.
	PlayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auralux_play_failures_total",
		Help: "Tracks skipped after a synchronous sink failure",
	})

	// StaleCompletions counts completions dropped for an outdated attempt.
	StaleCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auralux_stale_completions_total",
		Help: "Sink completions ignored because the attempt was superseded",
	})

	// SessionsRemoved counts teardowns by reason (idle, disconnected, shutdown).
	SessionsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auralux_sessions_removed_total",
		Help: "Sessions removed from the registry",
	}, []string{"reason"})

	// ResolveDuration observes resolver latency by tier and outcome.
	ResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auralux_resolve_duration_seconds",
		Help:    "Time spent resolving a query to a track",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"tier", "result"})

	// ResolveCacheHits counts resolver cache lookups by outcome.
	ResolveCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auralux_resolve_cache_total",
		Help: "Resolver cache lookups",
	}, []string{"result"})

	// CommandsTotal counts front-end intents by command and outcome.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auralux_commands_total",
		Help: "Front-end commands handled",
	}, []string{"command", "result"})

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auralux_http_requests_total",
		Help: "HTTP requests served",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auralux_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auralux_http_active_connections",
		Help: "In-flight HTTP requests",
	})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

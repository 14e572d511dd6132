/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/friendsincode/auralux/internal/cache"
	"github.com/friendsincode/auralux/internal/config"
	"github.com/friendsincode/auralux/internal/discord"
	"github.com/friendsincode/auralux/internal/entitlement"
	"github.com/friendsincode/auralux/internal/events"
	"github.com/friendsincode/auralux/internal/jukebox"
	"github.com/friendsincode/auralux/internal/logbuffer"
	"github.com/friendsincode/auralux/internal/logging"
	"github.com/friendsincode/auralux/internal/playback"
	"github.com/friendsincode/auralux/internal/resolver"
	"github.com/friendsincode/auralux/internal/server"
	"github.com/friendsincode/auralux/internal/sink"
	"github.com/friendsincode/auralux/internal/telemetry"
	"github.com/friendsincode/auralux/internal/version"
)

const shutdownTimeout = 15 * time.Second

var (
	logger zerolog.Logger
	logBuf *logbuffer.Buffer
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "auralux",
	Short:         "Auralux - Discord music bot",
	Long:          "Auralux plays music from YouTube and other sites into Discord voice channels, one queue per server.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Discord and start playing requests",
	Long:  "Start the Discord bot, the idle reaper and the liveness/metrics HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig(validate bool) error {
	var err error
	if validate {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadUnvalidated()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuf = logbuffer.New(cfg.LogBuffer)
	logger = logging.Setup(cfg.Environment, cfg.LogLevel, logbuffer.NewWriter(logBuf))
	return nil
}

// newResolver builds the resolver gateway with its cache. The returned
// closer releases the cache connection.
func newResolver() (*resolver.Gateway, func() error) {
	trackCache := cache.New(cache.Config{
		RedisAddr:      cfg.RedisAddr,
		RedisPassword:  cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		TrackTTL:       cfg.ResolveCacheTTL,
		DisableOnError: true,
	}, logger)

	gw := resolver.NewGateway(resolver.NewYTDLP(cfg.YTDLPCookies), logger,
		resolver.WithFallback(resolver.NewYouTube()),
		resolver.WithCache(trackCache),
		resolver.WithTimeout(cfg.ResolveTimeout),
	)
	return gw, trackCache.Close
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(true); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Auralux starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Fail fast before touching Discord.
	if err := sink.Probe(ctx, cfg.FFmpegBin); err != nil {
		return err
	}
	if err := sink.ProbeEncoder(); err != nil {
		return err
	}

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "auralux",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	gw, closeCache := newResolver()
	defer func() {
		if err := closeCache(); err != nil {
			logger.Warn().Err(err).Msg("cache close failed")
		}
	}()

	entitlements, err := entitlement.Load(cfg.EntitlementsFile, cfg.PremiumUsers, cfg.PremiumGuilds)
	if err != nil {
		return fmt.Errorf("load entitlements: %w", err)
	}
	users, guilds := entitlements.Counts()
	logger.Info().Int("premium_users", users).Int("premium_guilds", guilds).Msg("entitlements loaded")

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	clk := clock.New()
	registry := playback.NewRegistry(clk, cfg.DefaultGain())
	reaper := playback.NewReaper(registry, clk, cfg.IdleGrace, cfg.SweepInterval, bus, logger)
	scheduler := playback.NewScheduler(registry, sink.NewDiscordSink(session, cfg.FFmpegBin, logger), reaper, bus, logger)
	scheduler.SetConnectTimeout(cfg.ConnectTimeout)

	coordinator := jukebox.New(scheduler, gw, entitlements, jukebox.Config{
		PlayRate:     rate.Limit(cfg.PlayRate),
		PlayBurst:    cfg.PlayBurst,
		QueuePreview: cfg.QueuePreview,
	}, logger)

	bot := discord.New(session, coordinator, bus, discord.Options{
		Prefix:         cfg.CommandPrefix,
		Grace:          cfg.IdleGrace,
		PremiumContact: cfg.PremiumContact,
	}, logger)

	checker := version.NewChecker(logger)
	go checker.Run(ctx)
	go reaper.Run(ctx)
	go reloadEntitlementsOnHUP(ctx, entitlements)

	srv := server.New(cfg, scheduler, checker, logBuf, logger)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	if err := bot.Open(); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return err
	}
	logger.Info().Str("prefix", cfg.CommandPrefix).Msg("discord bot online")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}

	logger.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Voice connections close before the gateway.
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("playback shutdown incomplete")
	}
	if err := bot.Close(); err != nil {
		logger.Error().Err(err).Msg("discord close failed")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("Auralux stopped")
	return nil
}

// reloadEntitlementsOnHUP rereads the entitlements file on SIGHUP.
func reloadEntitlementsOnHUP(ctx context.Context, ent *entitlement.Static) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if cfg.EntitlementsFile == "" {
				logger.Info().Msg("no entitlements file to reload")
				continue
			}
			if err := ent.Reload(cfg.EntitlementsFile, cfg.PremiumUsers, cfg.PremiumGuilds); err != nil {
				logger.Error().Err(err).Msg("entitlements reload failed")
				continue
			}
			users, guilds := ent.Counts()
			logger.Info().Int("premium_users", users).Int("premium_guilds", guilds).Msg("entitlements reloaded")
		}
	}
}

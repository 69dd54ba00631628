// streamd runs one subscription engine against an upstream push feed
// and optionally records decoded events to Postgres.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hstoklosa/sentix-sub000/internal/auth"
	"github.com/hstoklosa/sentix-sub000/internal/batch"
	"github.com/hstoklosa/sentix-sub000/internal/codec"
	"github.com/hstoklosa/sentix-sub000/internal/config"
	"github.com/hstoklosa/sentix-sub000/internal/conn"
	"github.com/hstoklosa/sentix-sub000/internal/database"
	"github.com/hstoklosa/sentix-sub000/internal/engine"
	"github.com/hstoklosa/sentix-sub000/internal/recorder"
	"github.com/hstoklosa/sentix-sub000/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"variant", cfg.Feed.Variant,
		"url", cfg.Feed.URL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Pick the wire codec for the configured variant
	var wire codec.Codec
	switch cfg.Feed.Variant {
	case "news":
		wire = codec.NewFeedCodec()
	default:
		wire = codec.NewTickerCodec(cfg.Feed.Stream)
	}

	// Connect URL provider: direct, or minted against the auth endpoint
	var provider auth.URLProvider = auth.Static(cfg.Feed.URL)
	if cfg.Feed.AuthEndpoint != "" {
		provider = auth.NewTokenClient(
			cfg.Feed.AuthEndpoint,
			cfg.Feed.URL,
			cfg.Feed.APIKey,
			auth.WithLogger(logger),
		)
	}

	connCfg := conn.DefaultConfig()
	connCfg.StaleAfter = cfg.Engine.StaleAfter
	connCfg.BufferSize = cfg.Engine.BufferSize

	eng := engine.New(
		engine.Config{
			Pinned: cfg.Feed.Pinned,
			Batch: batch.Config{
				Quiet:    cfg.Engine.DebounceQuiet,
				QuietMax: cfg.Engine.DebounceQuietMax,
				MaxWait:  cfg.Engine.DebounceMaxWait,
			},
			Heartbeat:         cfg.Engine.Heartbeat,
			DialTimeout:       cfg.Engine.DialTimeout,
			ReconnectBase:     cfg.Engine.ReconnectBase,
			ReconnectMax:      cfg.Engine.ReconnectMax,
			ReconnectAttempts: cfg.Engine.ReconnectAttempts,
		},
		wire,
		engine.NewDialer(provider, connCfg, logger),
		engine.WithLogger(logger),
	)

	// Optional event recorder
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Recorder.Database.Host,
			"port", cfg.Recorder.Database.Port,
			"database", cfg.Recorder.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		rec = recorder.New(cfg.Recorder, pool, logger)
		if err := rec.Start(ctx, eng); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
	}

	eng.Connect()

	<-ctx.Done()

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if rec != nil {
		if err := rec.Stop(shutdownCtx); err != nil {
			logger.Error("recorder shutdown error", "error", err)
		}
	}
	eng.Close()

	logger.Info("streamd stopped")
}

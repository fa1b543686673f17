// Command papersync watches a local document library and mirrors it to
// the remote document store: uploads with extracted metadata, move and
// rename correlation, folder batching, and live change notifications.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openpapers/papersync/internal/agent"
	"github.com/openpapers/papersync/internal/config"
	"github.com/openpapers/papersync/internal/fingerprint"
	"github.com/openpapers/papersync/internal/logging"
	"github.com/openpapers/papersync/internal/metadata"
	"github.com/openpapers/papersync/internal/remote"
	"github.com/openpapers/papersync/internal/state"
	"github.com/openpapers/papersync/internal/store"
	"github.com/openpapers/papersync/internal/watch"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("papersync exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting papersync",
		slog.String("server", cfg.ServerURL),
		slog.String("watch_dir", cfg.WatchDir),
		slog.String("device", cfg.DeviceName),
		slog.Bool("auto_upload", cfg.AutoUploadEnabled),
	)

	index, err := state.Load(cfg.DBConnectionTimeout)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer index.Close()

	client := remote.NewClient(cfg.ServerURL, nil)

	token, err := authenticate(ctx, cfg, client, index, logger)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	fp, err := fingerprint.New(cfg.FingerprintStrategy)
	if err != nil {
		return fmt.Errorf("selecting fingerprint strategy: %w", err)
	}

	ignore, err := cfg.CompileIgnorePatterns()
	if err != nil {
		return fmt.Errorf("compiling ignore patterns: %w", err)
	}

	filter := agent.NewFilter(cfg.FileTypes, ignore)

	extractor, err := buildExtractor(cfg, logger)
	if err != nil {
		return err
	}

	coord := agent.NewCoordinator(client, token, extractor, cfg.MaxRetries, cfg.RetryDelay, cfg.UploadConcurrency, logger)
	notifier := agent.NewLogNotifier(cfg.ShowNotifications, cfg.NotificationDuration, logger)

	engine := agent.NewEngine(agent.EngineConfig{
		WatchDir:          cfg.WatchDir,
		MoveWindow:        cfg.MoveWindow,
		FolderBatchWindow: cfg.FolderBatchWindow,
		AutoUpload:        cfg.AutoUploadEnabled,
	}, filter, store.New(), index, fp, coord, notifier, logger)

	channel := remote.NewChannel(remote.ChannelConfig{
		ServerURL:         cfg.ServerURL,
		Token:             token,
		Device:            cfg.DeviceName,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		Timeout:           cfg.ChannelTimeout,
		OnStatus:          engine.OnStatus,
	}, logger)

	watcher := watch.NewWatcher(cfg.WatchDir, cfg.SettleDelay, fp, logger)

	events := watcher.Events()
	if !cfg.AutoUploadEnabled {
		// Remote notifications still keep the local index current; only
		// the local-to-remote direction is paused.
		logger.Info("auto-upload disabled, local changes will not sync")
		events = nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AutoUploadEnabled {
		g.Go(func() error {
			return watcher.Watch(gctx)
		})
	}

	g.Go(func() error {
		return channel.Run(gctx)
	})

	g.Go(func() error {
		err := engine.Run(gctx, events, channel.Notifications())

		// Flush half-open batches so a clean shutdown does not drop work
		// already observed on disk.
		engine.FlushAll(context.WithoutCancel(gctx))

		return err
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}

	return err
}

// authenticate returns a valid session token, preferring the one cached
// in the state database. Sign-in retries transient failures so a slow
// server start does not kill the agent.
func authenticate(ctx context.Context, cfg *config.Config, client *remote.Client, index *state.State, logger *slog.Logger) (string, error) {
	if token := index.Token(); token != "" {
		if err := client.VerifySession(ctx, token); err == nil {
			logger.Info("reusing cached session")
			return token, nil
		}

		logger.Info("cached session rejected, signing in again")

		if err := index.ClearToken(); err != nil {
			logger.Warn("clearing stale token failed", slog.String("error", err.Error()))
		}
	}

	var token string

	backoff := retry.WithMaxRetries(uint64(cfg.DBMaxRetries), retry.NewConstant(cfg.DBRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := client.Signin(ctx, cfg.Email, cfg.Password, cfg.DeviceName)
		if err != nil {
			if remote.IsTransient(err) {
				return retry.RetryableError(err)
			}

			return err
		}

		token = resp.Token

		return nil
	})
	if err != nil {
		return "", err
	}

	if err := index.SetToken(token); err != nil {
		logger.Warn("caching session token failed", slog.String("error", err.Error()))
	}

	logger.Info("signed in", slog.String("device", cfg.DeviceName))

	return token, nil
}

// buildExtractor assembles the metadata pipeline, or returns nil when
// every enrichment step is switched off.
func buildExtractor(cfg *config.Config, logger *slog.Logger) (agent.Extractor, error) {
	enrich := cfg.ExtractText || cfg.GenerateKeywords || cfg.GenerateTags || cfg.ThumbnailsEnabled
	if !enrich {
		return nil, nil
	}

	var vocab *metadata.Vocabulary

	if cfg.GenerateTags && cfg.TagRulesPath != "" {
		var err error

		vocab, err = metadata.LoadVocabulary(cfg.TagRulesPath)
		if err != nil {
			return nil, fmt.Errorf("loading tag vocabulary: %w", err)
		}

		logger.Info("tag vocabulary loaded", slog.String("path", cfg.TagRulesPath), slog.Int("rules", len(vocab.Rules)))
	}

	return metadata.NewExtractor(metadata.Options{
		ExtractText:       cfg.ExtractText,
		GenerateKeywords:  cfg.GenerateKeywords,
		GenerateTags:      cfg.GenerateTags && vocab != nil,
		MaxKeywords:       cfg.MaxKeywords,
		MaxTags:           cfg.MaxTags,
		OCRLanguages:      cfg.OCRLanguages,
		TagThreshold:      cfg.TagConfidenceThreshold,
		ThumbnailsEnabled: cfg.ThumbnailsEnabled,
		ThumbnailMaxSize:  cfg.ThumbnailMaxSize,
		ThumbnailQuality:  cfg.ThumbnailQuality,
		Workers:           cfg.UploadConcurrency,
	}, vocab, logger), nil
}

// Package app wires configuration into a running engine for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/campaign-engine/internal/config"
	"github.com/jwebster45206/campaign-engine/internal/seed"
	"github.com/jwebster45206/campaign-engine/internal/services/lock"
	"github.com/jwebster45206/campaign-engine/internal/storage"
	"github.com/jwebster45206/campaign-engine/internal/storage/sqlite"
	"github.com/jwebster45206/campaign-engine/pkg/engine"
	"github.com/jwebster45206/campaign-engine/pkg/random"
	core "github.com/jwebster45206/campaign-engine/pkg/storage"
)

type App struct {
	Engine *engine.Engine
	Store  *core.Store
	Log    core.SessionLog

	logger *slog.Logger
}

// Build opens storage, the session log and the lock backend selected by
// cfg, then loads the seed file if one is configured.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	var locker engine.Locker
	switch cfg.StorageBackend {
	case config.BackendMemory:
		a.Store = core.NewMemoryStorage(logger)
		locker = lock.NewLocalLocker()
		logger.Info("Using in-memory storage")
	default:
		store, docs, err := storage.NewRedisStorage(cfg.RedisURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis storage: %w", err)
		}
		if err := docs.WaitForConnection(ctx); err != nil {
			_ = docs.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Store = store
		locker = lock.NewRedisLocker(docs.Client(), cfg.LockTTL, logger)
		logger.Info("Using redis storage", "redis_url", cfg.RedisURL)
	}

	if cfg.SessionLogPath != "" {
		log, err := sqlite.Open(ctx, cfg.SessionLogPath, logger)
		if err != nil {
			_ = a.Store.Close()
			return nil, fmt.Errorf("failed to open session log: %w", err)
		}
		a.Log = log
	} else {
		a.Log = core.NewMemorySessionLog()
	}

	seedValue := cfg.RandomSeed
	if seedValue == 0 {
		s, err := random.NewSeed()
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		seedValue = s
	}
	logger.Debug("Random source seeded", "seed", seedValue)

	a.Engine = engine.New(a.Store, a.Log, random.New(seedValue), locker, logger)

	if cfg.SeedFile != "" {
		id, err := seed.LoadFile(ctx, a.Store, cfg.SeedFile)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to load seed file: %w", err)
		}
		logger.Info("Seed file loaded", "path", cfg.SeedFile, "campaign_id", id)
	}
	return a, nil
}

// Close releases the session log and storage connections.
func (a *App) Close() error {
	var errs []error
	if a.Log != nil {
		if err := a.Log.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session log: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Package backend selects and wires the snapshot storage configured for the
// server.
package backend

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/config"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	"github.com/frostdev-ops/pma-homesim/internal/database"
	"github.com/frostdev-ops/pma-homesim/internal/database/filestore"
	"github.com/frostdev-ops/pma-homesim/internal/database/redisstore"
	"github.com/frostdev-ops/pma-homesim/internal/database/sqlite"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// Opened is a ready snapshot backend plus its cleanup.
type Opened struct {
	Backend store.Backend
	Kind    string
	// Snapshots is set for the sqlite backend and exposes snapshot metadata.
	Snapshots *sqlite.SnapshotRepository
	closers   []func() error
}

// Close releases the underlying connections.
func (o *Opened) Close() error {
	var firstErr error
	for _, c := range o.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.PersistenceConfig, logger *logrus.Logger) (*Opened, error) {
	switch cfg.Backend {
	case "memory":
		return &Opened{Backend: store.NewMemoryBackend(), Kind: cfg.Backend}, nil

	case "file":
		return &Opened{Backend: filestore.NewSnapshotRepository(cfg.File.Dir), Kind: cfg.Backend}, nil

	case "sqlite":
		db, err := database.Initialize(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		if cfg.SQLite.AutoMigrate {
			if err := database.Migrate(db); err != nil {
				db.Close()
				return nil, err
			}
		}
		repo := sqlite.NewSnapshotRepository(db)
		return &Opened{
			Backend:   repo,
			Kind:      cfg.Backend,
			Snapshots: repo,
			closers:   []func() error{db.Close},
		}, nil

	case "redis":
		repo := redisstore.NewSnapshotRepository(redisstore.NewClient(cfg.Redis))
		if err := repo.Ping(ctx); err != nil {
			// the breaker takes over from here; start anyway
			logger.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("Redis not reachable at startup")
		}
		breaker := apperrors.NewCircuitBreaker(apperrors.CircuitBreakerConfig{
			Name:   "redis-snapshots",
			Logger: logger,
		})
		return &Opened{
			Backend: Guard(repo, breaker),
			Kind:    cfg.Backend,
			closers: []func() error{repo.Close},
		}, nil
	}

	return nil, fmt.Errorf("unsupported persistence backend %q", cfg.Backend)
}

// Guarded routes backend calls through a circuit breaker and reports
// failures as transient domain errors.
type Guarded struct {
	inner   store.Backend
	breaker *apperrors.CircuitBreaker
}

func Guard(inner store.Backend, breaker *apperrors.CircuitBreaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) Save(ctx context.Context, name string, blob []byte) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Save(ctx, name, blob)
	})
	if err != nil {
		return apperrors.Transient("snapshot", err)
	}
	return nil
}

func (g *Guarded) Load(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		blob, err = g.inner.Load(ctx, name)
		return err
	})
	if err != nil {
		return nil, apperrors.Transient("snapshot", err)
	}
	return blob, nil
}

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskroute/internal/config"
	"taskroute/internal/db"
	"taskroute/internal/engine"
	"taskroute/internal/identity"
	"taskroute/internal/migrate"
)

// Runtime is an opened workspace: both stores migrated, config loaded and
// the engine and identity service wired against them.
type Runtime struct {
	Stores   db.Pair
	Config   *config.Config
	Engine   engine.Engine
	Identity identity.Service
}

// Open opens the workspace stores, applies migrations to each and loads
// taskroute.yml, falling back to defaults when the file is absent.
func Open(workspace string, logger *log.Logger) (Runtime, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return Runtime{}, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	ttl, err := cfg.SessionTTL()
	if err != nil {
		return Runtime{}, err
	}
	stores, err := db.OpenPair(db.Config{Workspace: workspace})
	if err != nil {
		return Runtime{}, err
	}
	if err := migrate.Migrate(stores.Operational, migrate.Operational); err != nil {
		stores.Close()
		return Runtime{}, fmt.Errorf("migrate operational store: %w", err)
	}
	if err := migrate.Migrate(stores.Archive, migrate.Archive); err != nil {
		stores.Close()
		return Runtime{}, fmt.Errorf("migrate archive store: %w", err)
	}
	ids := identity.NewService(stores.Operational, ttl)
	eng := engine.New(stores.Operational, stores.Archive, cfg)
	eng.Directory = ids
	eng.Logger = logger
	return Runtime{Stores: stores, Config: cfg, Engine: eng, Identity: ids}, nil
}

func (r Runtime) Close() error {
	return r.Stores.Close()
}

// SweepSessions deletes expired sessions every interval until ctx is done.
func (r Runtime) SweepSessions(ctx context.Context, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = log.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Identity.SweepExpired(ctx)
			if err != nil {
				logger.Printf("WARNING: session sweep failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("swept %d expired sessions", n)
			}
		}
	}
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lecternlabs/lectern/config"
	"github.com/lecternlabs/lectern/pkg/db"
	"github.com/lecternlabs/lectern/pkg/logging"
)

const (
	connectAttempts = 3
	connectDelay    = 2 * time.Second
)

// Open builds the configured Store implementation. The returned close
// function releases any backing resources and is safe to call on the memory
// store too.
func Open(ctx context.Context, cfg config.StoreConfig, logger logging.Logger) (Store, func(), error) {
	switch cfg.Driver {
	case config.StoreDriverMemory:
		return NewMemoryStore(), func() {}, nil
	case config.StoreDriverPostgres:
		pool, err := db.ConnectWithRetry(ctx, db.DefaultConfig(cfg.DSN), connectAttempts, connectDelay)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres pool: %w", err)
		}
		st := NewPostgresStore(pool, logger)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		if _, err := db.RegisterPoolStatsCollector(pool, nil); err != nil {
			logger.Warn("failed to register pool metrics", logging.Err(err))
		}
		return st, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

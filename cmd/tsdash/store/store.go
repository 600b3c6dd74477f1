// Package store selects the session store from the configuration.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/tsdash/cmd/tsdash/config"
	"github.com/HatiCode/tsdash/pkg/storage"
)

const cleanupInterval = time.Minute

// New returns the configured store. The caller owns it and must call
// Close on the returned closer when done.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, func() error, error) {
	switch cfg.Storage {
	case "redis":
		rs, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		logger.Info("using redis session store", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.SessionTTL)
		return rs, rs.Close, nil
	case "", "memory":
		ms := storage.NewMemoryStoreWithTTL(cfg.SessionTTL, cleanupInterval)
		logger.Info("using in-memory session store", "ttl", cfg.SessionTTL)
		return ms, func() error { ms.Stop(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// Package backend opens the configured draft store.
package backend

import (
	"context"
	"fmt"

	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/bolt"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/memory"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/postgres"
	"github.com/rs/zerolog/log"
)

const (
	Memory   = "memory"
	Postgres = "postgres"
	Bolt     = "bolt"
)

// Open returns the store named by cfg.Backend and a function releasing it.
func Open(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Backend {
	case Memory:
		log.Warn().Msg("using in-memory draft store, state is lost on exit")
		return memory.New(), func() {}, nil
	case Bolt:
		s, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.BoltPath).Msg("opened bolt draft store")
		return s, func() { _ = s.Close() }, nil
	case Postgres, "":
		s, err := postgres.Connect(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, nil, err
		}
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, nil, err
			}
		}
		log.Info().Str("database", cfg.DB.Database).Msg("connected to postgres draft store")
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

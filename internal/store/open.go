// Package store selects and opens the episode data store named by the
// configuration.
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"podcast-player/internal/config"
	"podcast-player/internal/episodes"
	"podcast-player/internal/store/fsstore"
	"podcast-player/internal/store/sqlstore"
	"podcast-player/internal/store/supabase"
)

// Backend is an opened data store.
type Backend struct {
	Source episodes.Source
	// AudioRoot is the directory served under /audio/, empty for remote stores.
	AudioRoot string
	closeFn   func() error
}

// Close releases the store's connections or watchers.
func (b *Backend) Close() error {
	if b.closeFn == nil {
		return nil
	}
	return b.closeFn()
}

// Options carries the settings that only some backends use.
type Options struct {
	LibraryRoot string
	Debounce    time.Duration
	Logger      *log.Logger
}

// Open connects to the backend described by cfg. SQLite databases get their
// schema created on open.
func Open(ctx context.Context, cfg config.Store, opts Options) (*Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	switch cfg.Backend {
	case config.BackendFS:
		lib, err := fsstore.NewLibrary(opts.LibraryRoot, opts.Debounce, logger)
		if err != nil {
			return nil, fmt.Errorf("open library %s: %w", opts.LibraryRoot, err)
		}
		return &Backend{Source: lib, AudioRoot: lib.Root(), closeFn: lib.Close}, nil

	case config.BackendSQLite, config.BackendPostgres:
		driver := sqlstore.DriverSQLite
		dsn := cfg.DSN
		if cfg.Backend == config.BackendPostgres {
			driver = sqlstore.DriverPostgres
			if dsn == "" {
				var err error
				dsn, err = sqlstore.SupabaseDSN(cfg.SupabaseURL, cfg.DBPassword)
				if err != nil {
					return nil, err
				}
			}
		}
		st, err := sqlstore.Open(ctx, sqlstore.Config{Driver: driver, DSN: dsn}, logger)
		if err != nil {
			return nil, err
		}
		if driver == sqlstore.DriverSQLite {
			if err := st.EnsureSchema(ctx); err != nil {
				st.Close()
				return nil, err
			}
		}
		return &Backend{Source: st, closeFn: st.Close}, nil

	case config.BackendSupabase:
		st, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, Key: cfg.SupabaseKey}, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Source: st}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Package di provides dependency injection container
package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/ssargent/boarddb/pkg/api"
	"github.com/ssargent/boarddb/pkg/board"
	"github.com/ssargent/boarddb/pkg/config"
	"github.com/ssargent/boarddb/pkg/storage"
	"github.com/ssargent/boarddb/pkg/store"
)

// StoreOpener opens the record store selected by cfg
type StoreOpener func(cfg *config.Config, logger *zerolog.Logger) (store.RecordStore, error)

// Container holds all the dependencies for the application
type Container struct {
	serverFactory api.ServerFactory
	storeOpener   StoreOpener
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		serverFactory: api.NewServerFactory(),
		storeOpener:   OpenStore,
	}
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// SetStoreOpener allows overriding how stores are opened (for testing)
func (c *Container) SetStoreOpener(opener StoreOpener) {
	c.storeOpener = opener
}

// OpenService opens the configured store and builds a message service on it
func (c *Container) OpenService(cfg *config.Config, logger *zerolog.Logger) (*board.Service, error) {
	st, err := c.storeOpener(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := board.NewService(board.ServiceConfig{
		Store:  st,
		Limits: cfg.Limits,
		Logger: logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return svc, nil
}

// OpenStore opens the paged or pebble store under cfg.DataDir
func OpenStore(cfg *config.Config, logger *zerolog.Logger) (store.RecordStore, error) {
	switch cfg.Backend {
	case config.BackendPaged, "":
		st, err := store.NewPagedStore(store.PagedStoreConfig{
			DataDir: cfg.DataDir,
			NoSync:  !cfg.SyncWrites,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		recovery, err := st.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		if logger != nil && recovery.CorruptSlotsFreed > 0 {
			logger.Warn().Int("slots", recovery.CorruptSlotsFreed).Msg("recovered from corruption")
		}
		return st, nil

	case config.BackendPebble:
		st, err := storage.NewPebbleStore(storage.Config{
			Path:   filepath.Join(cfg.DataDir, "pebble"),
			NoSync: !cfg.SyncWrites,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble store: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

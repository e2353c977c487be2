package main

import (
	"fmt"

	"epkfarm/config"
	"epkfarm/core/state"
	"epkfarm/storage"
)

func openDatabase(cfg config.Storage) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendLevelDB:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", cfg.Path, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// resumeHeight picks the devnet clock start so heights never run behind the
// last settled farm block after a restart.
func resumeHeight(db storage.Database, configured uint64) (uint64, error) {
	pool, err := state.NewManager(db).GetFarmPool()
	if err != nil {
		return 0, fmt.Errorf("load farm pool: %w", err)
	}
	if pool != nil && pool.LastUpdateBlock > configured {
		return pool.LastUpdateBlock, nil
	}
	return configured, nil
}

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"epkfarm/config"
	"epkfarm/core/state"
	"epkfarm/native/farm"
	"epkfarm/storage"
)

func TestResumeHeight(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	height, err := resumeHeight(db, 7)
	require.NoError(t, err)
	require.Equal(t, uint64(7), height)

	manager := state.NewManager(db)
	pool := farm.NewPool()
	pool.LastUpdateBlock = 42
	require.NoError(t, manager.PutFarmPool(pool))
	require.NoError(t, manager.Commit())

	height, err = resumeHeight(db, 7)
	require.NoError(t, err)
	require.Equal(t, uint64(42), height)

	height, err = resumeHeight(db, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(100), height)
}

func TestOpenDatabase(t *testing.T) {
	mem, err := openDatabase(config.Storage{Backend: config.BackendMemory})
	require.NoError(t, err)
	mem.Close()

	ldb, err := openDatabase(config.Storage{Backend: config.BackendLevelDB, Path: filepath.Join(t.TempDir(), "state")})
	require.NoError(t, err)
	require.NoError(t, ldb.Put([]byte("k"), []byte("v")))
	ldb.Close()

	_, err = openDatabase(config.Storage{Backend: "rocks"})
	require.Error(t, err)
}

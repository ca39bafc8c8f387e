// Package storage selects the persistence driver for the player memory profile.
package storage

import (
	"context"
	"fmt"
	"strings"

	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage/filestore"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage/memstore"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage/sqlite"
)

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverMemory = "memory"
)

// ProfileStore persists the single memory profile. Load reports false when
// nothing has been saved yet.
type ProfileStore interface {
	Load(ctx context.Context) (memorymodel.Profile, bool, error)
	Save(ctx context.Context, profile memorymodel.Profile) error
	Clear(ctx context.Context) error
	Close() error
}

// Open builds the driver named by driver. path is ignored by the memory driver.
func Open(driver, path string) (ProfileStore, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverFile:
		store, err := filestore.Open(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Package sqlite persists the memory profile as a JSON document in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage/sqlite/migrations"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// profileID keys the single-player profile row.
const profileID = "player"

// Store persists the memory profile in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns the stored profile, or false when none has been saved.
func (s *Store) Load(ctx context.Context) (memorymodel.Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return memorymodel.Profile{}, false, err
	}
	if s == nil || s.sqlDB == nil {
		return memorymodel.Profile{}, false, fmt.Errorf("storage is not configured")
	}

	var document string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT document FROM memory_profiles WHERE id = ?`, profileID,
	).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return memorymodel.Profile{}, false, nil
	}
	if err != nil {
		return memorymodel.Profile{}, false, fmt.Errorf("query memory profile: %w", err)
	}

	var profile memorymodel.Profile
	if err := json.Unmarshal([]byte(document), &profile); err != nil {
		return memorymodel.Profile{}, false, fmt.Errorf("decode memory profile: %w", err)
	}
	return profile.Normalize(), true, nil
}

// Save replaces the stored profile.
func (s *Store) Save(ctx context.Context, profile memorymodel.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	document, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode memory profile: %w", err)
	}
	updatedAt := profile.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO memory_profiles (id, document, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   document = excluded.document,
		   updated_at = excluded.updated_at`,
		profileID,
		string(document),
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("save memory profile: %w", err)
	}
	return nil
}

// Clear deletes the stored profile.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM memory_profiles WHERE id = ?`, profileID); err != nil {
		return fmt.Errorf("clear memory profile: %w", err)
	}
	return nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Package filestore persists the memory profile as a JSON file.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
)

// Store writes the profile to a single file; every save replaces it atomically.
type Store struct {
	mu   sync.RWMutex
	path string
}

// Open prepares the parent directory of path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &Store{path: cleanPath}, nil
}

// Load 读取档案文件，文件不存在时返回 false。
func (s *Store) Load(ctx context.Context) (memorymodel.Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return memorymodel.Profile{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return memorymodel.Profile{}, false, nil
	}
	if err != nil {
		return memorymodel.Profile{}, false, fmt.Errorf("读取档案失败: %w", err)
	}

	var profile memorymodel.Profile
	if err := json.Unmarshal(content, &profile); err != nil {
		return memorymodel.Profile{}, false, fmt.Errorf("解析档案失败: %w", err)
	}
	return profile.Normalize(), true, nil
}

// Save 通过临时文件加重命名原子写入档案。
func (s *Store) Save(ctx context.Context, profile memorymodel.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	content, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化档案失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, content, 0o644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			log.Warn().Err(removeErr).Str("component", "storage").Str("path", tempPath).Msg("failed to clean up temporary file")
		}
		return fmt.Errorf("保存档案失败: %w", err)
	}
	return nil
}

// Clear removes the profile file.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除档案失败: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open.
func (s *Store) Close() error {
	return nil
}

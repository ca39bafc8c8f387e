// Package memstore keeps the memory profile in process memory only.
package memstore

import (
	"context"
	"sync"

	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
)

// Store is the in-memory profile store used in tests and ephemeral runs.
type Store struct {
	mu      sync.RWMutex
	profile memorymodel.Profile
	saved   bool
	saves   int
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) Load(_ context.Context) (memorymodel.Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return memorymodel.Profile{}, false, nil
	}
	return s.profile.Clone(), true, nil
}

func (s *Store) Save(_ context.Context, profile memorymodel.Profile) error {
	s.mu.Lock()
	s.profile = profile.Clone()
	s.saved = true
	s.saves++
	s.mu.Unlock()
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	s.profile = memorymodel.Profile{}
	s.saved = false
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

// Saves reports how many times Save has been called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

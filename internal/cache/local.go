package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore persists the snapshot to a local JSON file. Suitable for
// single-instance deployments.
type LocalStore struct {
	mu       sync.RWMutex
	filePath string
}

// NewLocalStore creates a file-backed store. An empty path disables
// persistence: Get returns nothing and Set is a no-op.
func NewLocalStore(filePath string) *LocalStore {
	return &LocalStore{filePath: filePath}
}

func (s *LocalStore) Get(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.filePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read catalog cache: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse catalog cache: %w", err)
	}
	if snap.Version != SnapshotVersion {
		// Stale shape; treat as absent so the caller re-discovers.
		return nil, nil
	}
	return &snap, nil
}

func (s *LocalStore) Set(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filePath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog cache: %w", err)
	}

	// Write atomically using temp file + rename.
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog cache: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename catalog cache: %w", err)
	}
	return nil
}

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}

// Package cache persists discovered model catalogs between runs.
// Supports both local file and Redis backends for multi-instance deployments.
package cache

import (
	"context"
	"time"

	"llmbridge/internal/core"
)

// Snapshot is the persisted catalog state: the discovered model list of every
// backend that enumerates models at runtime, keyed by backend id.
type Snapshot struct {
	Version   int                                 `json:"version"`
	UpdatedAt time.Time                           `json:"updated_at"`
	Catalogs  map[string][]core.ModelDescriptor   `json:"catalogs"`
}

// SnapshotVersion is bumped when the on-disk shape changes; older snapshots
// are discarded rather than migrated.
const SnapshotVersion = 1

// Store defines catalog cache storage. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get retrieves the snapshot. Returns nil, nil when no cache exists yet.
	Get(ctx context.Context) (*Snapshot, error)

	// Set stores the snapshot.
	Set(ctx context.Context, snap *Snapshot) error

	// Close releases any resources held by the store.
	Close() error
}

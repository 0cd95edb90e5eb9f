// Package store persists memory records. The SQLite implementation is the
// only one shipped; the interface exists so the engine can be tested against
// an in-memory fake.
package store

import (
	"context"
	"time"

	"github.com/xiy/engram-mcp/pkg/types"
)

// Store is the persistence contract the engine depends on. Query returns
// records newest-first. Archive demotes old low-value records in place and
// never deletes rows.
type Store interface {
	Insert(ctx context.Context, rec *types.MemoryRecord) error
	Get(ctx context.Context, ci, id string) (*types.MemoryRecord, error)
	Update(ctx context.Context, rec *types.MemoryRecord) error
	Query(ctx context.Context, filter types.QueryFilter) ([]*types.MemoryRecord, error)
	Archive(ctx context.Context, ci string, maxAge time.Duration) (int, error)
	Stats(ctx context.Context, ci string) (*types.StoreStats, error)
	Close() error
}

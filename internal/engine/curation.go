package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiy/engram-mcp/pkg/types"
)

// UpdateMetadata applies a curation patch to a record. At least one patch
// field must be set. Only supplied fields change.
func (e *Engine) UpdateMetadata(ctx context.Context, id string, patch types.MetadataPatch) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, fmt.Errorf("%w: at least one metadata field required", ErrInvalidInput)
	}

	rec, err := e.store.Get(ctx, e.ci, id)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}

	if patch.Personal != nil {
		rec.Personal = *patch.Personal
	}
	if patch.NoArchive != nil {
		rec.NoArchive = *patch.NoArchive
	}
	if patch.Collection != nil {
		rec.Collection = *patch.Collection
	}

	if err := e.store.Update(ctx, rec); err != nil {
		return nil, e.mapStoreErr(err)
	}
	return rec, nil
}

// ReviseContent replaces a record's content text and refreshes its embedding.
func (e *Engine) ReviseContent(ctx context.Context, id, content string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content required", ErrInvalidInput)
	}

	rec, err := e.store.Get(ctx, e.ci, id)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}

	rec.Content = content
	if err := e.store.Update(ctx, rec); err != nil {
		return nil, e.mapStoreErr(err)
	}

	e.indexRecord(ctx, rec)
	return rec, nil
}

// Review marks a record as consciously revisited, bumping its review
// bookkeeping and access decay fields.
func (e *Engine) Review(ctx context.Context, id string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return nil, err
	}

	rec, err := e.store.Get(ctx, e.ci, id)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}

	now := e.now()
	rec.LastReviewed = &now
	rec.ReviewCount++
	rec.LastAccessed = now
	rec.AccessCount++

	if err := e.store.Update(ctx, rec); err != nil {
		return nil, e.mapStoreErr(err)
	}
	return rec, nil
}

package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/engram-mcp/internal/config"
	"github.com/xiy/engram-mcp/internal/store"
	"github.com/xiy/engram-mcp/pkg/types"
)

// fakeStore is an in-memory Store. Inserts are chronological, so reverse
// insertion order stands in for newest-first.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*types.MemoryRecord
	order   []string

	insertErr error
	updateErr error
	queryErr  error
	statsErr  error

	archiveCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*types.MemoryRecord)}
}

func (f *fakeStore) Insert(_ context.Context, rec *types.MemoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	clone := *rec
	f.records[rec.ID] = &clone
	f.order = append(f.order, rec.ID)
	return nil
}

func (f *fakeStore) Get(_ context.Context, ci, id string) (*types.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.CI != ci {
		return nil, store.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeStore) Update(_ context.Context, rec *types.MemoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.records[rec.ID]; !ok {
		return store.ErrNotFound
	}
	clone := *rec
	f.records[rec.ID] = &clone
	return nil
}

func (f *fakeStore) Query(_ context.Context, filter types.QueryFilter) ([]*types.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []*types.MemoryRecord
	for i := len(f.order) - 1; i >= 0; i-- {
		rec := f.records[f.order[i]]
		if rec.CI != filter.CI {
			continue
		}
		if filter.SessionID != "" && rec.SessionID != filter.SessionID {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.MinImportance > 0 && rec.Importance < filter.MinImportance {
			continue
		}
		if filter.Archived != nil && rec.Archived != *filter.Archived {
			continue
		}
		clone := *rec
		out = append(out, &clone)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Archive(_ context.Context, ci string, maxAge time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archiveCalls++
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for _, rec := range f.records {
		if rec.CI != ci || rec.Archived || rec.NoArchive || rec.MarkedImportant {
			continue
		}
		if rec.CreatedAt.Before(cutoff) {
			rec.Archived = true
			if rec.Tier < types.Tier3 {
				rec.Tier++
			}
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Stats(_ context.Context, ci string) (*types.StoreStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	stats := &types.StoreStats{}
	for _, rec := range f.records {
		if rec.CI != ci {
			continue
		}
		stats.TotalRecords++
		if rec.Archived {
			stats.ArchivedRecords++
		}
	}
	return stats, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) get(id string) *types.MemoryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil
	}
	clone := *rec
	return &clone
}

// fakeClock ticks only when told to.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeEmbedder returns preset vectors by exact text.
type fakeEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vec, ok := f.vecs[text]
	if !ok {
		return nil, errors.New("no vector for text")
	}
	return vec, nil
}

type fakeAmbient struct {
	unread     int
	checkpoint time.Time
	err        error
}

func (f *fakeAmbient) UnreadMessages(context.Context) (int, error) {
	return f.unread, f.err
}

func (f *fakeAmbient) LastCheckpoint(context.Context) (time.Time, error) {
	return f.checkpoint, f.err
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestEngine(opts ...Option) (*Engine, *fakeStore, *fakeClock) {
	st := newFakeStore()
	clock := newFakeClock()
	cfg := config.Default()
	all := append([]Option{withClock(clock.Now)}, opts...)
	return New(&cfg, st, testLogger(), all...), st, clock
}

func startSession(t *testing.T, e *Engine, ci string) {
	t.Helper()
	if _, err := e.StartSession(context.Background(), ci); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
}

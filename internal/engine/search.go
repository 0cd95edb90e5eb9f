package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiy/engram-mcp/pkg/types"
)

// HybridSearch ranks candidates against a query: case-insensitive keyword
// matches first in candidate order, then the remaining candidates by
// descending semantic similarity above the configured threshold. Without a
// vector index the result is the keyword matches alone, a strict subset of
// the hybrid ranking, never an error.
func (e *Engine) HybridSearch(ctx context.Context, query string, candidates []*types.MemoryRecord) ([]types.SearchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hybridSearch(ctx, query, candidates)
}

// hybridSearch is the lock-held implementation shared with RecallAbout.
func (e *Engine) hybridSearch(ctx context.Context, query string, candidates []*types.MemoryRecord) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query required", ErrInvalidInput)
	}

	needle := strings.ToLower(query)
	results := make([]types.SearchResult, 0, len(candidates))
	var rest []*types.MemoryRecord
	for _, rec := range candidates {
		if strings.Contains(strings.ToLower(rec.Content), needle) {
			results = append(results, types.SearchResult{
				Record:      *rec,
				Relevance:   1.0,
				FromKeyword: true,
			})
		} else {
			rest = append(rest, rec)
		}
	}

	if e.index == nil || e.embedder == nil || len(rest) == 0 {
		return results, nil
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed, keyword-only results", "error", err)
		return results, nil
	}

	// The index may hold vectors beyond this candidate set, so search
	// unbounded and filter to the remaining candidates before capping.
	byID := make(map[string]*types.MemoryRecord, len(rest))
	for _, rec := range rest {
		byID[rec.ID] = rec
	}
	taken := 0
	for _, m := range e.index.Search(queryVec, e.cfg.SemanticThreshold, 0) {
		rec, ok := byID[m.ID]
		if !ok {
			continue
		}
		results = append(results, types.SearchResult{
			Record:       *rec,
			Relevance:    m.Score,
			FromSemantic: true,
		})
		taken++
		if max := e.cfg.MaxSemanticResults; max > 0 && taken >= max {
			break
		}
	}
	return results, nil
}

// RecallAbout pulls the CI's recent records from storage and hybrid-ranks
// them against a topic.
func (e *Engine) RecallAbout(ctx context.Context, topic string) ([]types.SearchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return nil, err
	}
	candidates, err := e.store.Query(ctx, types.QueryFilter{
		CI:    e.ci,
		Limit: e.cfg.MaxTopicRecall,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query for recall: %v", ErrStorage, err)
	}
	return e.hybridSearch(ctx, topic, candidates)
}

// RecentThoughts returns the CI's n most recent records, newest first. A
// non-positive n means the configured default.
func (e *Engine) RecentThoughts(ctx context.Context, n int) ([]*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return nil, err
	}
	if n <= 0 || n > e.cfg.MaxRecentThoughts {
		n = e.cfg.MaxRecentThoughts
	}
	records, err := e.store.Query(ctx, types.QueryFilter{CI: e.ci, Limit: n})
	if err != nil {
		return nil, fmt.Errorf("%w: query recent: %v", ErrStorage, err)
	}
	return records, nil
}

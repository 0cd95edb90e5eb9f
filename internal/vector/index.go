package vector

import (
	"math"
	"sort"
	"sync"
)

// Match pairs a stored id with its cosine similarity to a query vector.
type Match struct {
	ID    string
	Score float64
}

// Index is a small in-memory cosine-similarity index keyed by record id.
// It is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewIndex() *Index {
	return &Index{vectors: make(map[string][]float32)}
}

// Put stores or replaces the vector for id.
func (ix *Index) Put(id string, vec []float32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors[id] = vec
}

// Delete removes the vector for id if present.
func (ix *Index) Delete(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.vectors, id)
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Similarity returns the cosine similarity between query and the stored
// vector for id. The second return is false when id has no vector.
func (ix *Index) Similarity(query []float32, id string) (float64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	vec, ok := ix.vectors[id]
	if !ok {
		return 0, false
	}
	return CosineSimilarity(query, vec), true
}

// Search returns ids whose similarity to query is at least threshold,
// best first, at most limit results.
func (ix *Index) Search(query []float32, threshold float64, limit int) []Match {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var matches []Match
	for id, vec := range ix.vectors {
		score := CosineSimilarity(query, vec)
		if score >= threshold {
			matches = append(matches, Match{ID: id, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

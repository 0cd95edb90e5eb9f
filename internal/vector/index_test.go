package vector

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched lengths", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 2}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIndexSearch(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	ix.Put("close", []float32{1, 0.1})
	ix.Put("far", []float32{0, 1})
	ix.Put("exact", []float32{1, 0})

	got := ix.Search([]float32{1, 0}, 0.5, 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "exact" || got[1].ID != "close" {
		t.Errorf("order = %s, %s; want exact, close", got[0].ID, got[1].ID)
	}

	got = ix.Search([]float32{1, 0}, 0.5, 1)
	if len(got) != 1 || got[0].ID != "exact" {
		t.Errorf("limited search = %v, want only exact", got)
	}
}

func TestIndexDelete(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	ix.Put("a", []float32{1, 0})
	ix.Delete("a")
	if ix.Len() != 0 {
		t.Errorf("Len = %d after delete, want 0", ix.Len())
	}
	if got := ix.Search([]float32{1, 0}, 0, 0); len(got) != 0 {
		t.Errorf("Search after delete = %v, want empty", got)
	}
}

func TestOllamaEmbedder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text")
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("len = %d, want 2", len(vec))
	}
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "missing")
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("Embed succeeded against failing server")
	}
}

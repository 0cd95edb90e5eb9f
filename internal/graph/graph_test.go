package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xiy/engram-mcp/internal/store"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s.DB())
}

func TestConnectAndNeighbors(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	ctx := context.Background()

	if err := g.Connect(ctx, "a", []string{"b", "c"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	got, err := g.Neighbors(ctx, "a")
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("neighbors of a = %v, want 2", got)
	}

	// Edges are bidirectional.
	got, err = g.Neighbors(ctx, "b")
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("neighbors of b = %v, want [a]", got)
	}
}

func TestConnect_Idempotent(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := g.Connect(ctx, "a", []string{"b"}); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}

	got, err := g.Neighbors(ctx, "a")
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("neighbors = %v after repeat connects, want single edge", got)
	}
}

func TestConnect_IgnoresSelfEdge(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	ctx := context.Background()

	if err := g.Connect(ctx, "a", []string{"a", "b"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	got, err := g.Neighbors(ctx, "a")
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("neighbors = %v, want [b]", got)
	}
}

func TestDegrees(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	ctx := context.Background()

	if err := g.Connect(ctx, "hub", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	degrees, err := g.Degrees(ctx)
	if err != nil {
		t.Fatalf("Degrees: %v", err)
	}
	if degrees["hub"] != 3 {
		t.Errorf("degree(hub) = %d, want 3", degrees["hub"])
	}
	if degrees["a"] != 1 {
		t.Errorf("degree(a) = %d, want 1", degrees["a"])
	}
}

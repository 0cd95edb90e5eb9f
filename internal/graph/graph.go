// Package graph maintains undirected relationships between memories in the
// memory_edges table. Centrality scoring during sleep consolidation reads the
// adjacency it accumulates.
package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Graph records which memories reference each other. Edges are stored once in
// each direction so adjacency lookups are a single indexed scan.
type Graph struct {
	db *sql.DB
}

func New(db *sql.DB) *Graph {
	return &Graph{db: db}
}

// Connect links fromID to each id in toIDs. Existing edges are kept as-is.
func (g *Graph) Connect(ctx context.Context, fromID string, toIDs []string) error {
	if len(toIDs) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin connect: %w", err)
	}
	defer tx.Rollback()

	for _, toID := range toIDs {
		if toID == fromID {
			continue
		}
		for _, pair := range [][2]string{{fromID, toID}, {toID, fromID}} {
			_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO memory_edges
				(from_id, to_id, created_at) VALUES (?, ?, ?)`, pair[0], pair[1], now)
			if err != nil {
				return fmt.Errorf("insert edge: %w", err)
			}
		}
	}
	return tx.Commit()
}

// Neighbors returns the ids directly connected to id.
func (g *Graph) Neighbors(ctx context.Context, id string) ([]string, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT to_id FROM memory_edges WHERE from_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var to string
		if err := rows.Scan(&to); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		out = append(out, to)
	}
	return out, rows.Err()
}

// Degrees returns the edge count per memory id across the whole graph.
func (g *Graph) Degrees(ctx context.Context) (map[string]int, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT from_id, COUNT(*) FROM memory_edges GROUP BY from_id`)
	if err != nil {
		return nil, fmt.Errorf("degrees: %w", err)
	}
	defer rows.Close()

	degrees := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan degree: %w", err)
		}
		degrees[id] = n
	}
	return degrees, rows.Err()
}

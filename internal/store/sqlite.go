package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xiy/engram-mcp/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned by Get when no record matches the id for the CI.
var ErrNotFound = errors.New("memory not found")

// SQLiteStore persists memories in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the database at path and applies
// the schema. The connection pool is capped at one connection because
// modernc.org/sqlite serializes writers anyway.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) applySchema() error {
	for _, stmt := range splitSQLStatements(schemaSQL) {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// splitSQLStatements splits a schema file on statement-terminating semicolons.
// Good enough for our schema, which has no triggers or string literals
// containing semicolons.
func splitSQLStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// DB exposes the underlying handle for collaborators that share the database
// file, such as the relationship graph.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const memoryColumns = `id, ci, session_id, kind, content, response, importance, importance_note,
	tier, archived, created_at, last_accessed, access_count, emotion_intensity, emotion_kind,
	marked_important, marked_forgettable, connected_ids, centrality, personal, no_archive,
	collection, last_reviewed, review_count`

func (s *SQLiteStore) Insert(ctx context.Context, rec *types.MemoryRecord) error {
	connected, err := json.Marshal(rec.ConnectedIDs)
	if err != nil {
		return fmt.Errorf("marshal connected ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CI, rec.SessionID, string(rec.Kind), rec.Content, rec.Response,
		rec.Importance, rec.ImportanceNote, int(rec.Tier), boolToInt(rec.Archived),
		rec.CreatedAt.Format(time.RFC3339Nano), rec.LastAccessed.Format(time.RFC3339Nano),
		rec.AccessCount, rec.EmotionIntensity, rec.EmotionKind,
		boolToInt(rec.MarkedImportant), boolToInt(rec.MarkedForgettable),
		string(connected), rec.Centrality, boolToInt(rec.Personal), boolToInt(rec.NoArchive),
		rec.Collection, nullableTime(rec.LastReviewed), rec.ReviewCount)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, ci, id string) (*types.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE ci = ? AND id = ?`, ci, id)
	rec, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, rec *types.MemoryRecord) error {
	connected, err := json.Marshal(rec.ConnectedIDs)
	if err != nil {
		return fmt.Errorf("marshal connected ids: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE memories SET
		session_id = ?, kind = ?, content = ?, response = ?, importance = ?, importance_note = ?,
		tier = ?, archived = ?, last_accessed = ?, access_count = ?, emotion_intensity = ?,
		emotion_kind = ?, marked_important = ?, marked_forgettable = ?, connected_ids = ?,
		centrality = ?, personal = ?, no_archive = ?, collection = ?, last_reviewed = ?,
		review_count = ?
		WHERE ci = ? AND id = ?`,
		rec.SessionID, string(rec.Kind), rec.Content, rec.Response, rec.Importance, rec.ImportanceNote,
		int(rec.Tier), boolToInt(rec.Archived), rec.LastAccessed.Format(time.RFC3339Nano),
		rec.AccessCount, rec.EmotionIntensity, rec.EmotionKind,
		boolToInt(rec.MarkedImportant), boolToInt(rec.MarkedForgettable), string(connected),
		rec.Centrality, boolToInt(rec.Personal), boolToInt(rec.NoArchive), rec.Collection,
		nullableTime(rec.LastReviewed), rec.ReviewCount,
		rec.CI, rec.ID)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, filter types.QueryFilter) ([]*types.MemoryRecord, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "ci = ?")
	args = append(args, filter.CI)

	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, filter.Until.Format(time.RFC3339Nano))
	}
	if filter.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, filter.MinImportance)
	}
	if filter.Tier != 0 {
		where = append(where, "tier = ?")
		args = append(args, int(filter.Tier))
	}
	if filter.Archived != nil {
		where = append(where, "archived = ?")
		args = append(args, boolToInt(*filter.Archived))
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []*types.MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	return out, nil
}

// Archive demotes unarchived tier-1 and tier-2 records older than maxAge:
// tier is bumped one level and the archived flag set. Records pinned with
// no_archive or marked_important are skipped. Rows are never deleted.
func (s *SQLiteStore) Archive(ctx context.Context, ci string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `UPDATE memories
		SET tier = tier + 1, archived = 1
		WHERE ci = ? AND archived = 0 AND tier < 3
		  AND no_archive = 0 AND marked_important = 0
		  AND created_at < ?`, ci, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive memories: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Stats(ctx context.Context, ci string) (*types.StoreStats, error) {
	stats := &types.StoreStats{}

	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(tier = 1), 0), COALESCE(SUM(tier = 2), 0), COALESCE(SUM(tier = 3), 0),
		COALESCE(SUM(archived), 0),
		COALESCE(SUM(LENGTH(content) + LENGTH(response)), 0),
		MIN(created_at), MAX(created_at)
		FROM memories WHERE ci = ?`, ci).
		Scan(&stats.TotalRecords, &stats.Tier1Records, &stats.Tier2Records, &stats.Tier3Records,
			&stats.ArchivedRecords, &stats.BytesUsed, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}

	if oldest.Valid {
		if stats.OldestMemory, err = time.Parse(time.RFC3339Nano, oldest.String); err != nil {
			return nil, fmt.Errorf("parse oldest timestamp: %w", err)
		}
	}
	if newest.Valid {
		if stats.NewestMemory, err = time.Parse(time.RFC3339Nano, newest.String); err != nil {
			return nil, fmt.Errorf("parse newest timestamp: %w", err)
		}
	}
	return stats, nil
}

// RequestLogEntry is one logged MCP request, surfaced in the admin dashboard.
type RequestLogEntry struct {
	Method     string
	ToolName   string
	Success    bool
	ErrorText  string
	DurationMS int64
	CreatedAt  time.Time
}

// LogRequest records an MCP request outcome for the admin dashboard. Failures
// are swallowed by callers; losing a log row never fails a request.
func (s *SQLiteStore) LogRequest(ctx context.Context, entry RequestLogEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO mcp_requests
		(method, tool_name, success, error_text, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Method, entry.ToolName, boolToInt(entry.Success), entry.ErrorText,
		entry.DurationMS, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("log request: %w", err)
	}
	return nil
}

// RecentRequests returns the newest request log entries, most recent first.
func (s *SQLiteStore) RecentRequests(ctx context.Context, limit int) ([]RequestLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT method, tool_name, success, error_text,
		duration_ms, created_at FROM mcp_requests ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent requests: %w", err)
	}
	defer rows.Close()

	var out []RequestLogEntry
	for rows.Next() {
		var (
			entry   RequestLogEntry
			success int
			created string
		)
		if err := rows.Scan(&entry.Method, &entry.ToolName, &success, &entry.ErrorText,
			&entry.DurationMS, &created); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		entry.Success = success != 0
		entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*types.MemoryRecord, error) {
	var (
		rec          types.MemoryRecord
		kind         string
		tier         int
		archived     int
		created      string
		accessed     string
		markedImp    int
		markedForget int
		connected    string
		personal     int
		noArchive    int
		lastReviewed sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.CI, &rec.SessionID, &kind, &rec.Content, &rec.Response,
		&rec.Importance, &rec.ImportanceNote, &tier, &archived, &created, &accessed,
		&rec.AccessCount, &rec.EmotionIntensity, &rec.EmotionKind, &markedImp, &markedForget,
		&connected, &rec.Centrality, &personal, &noArchive, &rec.Collection,
		&lastReviewed, &rec.ReviewCount)
	if err != nil {
		return nil, err
	}

	rec.Kind = types.Kind(kind)
	rec.Tier = types.Tier(tier)
	rec.Archived = archived != 0
	rec.MarkedImportant = markedImp != 0
	rec.MarkedForgettable = markedForget != 0
	rec.Personal = personal != 0
	rec.NoArchive = noArchive != 0

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.LastAccessed, err = time.Parse(time.RFC3339Nano, accessed); err != nil {
		return nil, fmt.Errorf("parse last_accessed: %w", err)
	}
	if lastReviewed.Valid && lastReviewed.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastReviewed.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_reviewed: %w", err)
		}
		rec.LastReviewed = &t
	}
	if err := json.Unmarshal([]byte(connected), &rec.ConnectedIDs); err != nil {
		return nil, fmt.Errorf("unmarshal connected ids: %w", err)
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

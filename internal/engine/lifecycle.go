package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiy/engram-mcp/pkg/types"
)

// StartSession binds the engine to a CI, generates a session identifier,
// resets per-session statistics, begins turn 1, and takes the first (forced)
// breath. Only one session may be active per process.
func (e *Engine) StartSession(ctx context.Context, ci string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ci == "" {
		return "", fmt.Errorf("%w: ci identifier required", ErrInvalidInput)
	}
	if e.ci != "" {
		return "", fmt.Errorf("%w: session %s already active", ErrInvalidState, e.sessionID)
	}

	now := e.now()
	e.ci = ci
	e.sessionID = fmt.Sprintf("%s_%d", ci, now.Unix())
	e.sessionStart = now
	e.lastActivity = now
	e.turn = 1
	e.turnActive = true
	e.turnMemories = nil
	e.memoriesAdded = 0
	e.mode = ModeWake
	e.stats = types.ConsolidationStats{WakeStarted: now}
	e.haveSample = false
	e.cached = types.BreathSnapshot{}

	if snap, err := e.sample(ctx, now); err != nil {
		e.logger.Warn("initial breath failed", "ci", ci, "error", err)
	} else {
		e.lastSample = now
		e.haveSample = true
		e.cached = snap
	}

	e.logger.Info("session started", "ci", ci, "session", e.sessionID)
	return e.sessionID, nil
}

// EndSession takes a final breath, writes the session digest, runs the
// wake-mode auto-consolidate pass, and clears session state. Calling it with
// no active session is a no-op.
func (e *Engine) EndSession(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ci == "" {
		return nil
	}

	now := e.now()
	if snap, err := e.sample(ctx, now); err != nil {
		e.logger.Warn("final breath failed", "error", err)
	} else {
		e.cached = snap
	}

	if err := e.writeSessionDigest(ctx, now); err != nil {
		e.logger.Warn("session digest write failed", "error", err)
	}

	maxAge := time.Duration(e.cfg.ArchiveMaxAgeDays) * 24 * time.Hour
	if n, err := e.store.Archive(ctx, e.ci, maxAge); err != nil {
		e.logger.Warn("auto-consolidate archive failed", "error", err)
	} else if n > 0 {
		e.logger.Info("auto-consolidated aged memories", "archived", n)
	}

	e.logger.Info("session ended", "ci", e.ci, "session", e.sessionID,
		"turns", e.turn, "memories", e.memoriesAdded)

	e.ci = ""
	e.sessionID = ""
	e.sessionStart = time.Time{}
	e.turn = 0
	e.turnActive = false
	e.turnMemories = nil
	e.memoriesAdded = 0
	e.haveSample = false
	e.mode = ModeWake
	e.sleepProcessed = nil
	return nil
}

// writeSessionDigest records a reflection summarizing the session. Called
// with the lock held.
func (e *Engine) writeSessionDigest(ctx context.Context, now time.Time) error {
	rec := &types.MemoryRecord{
		ID:        uuid.NewString(),
		CI:        e.ci,
		SessionID: e.sessionID,
		Kind:      types.KindReflection,
		Content: fmt.Sprintf("Session %s closed after %d turns with %d memories formed.",
			e.sessionID, e.turn, e.memoriesAdded),
		Importance:     0.5,
		ImportanceNote: "session digest",
		Tier:           types.Tier1,
		CreatedAt:      now,
		LastAccessed:   now,
		ConnectedIDs:   []string{},
	}
	return e.store.Insert(ctx, rec)
}

// ArchiveAged runs the wake-mode auto-consolidate pass on demand. With no
// active session there is nothing to age out; that is not an error.
func (e *Engine) ArchiveAged(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ci == "" {
		return 0, nil
	}
	maxAge := time.Duration(e.cfg.ArchiveMaxAgeDays) * 24 * time.Hour
	n, err := e.store.Archive(ctx, e.ci, maxAge)
	if err != nil {
		return 0, fmt.Errorf("%w: archive aged: %v", ErrStorage, err)
	}
	return n, nil
}

// BeginTurn advances the turn counter and clears the turn memory set.
func (e *Engine) BeginTurn() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return 0, err
	}
	e.turn++
	e.turnActive = true
	e.turnMemories = nil
	e.lastActivity = e.now()
	return e.turn, nil
}

// EndTurn clears the turn memory set and returns the turn to idle.
func (e *Engine) EndTurn() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return err
	}
	e.turnActive = false
	e.turnMemories = nil
	e.lastActivity = e.now()
	return nil
}

// TurnMemories returns a copy of the record IDs formed during the current
// turn, in formation order.
func (e *Engine) TurnMemories() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return nil, err
	}
	out := make([]string, len(e.turnMemories))
	copy(out, e.turnMemories)
	return out, nil
}

// SessionMemories returns the IDs of every record stored under the current
// session, newest first. Derived from storage rather than tracked
// incrementally.
func (e *Engine) SessionMemories(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return nil, err
	}
	records, err := e.store.Query(ctx, types.QueryFilter{CI: e.ci, SessionID: e.sessionID})
	if err != nil {
		return nil, fmt.Errorf("%w: query session memories: %v", ErrStorage, err)
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

// SessionInfo reports the state of the active session, if any.
func (e *Engine) SessionInfo() types.SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	return types.SessionInfo{
		CI:            e.ci,
		SessionID:     e.sessionID,
		StartedAt:     e.sessionStart,
		Turn:          e.turn,
		MemoriesAdded: e.memoriesAdded,
		Active:        e.ci != "",
		LastActivity:  e.lastActivity,
	}
}

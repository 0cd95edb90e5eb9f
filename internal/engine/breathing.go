package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/xiy/engram-mcp/pkg/types"
)

// Breathe returns an ambient-awareness snapshot. Unless forced, a cached
// snapshot younger than the configured interval is returned untouched with no
// I/O. The first breath after a session starts always samples. Sampling
// failures are logged and the last good snapshot returned; breathing is never
// the reason a request fails.
func (e *Engine) Breathe(ctx context.Context, forced bool) (types.BreathSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return types.BreathSnapshot{}, err
	}

	now := e.now()
	if !forced && e.haveSample && now.Sub(e.lastSample) < e.breathInterval {
		return e.cached, nil
	}

	snap, err := e.sample(ctx, now)
	if err != nil {
		e.logger.Warn("breath sample failed, returning cached snapshot", "error", err)
		return e.cached, nil
	}

	e.lastSample = now
	e.haveSample = true
	e.cached = snap
	return snap, nil
}

// sample performs the actual collaborator queries. Called with the lock held.
func (e *Engine) sample(ctx context.Context, now time.Time) (types.BreathSnapshot, error) {
	snap := types.BreathSnapshot{SampledAt: now}

	if e.messages != nil {
		n, err := e.messages.UnreadMessages(ctx)
		if err != nil {
			return types.BreathSnapshot{}, fmt.Errorf("count unread messages: %w", err)
		}
		snap.UnreadMessages = n
	}

	checkpoint := e.sessionStart
	if e.checkpoints != nil {
		last, err := e.checkpoints.LastCheckpoint(ctx)
		if err != nil {
			return types.BreathSnapshot{}, fmt.Errorf("checkpoint age: %w", err)
		}
		checkpoint = last
	}
	if !checkpoint.IsZero() {
		snap.CheckpointAge = now.Sub(checkpoint)
	}

	stats, err := e.store.Stats(ctx, e.ci)
	if err != nil {
		return types.BreathSnapshot{}, fmt.Errorf("storage stats: %w", err)
	}
	live := stats.TotalRecords - stats.ArchivedRecords
	snap.NeedsConsolidation = live >= int64(e.cfg.ConsolidationWatermark)

	return snap, nil
}

// SetBreathInterval changes the sampling interval at runtime. Intervals below
// one second are rejected.
func (e *Engine) SetBreathInterval(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("%w: breath interval %v below 1s minimum", ErrInvalidInput, d)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breathInterval = d
	return nil
}

// BreathInterval returns the currently configured sampling interval.
func (e *Engine) BreathInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breathInterval
}

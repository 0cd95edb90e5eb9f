// Package engine implements the autonomic breathing and differential
// consolidation core: wake-mode capture, rate-limited ambient sampling,
// session and turn tracking, and the sleep-mode batch passes that route
// memories by strength, score centrality, and extract recurring patterns.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/engram-mcp/internal/config"
	"github.com/xiy/engram-mcp/internal/graph"
	"github.com/xiy/engram-mcp/internal/store"
	"github.com/xiy/engram-mcp/internal/vector"
	"github.com/xiy/engram-mcp/pkg/types"
)

// Mode is the consolidation state machine's current phase.
type Mode int

const (
	ModeWake Mode = iota
	ModeSleep
)

func (m Mode) String() string {
	if m == ModeSleep {
		return "SLEEP"
	}
	return "WAKE"
}

// MessageCounter reports how many messages are waiting for the CI's
// attention. Supplied by the host environment; nil means "always zero".
type MessageCounter interface {
	UnreadMessages(ctx context.Context) (int, error)
}

// CheckpointClock reports when the CI last wrote a checkpoint. Supplied by
// the host environment; nil means "measure from session start".
type CheckpointClock interface {
	LastCheckpoint(ctx context.Context) (time.Time, error)
}

// SignificancePredicate decides whether free text warrants auto-capture.
type SignificancePredicate func(text string) bool

// Engine is the per-process consolidation context. One active session (one
// CI) per process; every public entry point serializes on a single coarse
// mutex because memory formation is low-frequency and correctness-sensitive.
type Engine struct {
	mu     sync.Mutex
	cfg    *config.Config
	store  store.Store
	logger *log.Logger

	// Optional collaborators. Nil handles are a valid, degraded configuration.
	index       *vector.Index
	embedder    vector.Embedder
	graph       *graph.Graph
	messages    MessageCounter
	checkpoints CheckpointClock
	significant SignificancePredicate

	now func() time.Time

	mode Mode

	// Session state.
	ci            string
	sessionID     string
	sessionStart  time.Time
	lastActivity  time.Time
	turn          int
	turnActive    bool
	turnMemories  []string
	memoriesAdded int

	// Breathing state.
	breathInterval time.Duration
	lastSample     time.Time
	haveSample     bool
	cached         types.BreathSnapshot

	stats types.ConsolidationStats

	// IDs already handled in the current sleep phase, so rerunning a phase
	// operation does not double-count.
	sleepProcessed map[string]bool
}

// Option configures optional collaborators on an Engine.
type Option func(*Engine)

// WithVector attaches a similarity index and an embedding provider. Both are
// used best-effort; failures degrade to keyword-only search.
func WithVector(ix *vector.Index, emb vector.Embedder) Option {
	return func(e *Engine) {
		e.index = ix
		e.embedder = emb
	}
}

// WithGraph attaches the relationship graph used for edge creation on write
// and for centrality scoring during sleep.
func WithGraph(g *graph.Graph) Option {
	return func(e *Engine) { e.graph = g }
}

// WithAmbient attaches the collaborators breathing samples from.
func WithAmbient(mc MessageCounter, cc CheckpointClock) Option {
	return func(e *Engine) {
		e.messages = mc
		e.checkpoints = cc
	}
}

// WithSignificance replaces the marker-vocabulary auto-capture predicate.
func WithSignificance(pred SignificancePredicate) Option {
	return func(e *Engine) { e.significant = pred }
}

func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(cfg *config.Config, st store.Store, logger *log.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:            cfg,
		store:          st,
		logger:         logger,
		now:            time.Now,
		mode:           ModeWake,
		breathInterval: time.Duration(cfg.BreathIntervalSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.significant == nil {
		e.significant = markerPredicate(cfg.AutoCaptureMarkers)
	}
	return e
}

// Mode returns the current consolidation phase.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Stats returns a copy of the current cycle's statistics.
func (e *Engine) Stats() types.ConsolidationStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// requireSession must be called with the lock held.
func (e *Engine) requireSession() error {
	if e.ci == "" {
		return fmt.Errorf("%w: no active session", ErrInvalidState)
	}
	return nil
}

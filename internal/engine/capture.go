package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xiy/engram-mcp/internal/store"
	"github.com/xiy/engram-mcp/pkg/types"
)

// Qualitative importance vocabulary. Remember callers describe why a thought
// matters in words; the table maps them onto the numeric scale.
const (
	ImportanceTrivial     = 0.0
	ImportanceRoutine     = 0.25
	ImportanceInteresting = 0.5
	ImportanceSignificant = 0.75
	ImportanceCritical    = 1.0
)

var importanceWords = map[string]float64{
	"trivial":     ImportanceTrivial,
	"routine":     ImportanceRoutine,
	"interesting": ImportanceInteresting,
	"significant": ImportanceSignificant,
	"critical":    ImportanceCritical,
}

// ParseImportance maps a qualitative phrase to a numeric importance. Exact
// vocabulary words win; otherwise the phrase is scanned for importance cues.
// Unrecognized phrases land at "interesting".
func ParseImportance(phrase string) float64 {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if v, ok := importanceWords[p]; ok {
		return v
	}
	switch {
	case strings.Contains(p, "critical") || strings.Contains(p, "crucial"):
		return ImportanceCritical
	case strings.Contains(p, "significant") || strings.Contains(p, "important"):
		return ImportanceSignificant
	case strings.Contains(p, "trivial") || strings.Contains(p, "forget"):
		return ImportanceTrivial
	case strings.Contains(p, "routine") || strings.Contains(p, "minor"):
		return ImportanceRoutine
	default:
		return ImportanceInteresting
	}
}

// captureOpts carries per-pathway knobs into the shared capture path.
type captureOpts struct {
	response          string
	markedImportant   bool
	markedForgettable bool
	connectedIDs      []string
	subconscious      bool
}

// capture is the shared formation path behind every pathway. Called with the
// lock held. The record is durable before the ID enters the turn set.
func (e *Engine) capture(ctx context.Context, kind types.Kind, content string,
	importance float64, note string, opts captureOpts) (*types.MemoryRecord, error) {

	if err := e.requireSession(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content required", ErrInvalidInput)
	}

	now := e.now()
	rec := &types.MemoryRecord{
		ID:                uuid.NewString(),
		CI:                e.ci,
		SessionID:         e.sessionID,
		Kind:              kind,
		Content:           content,
		Response:          opts.response,
		Importance:        importance,
		ImportanceNote:    note,
		Tier:              types.Tier1,
		CreatedAt:         now,
		LastAccessed:      now,
		MarkedImportant:   opts.markedImportant,
		MarkedForgettable: opts.markedForgettable,
		ConnectedIDs:      opts.connectedIDs,
	}
	if rec.ConnectedIDs == nil {
		rec.ConnectedIDs = []string{}
	}

	if err := e.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	e.turnMemories = append(e.turnMemories, rec.ID)
	e.memoriesAdded++
	e.lastActivity = now
	e.stats.MemoriesCaptured++
	if opts.subconscious {
		e.stats.SubconsciousFormations++
		// A heuristic hit in a turn that also formed memories deliberately
		// is a convergence of the two pathways.
		if len(e.turnMemories) > 1 {
			e.stats.Convergences++
		}
	} else {
		e.stats.ConsciousFormations++
	}

	e.indexRecord(ctx, rec)

	if e.graph != nil && len(opts.connectedIDs) > 0 {
		if err := e.graph.Connect(ctx, rec.ID, opts.connectedIDs); err != nil {
			e.logger.Warn("graph edge creation failed", "id", rec.ID, "error", err)
		}
	}
	return rec, nil
}

// indexRecord embeds and indexes a record's content. Best effort: the durable
// write already succeeded, so failures only degrade semantic recall.
func (e *Engine) indexRecord(ctx context.Context, rec *types.MemoryRecord) {
	if e.embedder == nil || e.index == nil {
		return
	}
	vec, err := e.embedder.Embed(ctx, rec.Content)
	if err != nil {
		e.logger.Warn("embedding failed, keyword-only recall for record",
			"id", rec.ID, "error", err)
		return
	}
	e.index.Put(rec.ID, vec)
}

// Remember stores a generic experience. why is a qualitative importance
// phrase ("trivial" through "critical") kept as the record's rationale.
func (e *Engine) Remember(ctx context.Context, thought, why string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capture(ctx, types.KindExperience, thought, ParseImportance(why), why, captureOpts{})
}

// RememberWithNote stores an experience with an explicit numeric importance
// and free-text rationale.
func (e *Engine) RememberWithNote(ctx context.Context, thought string, importance float64, note string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if importance < 0 || importance > 1 {
		return nil, fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidInput, importance)
	}
	return e.capture(ctx, types.KindExperience, thought, importance, note, captureOpts{})
}

// Learn stores a piece of knowledge at significant importance.
func (e *Engine) Learn(ctx context.Context, knowledge string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capture(ctx, types.KindKnowledge, knowledge, ImportanceSignificant, "learned", captureOpts{})
}

// Reflect stores a reflection at significant importance.
func (e *Engine) Reflect(ctx context.Context, reflection string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capture(ctx, types.KindReflection, reflection, ImportanceSignificant, "reflection", captureOpts{})
}

// Decide stores a decision. The reasoning is mandatory and kept as the
// record's rationale.
func (e *Engine) Decide(ctx context.Context, decision, reasoning string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if strings.TrimSpace(reasoning) == "" {
		return nil, fmt.Errorf("%w: decision reasoning required", ErrInvalidInput)
	}
	return e.capture(ctx, types.KindDecision, decision, ImportanceSignificant, reasoning, captureOpts{})
}

// NoticePattern stores an observed pattern at significant importance.
func (e *Engine) NoticePattern(ctx context.Context, pattern string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capture(ctx, types.KindPattern, pattern, ImportanceSignificant, "noticed pattern", captureOpts{})
}

// RememberForever stores an experience at critical importance with the
// marked-important consent flag set, exempting it from archival and fading.
func (e *Engine) RememberForever(ctx context.Context, thought string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capture(ctx, types.KindExperience, thought, ImportanceCritical, "remember forever",
		captureOpts{markedImportant: true})
}

// OkToForget stores an experience at routine importance with the
// marked-forgettable consent flag set, volunteering it for fading.
func (e *Engine) OkToForget(ctx context.Context, thought string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capture(ctx, types.KindExperience, thought, ImportanceRoutine, "ok to forget",
		captureOpts{markedForgettable: true})
}

// InResponseTo stores a thought connected to an earlier memory and records
// the relationship edge.
func (e *Engine) InResponseTo(ctx context.Context, prevID, thought string) (*types.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return nil, err
	}
	if prevID == "" {
		return nil, fmt.Errorf("%w: previous memory id required", ErrInvalidInput)
	}
	if _, err := e.store.Get(ctx, e.ci, prevID); err != nil {
		return nil, e.mapStoreErr(err)
	}
	return e.capture(ctx, types.KindExperience, thought, ImportanceInteresting, "in response to",
		captureOpts{connectedIDs: []string{prevID}})
}

// AutoCapture scans free text for significance markers and, on a hit, stores
// the whole text at interesting importance. Misses and storage failures are
// never surfaced; the heuristic must not destabilize the host conversation.
func (e *Engine) AutoCapture(ctx context.Context, text string) *types.MemoryRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ci == "" || strings.TrimSpace(text) == "" {
		return nil
	}
	if !e.significant(text) {
		return nil
	}
	rec, err := e.capture(ctx, types.KindExperience, text, ImportanceInteresting, "auto-captured",
		captureOpts{subconscious: true})
	if err != nil {
		e.logger.Warn("auto-capture store failed", "error", err)
		return nil
	}
	return rec
}

// markerPredicate builds the default significance predicate from the
// configured marker vocabulary. Matching is case-insensitive substring.
func markerPredicate(markers []string) SignificancePredicate {
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	return func(text string) bool {
		t := strings.ToLower(text)
		for _, m := range lowered {
			if m != "" && strings.Contains(t, m) {
				return true
			}
		}
		return false
	}
}

func (e *Engine) mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/xiy/engram-mcp/pkg/types"
)

// Strength is the sleep-mode routing tier for a record.
type Strength int

const (
	StrengthLow Strength = iota
	StrengthMedium
	StrengthHigh
)

func (s Strength) String() string {
	switch s {
	case StrengthHigh:
		return "HIGH"
	case StrengthMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// summaryMarker prefixes summarized content so reruns can detect records that
// were already condensed.
const summaryMarker = "[condensed] "

// summaryBudget is how many runes of original content a summary keeps.
const summaryBudget = 160

// ClassifyStrength scores a record and buckets it against the configured
// thresholds. The score is importance adjusted by consent flags, graph
// centrality, and access frequency, clamped to [0,1]. Only sleep-mode
// routing consults this; wake mode never classifies.
func (e *Engine) ClassifyStrength(rec *types.MemoryRecord) Strength {
	score := rec.Importance
	if rec.MarkedImportant {
		score += 0.2
	}
	if rec.MarkedForgettable {
		score -= 0.2
	}
	if rec.Centrality >= 0.5 {
		score += 0.1
	}
	if rec.AccessCount > 5 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	switch {
	case score >= e.cfg.HighStrengthThreshold:
		return StrengthHigh
	case score >= e.cfg.MediumStrengthThreshold:
		return StrengthMedium
	default:
		return StrengthLow
	}
}

// SleepBegin transitions WAKE to SLEEP and resets the sleep-phase counters.
// Beginning sleep while already asleep is an invalid-state error.
func (e *Engine) SleepBegin() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSession(); err != nil {
		return err
	}
	if e.mode == ModeSleep {
		return fmt.Errorf("%w: already in SLEEP mode", ErrInvalidState)
	}

	e.mode = ModeSleep
	e.sleepProcessed = make(map[string]bool)
	e.stats.MemoriesProcessed = 0
	e.stats.HighStrengthPreserved = 0
	e.stats.MediumStrengthSummarized = 0
	e.stats.LowStrengthArchived = 0
	e.stats.PatternsExtracted = 0
	e.stats.CentralityUpdates = 0
	e.stats.SleepStarted = e.now()
	e.stats.SleepCompleted = time.Time{}
	e.stats.SleepDuration = 0

	e.logger.Info("entering sleep consolidation", "ci", e.ci)
	return nil
}

// SleepRouteByStrength classifies every record owned by the CI and applies
// the per-tier policy: HIGH preserved verbatim, MEDIUM condensed, LOW
// archived. Rerunning within one sleep phase neither double-counts nor
// re-summarizes.
func (e *Engine) SleepRouteByStrength(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSleep(); err != nil {
		return err
	}

	records, err := e.store.Query(ctx, types.QueryFilter{CI: e.ci})
	if err != nil {
		return fmt.Errorf("%w: query for routing: %v", ErrStorage, err)
	}

	for _, rec := range records {
		if e.sleepProcessed[rec.ID] {
			continue
		}
		e.sleepProcessed[rec.ID] = true
		e.stats.MemoriesProcessed++

		switch e.ClassifyStrength(rec) {
		case StrengthHigh:
			e.stats.HighStrengthPreserved++

		case StrengthMedium:
			e.stats.MediumStrengthSummarized++
			if strings.HasPrefix(rec.Content, summaryMarker) {
				continue
			}
			rec.Content = summarize(rec.Content)
			if err := e.store.Update(ctx, rec); err != nil {
				return fmt.Errorf("%w: summarize %s: %v", ErrStorage, rec.ID, err)
			}

		case StrengthLow:
			e.stats.LowStrengthArchived++
			if rec.Archived {
				continue
			}
			rec.Archived = true
			if rec.Tier < types.Tier3 {
				rec.Tier++
			}
			if err := e.store.Update(ctx, rec); err != nil {
				return fmt.Errorf("%w: archive %s: %v", ErrStorage, rec.ID, err)
			}
			// Archived memories leave active recall, so drop their vectors.
			if e.index != nil {
				e.index.Delete(rec.ID)
			}
		}
	}
	return nil
}

// summarize condenses content deterministically: the head of the text up to
// the rune budget, cut back to the last word boundary, behind the summary
// marker. Lossy for anything over the budget and stable across reruns.
func summarize(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) > summaryBudget {
		runes = runes[:summaryBudget]
		for i := len(runes) - 1; i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				runes = runes[:i]
				break
			}
		}
		return summaryMarker + string(runes) + "..."
	}
	return summaryMarker + string(runes)
}

// SleepCalculateCentrality treats each record's connection list as an
// undirected adjacency and writes back degree centrality normalized by the
// maximum degree observed. The graph collaborator's edges are folded in when
// available.
func (e *Engine) SleepCalculateCentrality(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSleep(); err != nil {
		return err
	}

	records, err := e.store.Query(ctx, types.QueryFilter{CI: e.ci})
	if err != nil {
		return fmt.Errorf("%w: query for centrality: %v", ErrStorage, err)
	}

	// Connections are undirected: a pair listing each other is still one
	// edge, so dedupe unordered pairs before counting degrees.
	edges := make(map[[2]string]struct{})
	for _, rec := range records {
		for _, to := range rec.ConnectedIDs {
			if to == rec.ID {
				continue
			}
			a, b := rec.ID, to
			if b < a {
				a, b = b, a
			}
			edges[[2]string{a, b}] = struct{}{}
		}
	}
	degrees := make(map[string]int, len(records))
	for pair := range edges {
		degrees[pair[0]]++
		degrees[pair[1]]++
	}
	if e.graph != nil {
		edgeDegrees, err := e.graph.Degrees(ctx)
		if err != nil {
			e.logger.Warn("graph degrees unavailable, using record connections", "error", err)
		} else {
			for id, n := range edgeDegrees {
				if n > degrees[id] {
					degrees[id] = n
				}
			}
		}
	}

	maxDegree := 0
	for _, rec := range records {
		if d := degrees[rec.ID]; d > maxDegree {
			maxDegree = d
		}
	}

	for _, rec := range records {
		var centrality float64
		if maxDegree > 0 {
			centrality = float64(degrees[rec.ID]) / float64(maxDegree)
		}
		if centrality == rec.Centrality {
			continue
		}
		rec.Centrality = centrality
		if err := e.store.Update(ctx, rec); err != nil {
			return fmt.Errorf("%w: centrality %s: %v", ErrStorage, rec.ID, err)
		}
		e.stats.CentralityUpdates++
	}
	return nil
}

// SleepExtractPatterns clusters records by content signature and, for each
// cluster at least pattern_min_cluster strong, stores one PATTERN record
// connected to the cluster's members. Returns how many patterns were created;
// zero clusters is success, not an error.
func (e *Engine) SleepExtractPatterns(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireSleep(); err != nil {
		return 0, err
	}

	records, err := e.store.Query(ctx, types.QueryFilter{CI: e.ci})
	if err != nil {
		return 0, fmt.Errorf("%w: query for patterns: %v", ErrStorage, err)
	}

	clusters := make(map[string][]*types.MemoryRecord)
	existing := make(map[string]bool)
	for _, rec := range records {
		if rec.Kind == types.KindPattern {
			existing[rec.Content] = true
			continue
		}
		sig := contentSignature(rec.Content)
		if sig == "" {
			continue
		}
		clusters[sig] = append(clusters[sig], rec)
	}

	signatures := make([]string, 0, len(clusters))
	for sig := range clusters {
		signatures = append(signatures, sig)
	}
	sort.Strings(signatures)

	created := 0
	now := e.now()
	for _, sig := range signatures {
		members := clusters[sig]
		if len(members) < e.cfg.PatternMinCluster {
			continue
		}

		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		sort.Strings(ids)

		content := fmt.Sprintf("Recurring theme across %d memories: %s", len(members), sig)
		if existing[content] {
			continue
		}

		pattern := &types.MemoryRecord{
			ID:             uuid.NewString(),
			CI:             e.ci,
			SessionID:      e.sessionID,
			Kind:           types.KindPattern,
			Content:        content,
			Importance:     ImportanceSignificant,
			ImportanceNote: "extracted during sleep",
			Tier:           types.Tier1,
			CreatedAt:      now,
			LastAccessed:   now,
			ConnectedIDs:   ids,
		}
		if err := e.store.Insert(ctx, pattern); err != nil {
			return created, fmt.Errorf("%w: store pattern: %v", ErrStorage, err)
		}
		if e.graph != nil {
			if err := e.graph.Connect(ctx, pattern.ID, ids); err != nil {
				e.logger.Warn("pattern edge creation failed", "id", pattern.ID, "error", err)
			}
		}
		created++
		e.stats.PatternsExtracted++
	}
	return created, nil
}

// contentSignature reduces content to a deterministic clustering key: the
// three longest distinctive words, alphabetized. Records sharing a signature
// are treated as one theme.
func contentSignature(content string) string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 5 || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	if len(words) == 0 {
		return ""
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	if len(words) > 3 {
		words = words[:3]
	}
	sort.Strings(words)
	return strings.Join(words, " ")
}

// SleepComplete finalizes the sleep phase, copies the accumulated statistics
// into statsOut when non-nil, and returns the engine to WAKE.
func (e *Engine) SleepComplete(statsOut *types.ConsolidationStats) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ModeSleep {
		return fmt.Errorf("%w: not in SLEEP mode", ErrInvalidState)
	}

	now := e.now()
	e.stats.SleepCompleted = now
	e.stats.SleepDuration = now.Sub(e.stats.SleepStarted)
	if statsOut != nil {
		*statsOut = e.stats
	}

	e.mode = ModeWake
	e.sleepProcessed = nil
	e.stats.MemoriesCaptured = 0
	e.stats.ConsciousFormations = 0
	e.stats.SubconsciousFormations = 0
	e.stats.Convergences = 0
	e.stats.WakeStarted = now

	e.logger.Info("sleep consolidation complete",
		"processed", e.stats.MemoriesProcessed,
		"patterns", e.stats.PatternsExtracted,
		"duration", e.stats.SleepDuration)
	return nil
}

// requireSleep must be called with the lock held.
func (e *Engine) requireSleep() error {
	if err := e.requireSession(); err != nil {
		return err
	}
	if e.mode != ModeSleep {
		return fmt.Errorf("%w: operation requires SLEEP mode", ErrInvalidState)
	}
	return nil
}

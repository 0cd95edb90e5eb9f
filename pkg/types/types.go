package types

import "time"

// Kind categorizes a memory record by how the CI formed it.
type Kind string

const (
	KindExperience Kind = "experience"
	KindKnowledge  Kind = "knowledge"
	KindReflection Kind = "reflection"
	KindPattern    Kind = "pattern"
	KindGoal       Kind = "goal"
	KindDecision   Kind = "decision"
)

// Tier identifies which storage tier holds a record.
type Tier int

const (
	Tier1 Tier = 1 // raw recordings (days to weeks)
	Tier2 Tier = 2 // sleep digests (weeks to months)
	Tier3 Tier = 3 // pattern summaries (months to years)
)

// MemoryRecord is one persisted unit of experience, knowledge or reflection.
type MemoryRecord struct {
	ID        string `json:"id"`
	CI        string `json:"ci"`
	SessionID string `json:"session_id"`
	Kind      Kind   `json:"kind"`
	Content   string `json:"content"`
	Response  string `json:"response,omitempty"`

	Importance     float64 `json:"importance"`
	ImportanceNote string  `json:"importance_note,omitempty"`

	Tier     Tier `json:"tier"`
	Archived bool `json:"archived"`

	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int       `json:"access_count"`

	EmotionIntensity float64 `json:"emotion_intensity,omitempty"`
	EmotionKind      string  `json:"emotion_kind,omitempty"`

	MarkedImportant   bool `json:"marked_important,omitempty"`
	MarkedForgettable bool `json:"marked_forgettable,omitempty"`

	ConnectedIDs []string `json:"connected_ids,omitempty"`
	Centrality   float64  `json:"centrality"`

	Personal     bool       `json:"personal,omitempty"`
	NoArchive    bool       `json:"no_archive,omitempty"`
	Collection   string     `json:"collection,omitempty"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
	ReviewCount  int        `json:"review_count,omitempty"`
}

// QueryFilter narrows a storage query. Zero values mean "no constraint".
type QueryFilter struct {
	CI            string    `json:"ci"`
	SessionID     string    `json:"session_id,omitempty"`
	Kind          Kind      `json:"kind,omitempty"`
	Since         time.Time `json:"since,omitempty"`
	Until         time.Time `json:"until,omitempty"`
	MinImportance float64   `json:"min_importance,omitempty"`
	Tier          Tier      `json:"tier,omitempty"`
	Archived      *bool     `json:"archived,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// StoreStats summarizes storage usage for one CI.
type StoreStats struct {
	TotalRecords    int64     `json:"total_records"`
	Tier1Records    int64     `json:"tier1_records"`
	Tier2Records    int64     `json:"tier2_records"`
	Tier3Records    int64     `json:"tier3_records"`
	ArchivedRecords int64     `json:"archived_records"`
	BytesUsed       int64     `json:"bytes_used"`
	OldestMemory    time.Time `json:"oldest_memory,omitempty"`
	NewestMemory    time.Time `json:"newest_memory,omitempty"`
}

// BreathSnapshot is the ambient-awareness context returned by a breath.
type BreathSnapshot struct {
	UnreadMessages     int           `json:"unread_messages"`
	CheckpointAge      time.Duration `json:"checkpoint_age"`
	NeedsConsolidation bool          `json:"needs_consolidation"`
	SampledAt          time.Time     `json:"sampled_at"`
}

// ConsolidationStats accumulates counters across one wake/sleep cycle.
type ConsolidationStats struct {
	// Wake mode
	MemoriesCaptured       int `json:"memories_captured"`
	ConsciousFormations    int `json:"conscious_formations"`
	SubconsciousFormations int `json:"subconscious_formations"`
	Convergences           int `json:"convergences"`

	// Sleep mode
	MemoriesProcessed        int `json:"memories_processed"`
	HighStrengthPreserved    int `json:"high_strength_preserved"`
	MediumStrengthSummarized int `json:"medium_strength_summarized"`
	LowStrengthArchived      int `json:"low_strength_archived"`
	PatternsExtracted        int `json:"patterns_extracted"`
	CentralityUpdates        int `json:"centrality_updates"`

	WakeStarted    time.Time     `json:"wake_started,omitempty"`
	SleepStarted   time.Time     `json:"sleep_started,omitempty"`
	SleepCompleted time.Time     `json:"sleep_completed,omitempty"`
	SleepDuration  time.Duration `json:"sleep_duration"`
}

// SessionInfo reports the state of the currently running session.
type SessionInfo struct {
	CI            string    `json:"ci"`
	SessionID     string    `json:"session_id"`
	StartedAt     time.Time `json:"started_at"`
	Turn          int       `json:"turn"`
	MemoriesAdded int       `json:"memories_added"`
	Active        bool      `json:"active"`
	LastActivity  time.Time `json:"last_activity,omitempty"`
}

// SearchResult is one ranked hit from hybrid or keyword search.
type SearchResult struct {
	Record       MemoryRecord `json:"record"`
	Relevance    float64      `json:"relevance"`
	FromKeyword  bool         `json:"from_keyword"`
	FromSemantic bool         `json:"from_semantic"`
}

// MetadataPatch carries optional curation updates; nil fields are untouched.
type MetadataPatch struct {
	Personal   *bool   `json:"personal,omitempty"`
	NoArchive  *bool   `json:"no_archive,omitempty"`
	Collection *string `json:"collection,omitempty"`
}

// Empty reports whether the patch carries no updates at all.
func (p MetadataPatch) Empty() bool {
	return p.Personal == nil && p.NoArchive == nil && p.Collection == nil
}

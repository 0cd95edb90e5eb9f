package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xiy/engram-mcp/pkg/types"
)

// ToolDefinition models MCP tool metadata.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "session_start",
			Description: "Start a memory session for a CI. One active session per server.",
			InputSchema: jsonSchema(map[string]any{
				"ci": propString("Owner identifier for the session."),
			}, []string{"ci"}),
		},
		{
			Name:        "session_end",
			Description: "End the active session: final breath, digest write, auto-consolidation.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "session_info",
			Description: "Report the state of the active session.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "turn_begin",
			Description: "Begin a new interaction turn, clearing the turn memory set.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "turn_end",
			Description: "End the current interaction turn.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "turn_memories",
			Description: "List the IDs of memories formed during the current turn.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "session_memories",
			Description: "List the IDs of every memory formed during the session.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "breathe",
			Description: "Take an ambient-awareness breath. Rate-limited unless forced.",
			InputSchema: jsonSchema(map[string]any{
				"forced": propBoolean("Sample now even inside the rate-limit window."),
			}, nil),
		},
		{
			Name:        "set_breath_interval",
			Description: "Change the breathing rate limit. Minimum one second.",
			InputSchema: jsonSchema(map[string]any{
				"seconds": propNumber("Seconds between unforced breaths."),
			}, []string{"seconds"}),
		},
		{
			Name:        "remember",
			Description: "Store an experience. why is a qualitative importance phrase (trivial/routine/interesting/significant/critical).",
			InputSchema: jsonSchema(map[string]any{
				"thought": propString("What to remember."),
				"why":     propString("Why it matters; maps to numeric importance."),
			}, []string{"thought"}),
		},
		{
			Name:        "learn",
			Description: "Store a piece of knowledge at significant importance.",
			InputSchema: jsonSchema(map[string]any{
				"knowledge": propString("What was learned."),
			}, []string{"knowledge"}),
		},
		{
			Name:        "reflect",
			Description: "Store a reflection at significant importance.",
			InputSchema: jsonSchema(map[string]any{
				"reflection": propString("The reflection."),
			}, []string{"reflection"}),
		},
		{
			Name:        "decide",
			Description: "Store a decision with its mandatory reasoning.",
			InputSchema: jsonSchema(map[string]any{
				"decision":  propString("The decision taken."),
				"reasoning": propString("Why it was taken."),
			}, []string{"decision", "reasoning"}),
		},
		{
			Name:        "notice_pattern",
			Description: "Store an observed recurring pattern.",
			InputSchema: jsonSchema(map[string]any{
				"pattern": propString("The pattern noticed."),
			}, []string{"pattern"}),
		},
		{
			Name:        "remember_forever",
			Description: "Store an experience at critical importance, exempt from archival.",
			InputSchema: jsonSchema(map[string]any{
				"thought": propString("What to keep permanently."),
			}, []string{"thought"}),
		},
		{
			Name:        "ok_to_forget",
			Description: "Store an experience volunteered for fading.",
			InputSchema: jsonSchema(map[string]any{
				"thought": propString("What may fade."),
			}, []string{"thought"}),
		},
		{
			Name:        "in_response_to",
			Description: "Store a thought connected to an earlier memory.",
			InputSchema: jsonSchema(map[string]any{
				"previous_id": propString("ID of the memory being responded to."),
				"thought":     propString("The follow-on thought."),
			}, []string{"previous_id", "thought"}),
		},
		{
			Name:        "auto_capture",
			Description: "Scan text for significance markers and store it when one hits. Never errors on a miss.",
			InputSchema: jsonSchema(map[string]any{
				"text": propString("Free text to scan."),
			}, []string{"text"}),
		},
		{
			Name:        "sleep_begin",
			Description: "Enter sleep consolidation. Invalid while already asleep.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "sleep_route_by_strength",
			Description: "Route every memory by strength: preserve HIGH, condense MEDIUM, archive LOW.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "sleep_calculate_centrality",
			Description: "Recompute normalized graph centrality for every memory.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "sleep_extract_patterns",
			Description: "Cluster similar memories and store a PATTERN record per recurring theme.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "sleep_complete",
			Description: "Finish sleep consolidation and return to wake mode with the cycle's statistics.",
			InputSchema: jsonSchema(map[string]any{}, nil),
		},
		{
			Name:        "recall_about",
			Description: "Hybrid keyword + semantic recall over recent memories.",
			InputSchema: jsonSchema(map[string]any{
				"topic": propString("Topic to recall."),
			}, []string{"topic"}),
		},
		{
			Name:        "recent_thoughts",
			Description: "Return the most recent memories, newest first.",
			InputSchema: jsonSchema(map[string]any{
				"count": propNumber("How many to return."),
			}, nil),
		},
		{
			Name:        "update_metadata",
			Description: "Patch a memory's curation metadata. At least one field required.",
			InputSchema: jsonSchema(map[string]any{
				"id":         propString("Memory ID."),
				"personal":   propBoolean("Mark as personal."),
				"no_archive": propBoolean("Exempt from archival."),
				"collection": propString("Collection label."),
			}, []string{"id"}),
		},
		{
			Name:        "revise_content",
			Description: "Replace a memory's content text.",
			InputSchema: jsonSchema(map[string]any{
				"id":      propString("Memory ID."),
				"content": propString("Replacement content."),
			}, []string{"id", "content"}),
		},
		{
			Name:        "review",
			Description: "Mark a memory as consciously revisited.",
			InputSchema: jsonSchema(map[string]any{
				"id": propString("Memory ID."),
			}, []string{"id"}),
		},
	}
}

func (s *Server) handleToolCall(ctx context.Context, params json.RawMessage) (map[string]any, error) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid tools/call params: %w", err)
	}

	args := func(v any) error {
		if len(p.Arguments) == 0 {
			return nil
		}
		if err := json.Unmarshal(p.Arguments, v); err != nil {
			return fmt.Errorf("invalid %s arguments: %w", p.Name, err)
		}
		return nil
	}

	switch p.Name {
	case "session_start":
		var in struct {
			CI string `json:"ci"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		sessionID, err := s.eng.StartSession(ctx, in.CI)
		if err != nil {
			return nil, err
		}
		return toolSuccess(map[string]any{"session_id": sessionID})

	case "session_end":
		if err := s.eng.EndSession(ctx); err != nil {
			return nil, err
		}
		return toolSuccess(map[string]any{"ended": true})

	case "session_info":
		return toolSuccess(s.eng.SessionInfo())

	case "turn_begin":
		turn, err := s.eng.BeginTurn()
		if err != nil {
			return nil, err
		}
		return toolSuccess(map[string]any{"turn": turn})

	case "turn_end":
		if err := s.eng.EndTurn(); err != nil {
			return nil, err
		}
		return toolSuccess(map[string]any{"ended": true})

	case "turn_memories":
		ids, err := s.eng.TurnMemories()
		if err != nil {
			return nil, err
		}
		return toolSuccess(map[string]any{"ids": ids})

	case "session_memories":
		ids, err := s.eng.SessionMemories(ctx)
		if err != nil {
			return nil, err
		}
		return toolSuccess(map[string]any{"ids": ids})

	case "breathe":
		var in struct {
			Forced bool `json:"forced"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		snap, err := s.eng.Breathe(ctx, in.Forced)
		if err != nil {
			return nil, err
		}
		return toolSuccess(snap)

	case "set_breath_interval":
		var in struct {
			Seconds float64 `json:"seconds"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		d := time.Duration(in.Seconds * float64(time.Second))
		if err := s.eng.SetBreathInterval(d); err != nil {
			return nil, err
		}
		return toolSuccess(map[string]any{"interval": d.String()})

	case "remember":
		var in struct {
			Thought string `json:"thought"`
			Why     string `json:"why"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.Remember(ctx, in.Thought, in.Why)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "learn":
		var in struct {
			Knowledge string `json:"knowledge"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.Learn(ctx, in.Knowledge)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "reflect":
		var in struct {
			Reflection string `json:"reflection"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.Reflect(ctx, in.Reflection)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "decide":
		var in struct {
			Decision  string `json:"decision"`
			Reasoning string `json:"reasoning"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.Decide(ctx, in.Decision, in.Reasoning)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "notice_pattern":
		var in struct {
			Pattern string `json:"pattern"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.NoticePattern(ctx, in.Pattern)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "remember_forever":
		var in struct {
			Thought string `json:"thought"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.RememberForever(ctx, in.Thought)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "ok_to_forget":
		var in struct {
			Thought string `json:"thought"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.OkToForget(ctx, in.Thought)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "in_response_to":
		var in struct {
			PreviousID string `json:"previous_id"`
			Thought    string `json:"thought"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.InResponseTo(ctx, in.PreviousID, in.Thought)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "auto_capture":
		var in struct {
			Text string `json:"text"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec := s.eng.AutoCapture(ctx, in.Text)
		if rec == nil {
			return toolSuccess(map[string]any{"captured": false})
		}
		return toolSuccess(map[string]any{"captured": true, "record": rec})

	case "sleep_begin":
		if err := s.eng.SleepBegin(); err != nil {
			return nil, err
		}
		return toolSuccess(map[string]any{"mode": s.eng.Mode().String()})

	case "sleep_route_by_strength":
		if err := s.eng.SleepRouteByStrength(ctx); err != nil {
			return nil, err
		}
		return toolSuccess(s.eng.Stats())

	case "sleep_calculate_centrality":
		if err := s.eng.SleepCalculateCentrality(ctx); err != nil {
			return nil, err
		}
		return toolSuccess(s.eng.Stats())

	case "sleep_extract_patterns":
		created, err := s.eng.SleepExtractPatterns(ctx)
		if err != nil {
			return nil, err
		}
		return toolSuccess(map[string]any{"patterns_created": created})

	case "sleep_complete":
		var stats types.ConsolidationStats
		if err := s.eng.SleepComplete(&stats); err != nil {
			return nil, err
		}
		return toolSuccess(stats)

	case "recall_about":
		var in struct {
			Topic string `json:"topic"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		results, err := s.eng.RecallAbout(ctx, in.Topic)
		if err != nil {
			return nil, err
		}
		return toolSuccess(results)

	case "recent_thoughts":
		var in struct {
			Count int `json:"count"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		records, err := s.eng.RecentThoughts(ctx, in.Count)
		if err != nil {
			return nil, err
		}
		return toolSuccess(records)

	case "update_metadata":
		var in struct {
			ID         string  `json:"id"`
			Personal   *bool   `json:"personal"`
			NoArchive  *bool   `json:"no_archive"`
			Collection *string `json:"collection"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.UpdateMetadata(ctx, in.ID, types.MetadataPatch{
			Personal:   in.Personal,
			NoArchive:  in.NoArchive,
			Collection: in.Collection,
		})
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "revise_content":
		var in struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.ReviseContent(ctx, in.ID, in.Content)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	case "review":
		var in struct {
			ID string `json:"id"`
		}
		if err := args(&in); err != nil {
			return nil, err
		}
		rec, err := s.eng.Review(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		return toolSuccess(rec)

	default:
		return nil, fmt.Errorf("unknown tool %q", p.Name)
	}
}

func jsonSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func propString(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func propNumber(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func propBoolean(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/xiy/engram-mcp/pkg/types"
)

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func TestUpdateMetadata(t *testing.T) {
	t.Parallel()
	e, st, _ := newTestEngine()
	startSession(t, e, "apollo")
	ctx := context.Background()

	rec, err := e.Remember(ctx, "my partner's birthday is in June", "significant")
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	updated, err := e.UpdateMetadata(ctx, rec.ID, types.MetadataPatch{
		Personal:   boolPtr(true),
		Collection: strPtr("relationships"),
	})
	if err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if !updated.Personal || updated.Collection != "relationships" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.NoArchive {
		t.Error("unset field changed")
	}

	stored := st.get(rec.ID)
	if !stored.Personal || stored.Collection != "relationships" {
		t.Errorf("stored = %+v, patch not persisted", stored)
	}
}

func TestUpdateMetadata_Validation(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine()
	startSession(t, e, "apollo")
	ctx := context.Background()

	if _, err := e.UpdateMetadata(ctx, "any-id", types.MetadataPatch{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty patch: err = %v, want ErrInvalidInput", err)
	}
	patch := types.MetadataPatch{Personal: boolPtr(true)}
	if _, err := e.UpdateMetadata(ctx, "no-such-id", patch); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestReviseContent(t *testing.T) {
	t.Parallel()
	e, st, _ := newTestEngine()
	startSession(t, e, "apollo")
	ctx := context.Background()

	rec, err := e.Remember(ctx, "the bug is in the lexer", "interesting")
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	if _, err := e.ReviseContent(ctx, rec.ID, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty content: err = %v, want ErrInvalidInput", err)
	}

	revised, err := e.ReviseContent(ctx, rec.ID, "the bug was actually in the parser")
	if err != nil {
		t.Fatalf("ReviseContent: %v", err)
	}
	if revised.Content != "the bug was actually in the parser" {
		t.Errorf("content = %q", revised.Content)
	}
	if st.get(rec.ID).Content != revised.Content {
		t.Error("revision not persisted")
	}
}

func TestReview(t *testing.T) {
	t.Parallel()
	e, st, _ := newTestEngine()
	startSession(t, e, "apollo")
	ctx := context.Background()

	rec, err := e.Remember(ctx, "a thought worth revisiting", "interesting")
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	reviewed, err := e.Review(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if reviewed.ReviewCount != 1 || reviewed.LastReviewed == nil {
		t.Errorf("reviewed = %+v, want review bookkeeping", reviewed)
	}
	if reviewed.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", reviewed.AccessCount)
	}

	if _, err := e.Review(ctx, rec.ID); err != nil {
		t.Fatalf("second Review: %v", err)
	}
	if st.get(rec.ID).ReviewCount != 2 {
		t.Errorf("review count = %d, want 2", st.get(rec.ID).ReviewCount)
	}

	if _, err := e.Review(ctx, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestCuration_RequiresSession(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine()
	ctx := context.Background()

	if _, err := e.UpdateMetadata(ctx, "id", types.MetadataPatch{Personal: boolPtr(true)}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("UpdateMetadata: err = %v, want ErrInvalidState", err)
	}
	if _, err := e.ReviseContent(ctx, "id", "content"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ReviseContent: err = %v, want ErrInvalidState", err)
	}
	if _, err := e.Review(ctx, "id"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Review: err = %v, want ErrInvalidState", err)
	}
}

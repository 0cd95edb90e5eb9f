package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreathe_CachesWithinInterval(t *testing.T) {
	t.Parallel()
	ambient := &fakeAmbient{unread: 3}
	e, _, clock := newTestEngine(WithAmbient(ambient, ambient))
	startSession(t, e, "apollo")
	ctx := context.Background()

	first, err := e.Breathe(ctx, false)
	if err != nil {
		t.Fatalf("Breathe: %v", err)
	}

	// Collaborator state changes, but the cache is younger than the interval.
	ambient.unread = 9
	clock.Advance(5 * time.Second)
	second, err := e.Breathe(ctx, false)
	if err != nil {
		t.Fatalf("Breathe: %v", err)
	}
	if second != first {
		t.Errorf("snapshot changed within interval: %+v vs %+v", second, first)
	}
	if second.UnreadMessages != 3 {
		t.Errorf("unread = %d, want cached 3", second.UnreadMessages)
	}
}

func TestBreathe_SamplesAfterInterval(t *testing.T) {
	t.Parallel()
	ambient := &fakeAmbient{unread: 3}
	e, _, clock := newTestEngine(WithAmbient(ambient, ambient))
	startSession(t, e, "apollo")
	ctx := context.Background()

	if _, err := e.Breathe(ctx, false); err != nil {
		t.Fatalf("Breathe: %v", err)
	}

	ambient.unread = 9
	clock.Advance(31 * time.Second)
	snap, err := e.Breathe(ctx, false)
	if err != nil {
		t.Fatalf("Breathe: %v", err)
	}
	if snap.UnreadMessages != 9 {
		t.Errorf("unread = %d, want fresh 9", snap.UnreadMessages)
	}
}

func TestBreathe_ForcedIgnoresInterval(t *testing.T) {
	t.Parallel()
	ambient := &fakeAmbient{unread: 3}
	e, _, clock := newTestEngine(WithAmbient(ambient, ambient))
	startSession(t, e, "apollo")
	ctx := context.Background()

	if _, err := e.Breathe(ctx, false); err != nil {
		t.Fatalf("Breathe: %v", err)
	}

	ambient.unread = 9
	clock.Advance(time.Second)
	snap, err := e.Breathe(ctx, true)
	if err != nil {
		t.Fatalf("Breathe forced: %v", err)
	}
	if snap.UnreadMessages != 9 {
		t.Errorf("unread = %d, want fresh 9", snap.UnreadMessages)
	}
}

func TestBreathe_FailureReturnsLastGoodSnapshot(t *testing.T) {
	t.Parallel()
	ambient := &fakeAmbient{unread: 3}
	e, _, clock := newTestEngine(WithAmbient(ambient, ambient))
	startSession(t, e, "apollo")
	ctx := context.Background()

	good, err := e.Breathe(ctx, false)
	if err != nil {
		t.Fatalf("Breathe: %v", err)
	}

	ambient.err = errors.New("collaborator down")
	clock.Advance(time.Minute)
	snap, err := e.Breathe(ctx, false)
	if err != nil {
		t.Fatalf("Breathe during outage: %v", err)
	}
	if snap != good {
		t.Errorf("outage snapshot = %+v, want last good %+v", snap, good)
	}
}

func TestBreathe_NoSession(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine()
	if _, err := e.Breathe(context.Background(), false); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestBreathe_NeedsConsolidationWatermark(t *testing.T) {
	t.Parallel()
	e, _, clock := newTestEngine()
	startSession(t, e, "apollo")
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		if _, err := e.Remember(ctx, "filler thought", "routine"); err != nil {
			t.Fatalf("Remember: %v", err)
		}
	}

	clock.Advance(time.Minute)
	snap, err := e.Breathe(ctx, true)
	if err != nil {
		t.Fatalf("Breathe: %v", err)
	}
	if !snap.NeedsConsolidation {
		t.Error("NeedsConsolidation = false at watermark")
	}
}

func TestSetBreathInterval(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine()

	if err := e.SetBreathInterval(500 * time.Millisecond); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("sub-second interval: err = %v, want ErrInvalidInput", err)
	}
	if err := e.SetBreathInterval(2 * time.Second); err != nil {
		t.Fatalf("SetBreathInterval: %v", err)
	}
	if got := e.BreathInterval(); got != 2*time.Second {
		t.Errorf("interval = %v, want 2s", got)
	}
}

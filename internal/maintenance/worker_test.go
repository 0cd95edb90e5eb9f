package maintenance

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type countingArchiver struct {
	calls atomic.Int64
}

func (c *countingArchiver) ArchiveAged(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestStart_RunsUntilCancelled(t *testing.T) {
	t.Parallel()

	archiver := &countingArchiver{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Start(ctx, log.New(io.Discard), 10*time.Millisecond, archiver)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for archiver.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("archiver not invoked twice within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

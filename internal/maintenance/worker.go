// Package maintenance runs the periodic wake-mode upkeep pass while the
// server is up: aged low-value memories drift into deeper tiers without
// waiting for a sleep cycle.
package maintenance

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Archiver represents the upkeep behavior needed by the worker.
type Archiver interface {
	ArchiveAged(ctx context.Context) (int, error)
}

// Start runs a periodic archive pass until the context is cancelled.
func Start(ctx context.Context, logger *log.Logger, interval time.Duration, archiver Archiver) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := archiver.ArchiveAged(ctx)
			if err != nil {
				logger.Warn("maintenance archive pass failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("maintenance archived aged memories", "count", n)
			}
		}
	}
}

package storage

import (
	"context"
	"time"

	"tasklist/internal/logger"
)

// RunSweeper периодически вызывает Sweep, пока не отменен ctx
func RunSweeper(ctx context.Context, s Storage, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				logger.Info(ctx, "Idle sessions evicted", "count", n, "remaining", s.Len())
			}
		}
	}
}

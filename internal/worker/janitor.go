package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner drops expired in-memory state.
type Pruner interface {
	Prune()
}

// StartJanitor prunes every target on interval until ctx is done. It returns
// a channel closed once the loop exits.
func StartJanitor(ctx context.Context, interval time.Duration, logger *zap.Logger, targets ...Pruner) <-chan struct{} {
	done := make(chan struct{})
	if len(targets) == 0 || interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, target := range targets {
					target.Prune()
				}
				logger.Debug("pruned in-memory state", zap.Int("targets", len(targets)))
			}
		}
	}()
	return done
}

package loan

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartSweeper runs the overdue sweep on a fixed interval until ctx is
// cancelled. One sweep runs immediately so a restart doesn't leave overdue
// loans unmarked for a full interval.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration, logger *zap.SugaredLogger) {
	go func() {
		s.sweepOnce(ctx, logger)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(ctx, logger)
			}
		}
	}()
}

func (s *Service) sweepOnce(ctx context.Context, logger *zap.SugaredLogger) {
	n, err := s.SweepOverdue(ctx)
	if err != nil {
		logger.Warnw("overdue sweep failed", "err", err)
		return
	}
	if n > 0 {
		logger.Infow("loans marked overdue", "count", n)
	}
}

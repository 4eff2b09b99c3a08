package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelfline/shelfline/internal/repository"
)

const DefaultSweepInterval = time.Minute

// Sweeper eagerly flips overdue active goals to expired on a schedule.
// It exists purely to keep stored status labels fresh for goals nobody
// queries: correctness never depends on it, because reads compute the
// effective status and the engine qualifies every select by deadline.
type Sweeper struct {
	repo     repository.GoalRepository
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(repo repository.GoalRepository, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		repo:     repo,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("expiration sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("expiration sweeper stopped")
			return
		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}

// SweepOnce marks every overdue active goal expired and returns how many
// rows were flipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpireOverdue(ctx, s.now().UTC())
	if err != nil {
		slog.Error("sweeper failed to expire goals", "error", err)
		return 0, err
	}

	if count > 0 {
		slog.Info("expired overdue goals", "count", count)
	}

	return count, nil
}

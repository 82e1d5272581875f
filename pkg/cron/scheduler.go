// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/fstrauf/txapp/internal/domain/insights"
)

// ActiveUserLister identifies users worth precomputing insights for.
type ActiveUserLister interface {
	ListActiveUserIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	users    ActiveUserLister
	insights *insights.Service
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(users ActiveUserLister, insightsSvc *insights.Service, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:     c,
		users:    users,
		insights: insightsSvc,
		logger:   logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Insights cache warm: runs daily at 3:00 AM so morning dashboard loads
	// hit precomputed results.
	_, err := s.cron.AddFunc("0 3 * * *", s.warmInsightsCache)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the insights cache warm (for admin use).
func (s *Scheduler) RunNow() {
	go s.warmInsightsCache()
}

func (s *Scheduler) warmInsightsCache() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	s.logger.Info("starting nightly insights cache warm")

	cutoff := time.Now().UTC().AddDate(0, 0, -90)
	userIDs, err := s.users.ListActiveUserIDs(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to list active users", slog.Any("error", err))
		return
	}

	s.insights.WarmCache(ctx, userIDs)

	s.logger.Info("nightly insights cache warm completed",
		slog.Int("users", len(userIDs)),
	)
}

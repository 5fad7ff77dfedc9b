package scheduler

import (
	"context"
	"time"

	"fleet-backend/internal/dates"
	"fleet-backend/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Recalculator recomputes the stored statistics of one day.
type Recalculator interface {
	CalculateAndUpdate(ctx context.Context, date string) (models.DailyStatistics, error)
}

type Scheduler struct {
	cron    *cron.Cron
	stats   Recalculator
	logger  *zap.Logger
	baseCtx context.Context
	now     func() time.Time
}

func New(stats Recalculator, logger *zap.Logger, baseCtx context.Context) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		stats:   stats,
		logger:  logger.Named("scheduler"),
		baseCtx: baseCtx,
		now:     time.Now,
	}
}

// Schedule registers the daily recompute under a six-field cron spec.
func (s *Scheduler) Schedule(spec string) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		s.RecomputeRecent(s.baseCtx)
	})
}

// RecomputeRecent refreshes yesterday and today. Late income entries for
// yesterday are picked up here; failures are logged and left for the next run.
func (s *Scheduler) RecomputeRecent(ctx context.Context) int {
	today := s.now()
	done := 0
	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		date := dates.Format(day)
		stat, err := s.stats.CalculateAndUpdate(ctx, date)
		if err != nil {
			s.logger.Error("scheduled recompute failed", zap.String("date", date), zap.Error(err))
			continue
		}
		done++
		s.logger.Info("scheduled recompute",
			zap.String("date", date),
			zap.Int("entries", stat.VehicleCount),
		)
	}
	return done
}

func (s *Scheduler) Start() {
	s.logger.Info("cron started")
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("cron stopped")
}

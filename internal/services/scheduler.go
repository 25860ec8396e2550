package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const staleSweepBatch = 200

type SchedulerConfig struct {
	RetentionCron    string
	PendingSweepCron string
	PendingStaleFor  time.Duration
}

// StartScheduler registers the retention purge and the pending conversion sweep and
// starts the cron runner. Stop the returned runner on shutdown.
func StartScheduler(cfg SchedulerConfig, retention *RetentionService, delivery *DeliveryService) (*cron.Cron, error) {
	c := cron.New()

	if retention != nil && cfg.RetentionCron != "" {
		_, err := c.AddFunc(cfg.RetentionCron, func() {
			zap.L().Info("Running scheduled retention purge")
			if _, err := retention.PurgeOldData(context.Background()); err != nil {
				zap.L().Error("Scheduled retention purge failed", zap.Error(err))
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if delivery != nil && cfg.PendingSweepCron != "" {
		_, err := c.AddFunc(cfg.PendingSweepCron, func() {
			if _, err := delivery.SweepPending(context.Background(), cfg.PendingStaleFor, staleSweepBatch); err != nil {
				zap.L().Error("Pending conversion sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			return nil, err
		}
	}

	c.Start()
	zap.L().Info("Scheduler started",
		zap.String("retention", cfg.RetentionCron),
		zap.String("pending_sweep", cfg.PendingSweepCron),
	)
	return c, nil
}

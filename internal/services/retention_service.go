package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"s2s-tracker/internal/metrics"
	"s2s-tracker/internal/models"
)

const DefaultRetentionDays = 365

// RetentionService purges delivery history that is older than the retention window.
// Conversions are never purged.
type RetentionService struct {
	DB      *gorm.DB
	Days    int
	Metrics *metrics.Metrics
}

func NewRetentionService(db *gorm.DB, days int, m *metrics.Metrics) *RetentionService {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &RetentionService{DB: db, Days: days, Metrics: m}
}

// PurgeOldData deletes postback_logs and test_results created before the cutoff and
// returns the number of rows removed per table.
func (s *RetentionService) PurgeOldData(ctx context.Context) (map[string]int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.Days)
	zap.L().Info("Starting retention purge", zap.Int("days", s.Days), zap.Time("cutoff", cutoff))

	purged := map[string]int64{}
	targets := []struct {
		table string
		model interface{}
	}{
		{"postback_logs", &models.PostbackLog{}},
		{"test_results", &models.TestResult{}},
	}

	for _, t := range targets {
		res := s.DB.WithContext(ctx).Where("created_at < ?", cutoff).Delete(t.model)
		if res.Error != nil {
			zap.L().Error("Retention purge error", zap.String("table", t.table), zap.Error(res.Error))
			return purged, fmt.Errorf("purge %s: %w", t.table, res.Error)
		}
		purged[t.table] = res.RowsAffected
		s.Metrics.RetentionPurged.WithLabelValues(t.table).Add(float64(res.RowsAffected))
	}

	zap.L().Info("Retention purge finished",
		zap.Int64("postback_logs", purged["postback_logs"]),
		zap.Int64("test_results", purged["test_results"]),
	)
	return purged, nil
}

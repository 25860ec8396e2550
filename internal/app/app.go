package app

import (
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"s2s-tracker/internal/config"
	"s2s-tracker/internal/handlers"
	"s2s-tracker/internal/metrics"
	"s2s-tracker/internal/services"
)

// Services is the wired service graph shared by the API and worker binaries.
type Services struct {
	Geo          *services.GeoService
	Sender       *services.PostbackSender
	PostbackLogs *services.PostbackLogService
	Conversions  *services.ConversionService
	Settings     *services.SettingsService
	Offers       *services.OfferService
	Delivery     *services.DeliveryService
	Tracking     *services.TrackingService
	Analytics    *services.AnalyticsService
	PostbackTest *services.PostbackTestService
	Retention    *services.RetentionService
	Export       *services.ExportService
}

// NewServices builds every service. cache and queue may be nil.
func NewServices(cfg *config.Config, db *gorm.DB, cache *redis.Client, queue services.RedeliveryEnqueuer, m *metrics.Metrics) *Services {
	s := &Services{}

	var geoCache *redis.Client
	if cfg.GeoCacheEnabled {
		geoCache = cache
	}
	s.Geo = services.NewGeoService(services.NewIPAPIClient(cfg.GeoAPIURL, cfg.GeoTimeout), geoCache, cfg.GeoCacheTTL, m)
	s.Sender = services.NewPostbackSender(m)
	s.PostbackLogs = services.NewPostbackLogService(db)
	s.Conversions = services.NewConversionService(db)
	s.Settings = services.NewSettingsService(db, cfg.PostbackInsecureSkipVerify)
	s.Offers = services.NewOfferService(db)

	s.Delivery = services.NewDeliveryService(s.Sender, s.PostbackLogs, s.Conversions, s.Settings, queue, m)
	s.Tracking = services.NewTrackingService(s.Offers, s.Geo, s.Settings, s.Conversions, s.Delivery, m)
	s.Analytics = services.NewAnalyticsService(db, m)
	s.PostbackTest = services.NewPostbackTestService(db, s.Sender, s.PostbackLogs, s.Settings)
	s.Retention = services.NewRetentionService(db, cfg.RetentionDays, m)
	s.Export = services.NewExportService(s.Analytics)
	return s
}

func (s *Services) Handler() *handlers.Handler {
	return &handlers.Handler{
		Tracking:     s.Tracking,
		Offers:       s.Offers,
		Conversions:  s.Conversions,
		Delivery:     s.Delivery,
		Analytics:    s.Analytics,
		Settings:     s.Settings,
		PostbackLogs: s.PostbackLogs,
		PostbackTest: s.PostbackTest,
		Export:       s.Export,
	}
}

// StartScheduler runs the retention purge and the pending conversion sweep.
func (s *Services) StartScheduler(cfg *config.Config) (*cron.Cron, error) {
	return services.StartScheduler(services.SchedulerConfig{
		RetentionCron:    cfg.RetentionCron,
		PendingSweepCron: cfg.PendingSweepCron,
		PendingStaleFor:  cfg.PendingStaleFor,
	}, s.Retention, s.Delivery)
}

func RedisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func AsynqRedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

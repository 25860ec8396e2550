package app

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"s2s-tracker/internal/config"
	"s2s-tracker/internal/metrics"
)

func TestNewServices(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:app_wiring?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	cfg := &config.Config{
		GeoAPIURL:                  "https://ipapi.co",
		GeoTimeout:                 time.Second,
		GeoCacheTTL:                time.Hour,
		GeoCacheEnabled:            true,
		PostbackInsecureSkipVerify: true,
		RetentionDays:              90,
		RetentionCron:              "0 0 * * *",
		PendingSweepCron:           "*/15 * * * *",
		PendingStaleFor:            10 * time.Minute,
		RedisURL:                   mr.Addr(),
	}

	s := NewServices(cfg, db, cache, nil, metrics.NewNoop())
	assert.Same(t, cache, s.Geo.Cache)
	assert.True(t, s.Settings.ForceInsecureSkipVerify)
	assert.Equal(t, 90, s.Retention.Days)
	assert.Nil(t, s.Delivery.Queue)

	h := s.Handler()
	assert.Same(t, s.Tracking, h.Tracking)
	assert.Same(t, s.Export, h.Export)

	c, err := s.StartScheduler(cfg)
	require.NoError(t, err)
	c.Stop()
	assert.Len(t, c.Entries(), 2)

	cfg.GeoCacheEnabled = false
	assert.Nil(t, NewServices(cfg, db, cache, nil, metrics.NewNoop()).Geo.Cache)

	assert.Equal(t, mr.Addr(), AsynqRedisOpt(cfg).Addr)
	assert.Equal(t, mr.Addr(), RedisOptions(cfg).Addr)
}

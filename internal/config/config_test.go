package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 365, cfg.RetentionDays)
	assert.Equal(t, 10*time.Minute, cfg.PendingStaleFor)
	assert.False(t, cfg.PostbackInsecureSkipVerify)
	assert.Equal(t, "https://ipapi.co", cfg.GeoAPIURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("GEO_API_URL", "http://geo.local/")
	t.Setenv("POSTBACK_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("RETENTION_DAYS", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "http://geo.local", cfg.GeoAPIURL)
	assert.True(t, cfg.PostbackInsecureSkipVerify)
	assert.Equal(t, 30, cfg.RetentionDays)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load()
	assert.Error(t, err)
}

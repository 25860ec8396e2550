package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s2s-tracker/internal/models"
)

func TestRetentionService_PurgeOldData(t *testing.T) {
	db := newTestDB(t)
	old := time.Now().UTC().AddDate(0, 0, -40)

	require.NoError(t, db.Create(&models.PostbackLog{TransactionId: "OLD", Status: models.PostbackStatusSuccess, CreatedAt: old}).Error)
	require.NoError(t, db.Create(&models.PostbackLog{TransactionId: "NEW", Status: models.PostbackStatusSuccess}).Error)
	require.NoError(t, db.Create(&models.TestResult{TestName: "old", CreatedAt: old}).Error)
	createConversion(t, db, "ANCIENT", withCreatedAt(old))

	purged, err := NewRetentionService(db, 30, nil).PurgeOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"postback_logs": 1, "test_results": 1}, purged)

	var logs []models.PostbackLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "NEW", logs[0].TransactionId)

	var conversions int64
	db.Model(&models.Conversion{}).Count(&conversions)
	assert.Equal(t, int64(1), conversions)
}

func TestNewRetentionService_DefaultWindow(t *testing.T) {
	assert.Equal(t, DefaultRetentionDays, NewRetentionService(nil, 0, nil).Days)
}

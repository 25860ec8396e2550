package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartScheduler(t *testing.T) {
	db := newTestDB(t)
	retention := NewRetentionService(db, 30, nil)

	c, err := StartScheduler(SchedulerConfig{RetentionCron: "0 3 * * *", PendingSweepCron: "*/5 * * * *"}, retention, &DeliveryService{})
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 2)

	c2, err := StartScheduler(SchedulerConfig{RetentionCron: "0 3 * * *"}, retention, nil)
	require.NoError(t, err)
	defer c2.Stop()
	assert.Len(t, c2.Entries(), 1)

	_, err = StartScheduler(SchedulerConfig{RetentionCron: "not a schedule"}, retention, nil)
	assert.Error(t, err)
}

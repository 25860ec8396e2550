package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"s2s-tracker/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Offer{},
		&models.Conversion{},
		&models.PostbackLog{},
		&models.Setting{},
		&models.TestResult{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func createOffer(t *testing.T, db *gorm.DB, title string, payout float64, status string) models.Offer {
	t.Helper()
	offer := models.Offer{Title: title, Type: models.OfferTypeSurvey, Payout: payout, Status: status}
	require.NoError(t, db.Create(&offer).Error)
	return offer
}

type conversionOpt func(*models.Conversion)

func createConversion(t *testing.T, db *gorm.DB, txn string, opts ...conversionOpt) models.Conversion {
	t.Helper()
	c := models.Conversion{
		TransactionId: txn,
		Name:          "Jane",
		Email:         "jane@example.com",
		IPAddress:     "203.0.113.7",
		Country:       "US",
		Device:        "Desktop",
		OS:            "Windows 10",
		Browser:       "Chrome",
		ISP:           "Example ISP",
		Goal:          "conversion",
		Payout:        1.5,
		Status:        models.ConversionStatusConverted,
		CreatedAt:     time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func withStatus(status string) conversionOpt {
	return func(c *models.Conversion) { c.Status = status }
}

func withCreatedAt(at time.Time) conversionOpt {
	return func(c *models.Conversion) { c.CreatedAt = at.UTC() }
}

func withOffer(id uint) conversionOpt {
	return func(c *models.Conversion) { c.OfferId = &id }
}

func strPtr(s string) *string { return &s }

package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"s2s-tracker/internal/config"
	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/models"
)

var DB *gorm.DB

// Dialector picks the gorm driver for cfg.DBDriver.
func Dialector(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBSSLMode,
		)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.DBPath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

// Connect opens the pool and stores it in DB.
func Connect(cfg *config.Config) {
	dialector, err := Dialector(cfg)
	if err != nil {
		zap.L().Fatal("Invalid database configuration", zap.Error(err))
	}

	level := gormlogger.Info
	if cfg.IsProduction() {
		level = gormlogger.Warn
	}

	for i := 0; i < 5; i++ {
		DB, err = gorm.Open(dialector, &gorm.Config{
			Logger:  logger.NewGormLogger(level, 200*time.Millisecond),
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			break
		}
		zap.L().Warn("Database not ready, retrying", zap.Int("retry", i+1), zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}

	sqlDB, err := DB.DB()
	if err != nil {
		zap.L().Fatal("Failed to get sql.DB from gorm", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	zap.L().Info("Database connection established", zap.String("driver", cfg.DBDriver))
}

// AutoMigrate creates or updates every table the tracker owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Offer{},
		&models.Conversion{},
		&models.PostbackLog{},
		&models.Setting{},
		&models.TestResult{},
	)
}

func Migrate() {
	if err := AutoMigrate(DB); err != nil {
		zap.L().Fatal("Failed to migrate database", zap.Error(err))
	}
	zap.L().Info("Database migration completed")
}

var defaultOffers = []models.Offer{
	{
		Title:       "Win $1000 Cash Prize!",
		Description: "Enter our exclusive sweepstakes and win amazing cash prizes! Complete the form to participate.",
		Type:        models.OfferTypeSweepstakes,
		Payout:      1.50,
	},
	{
		Title:       "Quick Survey - $5 Reward",
		Description: "Take a quick 5-minute survey and earn $5 instantly. Share your opinions and get rewarded.",
		Type:        models.OfferTypeSurvey,
		Payout:      0.75,
	},
	{
		Title:       "Download App - Get $3",
		Description: "Download our featured app and get $3 credited to your account. Simple and fast!",
		Type:        models.OfferTypeDownload,
		Payout:      2.25,
	},
	{
		Title:       "Free Trial - Premium Service",
		Description: "Start your free trial of our premium service. Cancel anytime, no commitment required.",
		Type:        models.OfferTypeSubscription,
		Payout:      4.00,
	},
	{
		Title:       "Gift Card Giveaway",
		Description: "Win a $50 gift card to your favorite store. Enter now for your chance to win!",
		Type:        models.OfferTypeSweepstakes,
		Payout:      2.00,
	},
}

// Seed inserts default settings and, on an empty catalog, the starter offers.
func Seed(db *gorm.DB) error {
	settings := make([]models.Setting, 0, len(models.DefaultSettings))
	for k, v := range models.DefaultSettings {
		settings = append(settings, models.Setting{SettingKey: k, SettingValue: v})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings).Error; err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	var offers int64
	if err := db.Model(&models.Offer{}).Count(&offers).Error; err != nil {
		return fmt.Errorf("count offers: %w", err)
	}
	if offers > 0 {
		return nil
	}

	seed := make([]models.Offer, len(defaultOffers))
	copy(seed, defaultOffers)
	for i := range seed {
		seed[i].Status = models.OfferStatusActive
	}
	if err := db.Create(&seed).Error; err != nil {
		return fmt.Errorf("seed offers: %w", err)
	}
	return nil
}

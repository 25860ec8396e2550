package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/models"
)

const maxPostbackTimeout = 60 * time.Second

// PostbackConfig is the postback-related settings read once per request.
type PostbackConfig struct {
	URL                string
	TransactionParam   string
	GoalParam          string
	PayoutParam        string
	Method             string
	Currency           string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

type SettingsService struct {
	DB *gorm.DB
	// ForceInsecureSkipVerify comes from POSTBACK_INSECURE_SKIP_VERIFY and overrides the
	// stored setting when true.
	ForceInsecureSkipVerify bool
}

func NewSettingsService(db *gorm.DB, forceInsecureSkipVerify bool) *SettingsService {
	return &SettingsService{DB: db, ForceInsecureSkipVerify: forceInsecureSkipVerify}
}

// Get returns the stored value for key, or def when the key is missing or unreadable.
func (s *SettingsService) Get(ctx context.Context, key, def string) string {
	var setting models.Setting
	err := s.DB.WithContext(ctx).Where("setting_key = ?", key).Limit(1).Find(&setting).Error
	if err != nil {
		logger.FromContext(ctx).Warn("Get setting error", zap.String("key", key), zap.Error(err))
		return def
	}
	if setting.ID == 0 {
		return def
	}
	return setting.SettingValue
}

func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

// SetMany upserts every pair in one statement.
func (s *SettingsService) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([]models.Setting, 0, len(values))
	for k, v := range values {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if err := ValidateSetting(k, v); err != nil {
			return err
		}
		rows = append(rows, models.Setting{SettingKey: k, SettingValue: v})
	}

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"setting_value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		logger.FromContext(ctx).Error("Save settings error", zap.Error(err))
		return fmt.Errorf("save settings: %w", ErrPersistence)
	}
	return nil
}

// All returns every stored setting layered over the defaults.
func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	if err := s.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]string, len(models.DefaultSettings)+len(rows))
	for k, v := range models.DefaultSettings {
		out[k] = v
	}
	for _, row := range rows {
		out[row.SettingKey] = row.SettingValue
	}
	return out, nil
}

// PostbackConfig snapshots the postback settings with one read. Unreadable settings
// fall back to the defaults.
func (s *SettingsService) PostbackConfig(ctx context.Context) PostbackConfig {
	values, err := s.All(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("Load settings error, using defaults", zap.Error(err))
		values = models.DefaultSettings
	}
	get := func(key string) string {
		if v := strings.TrimSpace(values[key]); v != "" {
			return v
		}
		return models.DefaultSettings[key]
	}

	insecure, _ := strconv.ParseBool(get(models.SettingPostbackInsecureSkipTLS))

	return PostbackConfig{
		URL:                get(models.SettingDefaultPostbackURL),
		TransactionParam:   get(models.SettingTransactionParam),
		GoalParam:          get(models.SettingGoalParam),
		PayoutParam:        get(models.SettingPayoutParam),
		Currency:           get(models.SettingCurrency),
		Method:             normalizeMethod(get(models.SettingPostbackMethod)),
		Timeout:            parseTimeoutSeconds(get(models.SettingPostbackTimeout)),
		InsecureSkipVerify: insecure || s.ForceInsecureSkipVerify,
	}
}

// ValidateSetting rejects unknown keys and values the postback path could not use.
func ValidateSetting(key, value string) error {
	if _, known := models.DefaultSettings[key]; !known {
		return fmt.Errorf("unknown setting %q: %w", key, ErrValidation)
	}

	var err error
	switch key {
	case models.SettingDefaultPostbackURL:
		err = validate.Var(value, "required,url,startswith=http")
	case models.SettingTransactionParam, models.SettingGoalParam, models.SettingPayoutParam:
		err = validate.Var(value, "required,max=100")
	case models.SettingPostbackMethod:
		err = validate.Var(strings.ToUpper(value), "oneof=GET POST")
	case models.SettingPostbackTimeout:
		err = validate.Var(value, "required,numeric")
	case models.SettingPostbackInsecureSkipTLS:
		err = validate.Var(value, "boolean")
	case models.SettingCurrency:
		err = validate.Var(strings.ToUpper(value), "iso4217")
	case models.SettingTimezone:
		_, err = time.LoadLocation(value)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, ErrValidation)
	}
	return nil
}

func normalizeMethod(method string) string {
	if strings.EqualFold(method, http.MethodPost) {
		return http.MethodPost
	}
	return http.MethodGet
}

func parseTimeoutSeconds(v string) time.Duration {
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return DefaultPostbackTimeout
	}
	d := time.Duration(secs * float64(time.Second))
	if d > maxPostbackTimeout {
		return maxPostbackTimeout
	}
	return d
}

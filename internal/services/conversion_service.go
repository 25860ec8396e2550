package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/models"
)

type ConversionService struct {
	DB *gorm.DB
}

func NewConversionService(db *gorm.DB) *ConversionService {
	return &ConversionService{DB: db}
}

// Record inserts a conversion as given. Business validation happens before this call.
func (s *ConversionService) Record(ctx context.Context, conversion *models.Conversion) bool {
	if conversion.Status == "" {
		conversion.Status = models.ConversionStatusConverted
	}

	if err := s.DB.WithContext(ctx).Omit("Offer").Create(conversion).Error; err != nil {
		logger.FromContext(ctx).Error("Record conversion error",
			zap.String("transaction_id", conversion.TransactionId),
			zap.Error(err),
		)
		return false
	}
	return true
}

// UpdateStatus overwrites status and postback metadata for one conversion. A pending
// row may move to any status; a converted or failed row only accepts updates that keep
// its status, so a terminal outcome is never reopened. Repeating a call is harmless.
func (s *ConversionService) UpdateStatus(ctx context.Context, transactionId, status string, postbackSent bool, postbackResponse *string) bool {
	log := logger.FromContext(ctx).With(zap.String("transaction_id", transactionId), zap.String("status", status))

	if !validConversionStatus(status) {
		log.Warn("Rejected conversion update with unknown status")
		return false
	}

	guard := func(db *gorm.DB) *gorm.DB {
		return db.Where("transaction_id = ?", transactionId).
			Where("status = ? OR status = ?", models.ConversionStatusPending, status)
	}

	res := guard(s.DB.WithContext(ctx).Model(&models.Conversion{})).Updates(map[string]interface{}{
		"status":            status,
		"postback_sent":     postbackSent,
		"postback_response": postbackResponse,
	})
	if res.Error != nil {
		log.Error("Update conversion error", zap.Error(res.Error))
		return false
	}
	if res.RowsAffected > 0 {
		return true
	}

	// MySQL reports zero affected rows when the values did not change.
	var matched int64
	if err := guard(s.DB.WithContext(ctx).Model(&models.Conversion{})).Count(&matched).Error; err != nil {
		log.Error("Update conversion error", zap.Error(err))
		return false
	}
	if matched == 0 {
		log.Warn("Conversion update matched no row or would move status backward")
		return false
	}
	return true
}

func (s *ConversionService) Get(ctx context.Context, transactionId string) (*models.Conversion, error) {
	var conversion models.Conversion
	err := s.DB.WithContext(ctx).Preload("Offer").Where("transaction_id = ?", transactionId).First(&conversion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversion %s: %w", transactionId, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &conversion, nil
}

// ListStalePending returns conversions that stayed pending for longer than olderThan,
// typically because the process stopped between recording and delivery.
func (s *ConversionService) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Conversion, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Conversion
	err := s.DB.WithContext(ctx).
		Where("status = ? AND postback_sent = ? AND created_at < ?", models.ConversionStatusPending, false, time.Now().UTC().Add(-olderThan)).
		Order("created_at asc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func validConversionStatus(status string) bool {
	switch status {
	case models.ConversionStatusPending, models.ConversionStatusConverted, models.ConversionStatusFailed:
		return true
	}
	return false
}

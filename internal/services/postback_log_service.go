package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/models"
	"s2s-tracker/pkg/common"
)

// SlowPostbackThresholdMs flags attempts slower than this as timeouts even when the
// endpoint answered 2xx.
const SlowPostbackThresholdMs = 5000

type PostbackLogService struct {
	DB *gorm.DB
}

func NewPostbackLogService(db *gorm.DB) *PostbackLogService {
	return &PostbackLogService{DB: db}
}

// ClassifyPostbackStatus maps an attempt to success, failed or timeout.
func ClassifyPostbackStatus(result PostbackResult) string {
	switch {
	case result.ElapsedMs > SlowPostbackThresholdMs:
		return models.PostbackStatusTimeout
	case result.Success:
		return models.PostbackStatusSuccess
	default:
		return models.PostbackStatusFailed
	}
}

// Log appends one attempt to postback_logs. It is best effort: failures are logged and
// reported as false.
func (s *PostbackLogService) Log(ctx context.Context, transactionId, url string, payload interface{}, result PostbackResult) bool {
	requestData, err := json.Marshal(payload)
	if err != nil {
		logger.FromContext(ctx).Warn("Postback payload not serializable",
			zap.String("transaction_id", transactionId),
			zap.Error(err),
		)
		requestData = []byte("{}")
	}

	row := models.PostbackLog{
		TransactionId: transactionId,
		PostbackUrl:   url,
		RequestData:   string(requestData),
		ResponseCode:  result.HTTPStatus,
		ResponseBody:  result.Body,
		ResponseTime:  result.ElapsedMs,
		Status:        ClassifyPostbackStatus(result),
	}

	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		logger.FromContext(ctx).Error("Postback logging error",
			zap.String("transaction_id", transactionId),
			zap.Error(err),
		)
		return false
	}
	return true
}

type PostbackLogFilter struct {
	TransactionId string
	Status        string
	Page          int
	Limit         int
}

func (s *PostbackLogService) ListLogs(ctx context.Context, filter PostbackLogFilter) (common.PaginationResult, error) {
	page, limit, offset := common.NormalizePage(filter.Page, filter.Limit, 50, 500)

	query := s.DB.WithContext(ctx).Model(&models.PostbackLog{})
	if filter.TransactionId != "" {
		query = query.Where("transaction_id = ?", filter.TransactionId)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}

	var logs []models.PostbackLog
	if err := query.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return common.PaginationResult{}, err
	}

	return common.PaginateResponse(logs, total, page, limit, "Postback logs fetched successfully"), nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/models"
	"s2s-tracker/pkg/common"
)

const (
	PostbackTestSingle = "single"
	PostbackTestBatch  = "batch"
	PostbackTestStress = "stress"

	postbackTestConcurrency = 10
	successRateWindow       = 100
)

var postbackTestRuns = map[string]int{
	PostbackTestSingle: 1,
	PostbackTestBatch:  10,
	PostbackTestStress: 100,
}

type PostbackTestInput struct {
	URL           string            `json:"url" validate:"required,url"`
	TransactionId string            `json:"transaction_id"`
	Goal          string            `json:"goal"`
	Payout        string            `json:"payout"`
	Params        map[string]string `json:"params"`
	Method        string            `json:"method" validate:"omitempty,oneof=GET POST get post"`
	Mode          string            `json:"mode" validate:"omitempty,oneof=single batch stress"`
	TestName      string            `json:"test_name" validate:"max=255"`
}

type PostbackTestAttempt struct {
	TransactionId string         `json:"transaction_id"`
	Result        PostbackResult `json:"result"`
	Status        string         `json:"status"`
}

type PostbackTestReport struct {
	Mode        string                `json:"mode"`
	Attempts    []PostbackTestAttempt `json:"attempts"`
	Successes   int                   `json:"successes"`
	Failures    int                   `json:"failures"`
	AvgMs       float64               `json:"avg_ms"`
	MinMs       int64                 `json:"min_ms"`
	MaxMs       int64                 `json:"max_ms"`
	SuccessRate float64               `json:"success_rate"`
}

// PostbackTestService fires postbacks at arbitrary URLs for operators checking an
// integration. Test traffic is logged like live traffic and also kept in test_results.
type PostbackTestService struct {
	DB       *gorm.DB
	Sender   *PostbackSender
	Logs     *PostbackLogService
	Settings *SettingsService
}

func NewPostbackTestService(db *gorm.DB, sender *PostbackSender, logs *PostbackLogService, settings *SettingsService) *PostbackTestService {
	return &PostbackTestService{DB: db, Sender: sender, Logs: logs, Settings: settings}
}

func (s *PostbackTestService) Run(ctx context.Context, input PostbackTestInput) (*PostbackTestReport, error) {
	input.URL = strings.TrimSpace(input.URL)
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(strings.ToLower(input.URL), "http://") && !strings.HasPrefix(strings.ToLower(input.URL), "https://") {
		return nil, fmt.Errorf("url must use http or https: %w", ErrValidation)
	}

	mode := input.Mode
	if mode == "" {
		mode = PostbackTestSingle
	}
	method := http.MethodPost
	if input.Method != "" {
		method = strings.ToUpper(input.Method)
	}
	goal := input.Goal
	if goal == "" {
		goal = conversionGoal
	}
	testName := input.TestName
	if testName == "" {
		testName = "Manual " + mode + " test"
	}

	cfg := s.Settings.PostbackConfig(ctx)
	runs := postbackTestRuns[mode]
	attempts := make([]PostbackTestAttempt, runs)

	g := errgroup.Group{}
	g.SetLimit(postbackTestConcurrency)
	for i := 0; i < runs; i++ {
		g.Go(func() error {
			txn := input.TransactionId
			if txn == "" || runs > 1 {
				txn = common.GenerateTransactionId()
			}

			payload := make(map[string]string, len(input.Params)+3)
			for k, v := range input.Params {
				if strings.TrimSpace(k) != "" {
					payload[k] = v
				}
			}
			payload[cfg.TransactionParam] = txn
			payload[cfg.GoalParam] = goal
			if input.Payout != "" {
				payload[cfg.PayoutParam] = input.Payout
			}

			result := s.Sender.Send(ctx, PostbackRequest{
				URL:                input.URL,
				Method:             method,
				Payload:            payload,
				Timeout:            cfg.Timeout,
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			})
			s.Logs.Log(ctx, txn, input.URL, payload, result)
			s.saveResult(ctx, testName, input.URL, payload, result)

			attempts[i] = PostbackTestAttempt{TransactionId: txn, Result: result, Status: ClassifyPostbackStatus(result)}
			return nil
		})
	}
	_ = g.Wait()

	report := summarizeAttempts(mode, attempts)
	report.SuccessRate = s.RecentSuccessRate(ctx)
	return report, nil
}

func (s *PostbackTestService) saveResult(ctx context.Context, testName, url string, payload map[string]string, result PostbackResult) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	row := models.TestResult{
		TestName:     testName,
		PostbackUrl:  url,
		TestData:     string(data),
		ResponseCode: result.HTTPStatus,
		ResponseTime: result.ElapsedMs,
		Success:      result.Success,
		ErrorMessage: result.Error,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		logger.FromContext(ctx).Error("Save test result error", zap.Error(err))
	}
}

// RecentSuccessRate is the share of successful tests among the last hundred, as a percentage.
func (s *PostbackTestService) RecentSuccessRate(ctx context.Context) float64 {
	var recent []bool
	err := s.DB.WithContext(ctx).Model(&models.TestResult{}).
		Order("created_at desc, id desc").
		Limit(successRateWindow).
		Pluck("success", &recent).Error
	if err != nil {
		logger.FromContext(ctx).Warn("Load test history error", zap.Error(err))
		return 0
	}

	var ok int64
	for _, success := range recent {
		if success {
			ok++
		}
	}
	return round2(ConversionRate(int64(len(recent)), ok))
}

// History returns the most recent test results, newest first.
func (s *PostbackTestService) History(ctx context.Context, limit int) ([]models.TestResult, error) {
	if limit <= 0 || limit > successRateWindow {
		limit = 20
	}
	rows := []models.TestResult{}
	err := s.DB.WithContext(ctx).Order("created_at desc, id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// ClearHistory deletes every stored test result.
func (s *PostbackTestService) ClearHistory(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Where("1 = 1").Delete(&models.TestResult{})
	return res.RowsAffected, res.Error
}

func summarizeAttempts(mode string, attempts []PostbackTestAttempt) *PostbackTestReport {
	report := &PostbackTestReport{Mode: mode, Attempts: attempts}
	if len(attempts) == 0 {
		return report
	}

	var total int64
	report.MinMs = attempts[0].Result.ElapsedMs
	for _, a := range attempts {
		if a.Result.Success {
			report.Successes++
		} else {
			report.Failures++
		}
		ms := a.Result.ElapsedMs
		total += ms
		if ms < report.MinMs {
			report.MinMs = ms
		}
		if ms > report.MaxMs {
			report.MaxMs = ms
		}
	}
	report.AvgMs = round2(float64(total) / float64(len(attempts)))
	return report
}

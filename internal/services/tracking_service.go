package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/metrics"
	"s2s-tracker/internal/models"
	"s2s-tracker/pkg/common"
)

const conversionGoal = "conversion"

// Submission is one completed offer form plus the request metadata around it.
type Submission struct {
	OfferId          uint
	Name             string `validate:"required,max=255"`
	Email            string `validate:"required,email,max=255"`
	IP               string
	UserAgent        string
	ScreenResolution string
	Language         string
	Referrer         string
}

type SubmitResult struct {
	TransactionId string `json:"transaction_id"`
	PostbackSent  bool   `json:"postback_sent"`
}

// TrackingService turns a submission into a recorded conversion and a fired postback.
type TrackingService struct {
	Offers      *OfferService
	Geo         *GeoService
	Settings    *SettingsService
	Conversions *ConversionService
	Delivery    *DeliveryService
	Metrics     *metrics.Metrics
}

func NewTrackingService(offers *OfferService, geo *GeoService, settings *SettingsService, conversions *ConversionService, delivery *DeliveryService, m *metrics.Metrics) *TrackingService {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &TrackingService{
		Offers:      offers,
		Geo:         geo,
		Settings:    settings,
		Conversions: conversions,
		Delivery:    delivery,
		Metrics:     m,
	}
}

// Submit validates, records and delivers one conversion. Nothing is written when
// validation fails. After the conversion row exists the outcome of the postback does
// not change the returned transaction ID.
func (s *TrackingService) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	sub.Name = strings.TrimSpace(validText(sub.Name))
	sub.Email = strings.TrimSpace(validText(sub.Email))
	if err := validateStruct(sub); err != nil {
		s.Metrics.ConversionsTotal.WithLabelValues("rejected").Inc()
		return SubmitResult{}, err
	}

	offer, err := s.Offers.Get(ctx, sub.OfferId)
	if err != nil {
		s.Metrics.ConversionsTotal.WithLabelValues("rejected").Inc()
		return SubmitResult{}, err
	}
	if !offer.IsActive() {
		s.Metrics.ConversionsTotal.WithLabelValues("rejected").Inc()
		return SubmitResult{}, fmt.Errorf("offer %d is %s: %w", offer.ID, offer.Status, ErrValidation)
	}

	client := s.Geo.Resolve(ctx, sub.IP, sub.UserAgent)
	transactionId := common.GenerateTransactionId()
	cfg := s.Settings.PostbackConfig(ctx)

	offerId := offer.ID
	conversion := &models.Conversion{
		TransactionId:    transactionId,
		OfferId:          &offerId,
		Name:             sub.Name,
		Email:            sub.Email,
		IPAddress:        sub.IP,
		Country:          client.Country,
		City:             client.City,
		Region:           client.Region,
		Timezone:         client.Timezone,
		ISP:              client.ISP,
		Device:           client.Device,
		OS:               client.OS,
		Browser:          client.Browser,
		ScreenResolution: truncate(orDefault(sub.ScreenResolution, unknownValue), 20),
		Language:         primaryLanguage(sub.Language),
		UserAgent:        validText(sub.UserAgent),
		Referrer:         validText(sub.Referrer),
		Goal:             conversionGoal,
		Payout:           offer.Payout,
		Status:           models.ConversionStatusPending,
	}

	log := logger.FromContext(ctx).With(zap.String("transaction_id", transactionId), zap.Uint("offer_id", offerId))

	if !s.Conversions.Record(ctx, conversion) {
		s.Metrics.ConversionsTotal.WithLabelValues("persistence_error").Inc()
		return SubmitResult{}, fmt.Errorf("record conversion: %w", ErrPersistence)
	}
	s.Metrics.ConversionsTotal.WithLabelValues("recorded").Inc()

	result := s.Delivery.Deliver(ctx, conversion, cfg)
	log.Info("Conversion tracked",
		zap.Bool("postback_success", result.Success),
		zap.Int("postback_status", result.HTTPStatus),
		zap.Int64("postback_ms", result.ElapsedMs),
	)

	return SubmitResult{TransactionId: transactionId, PostbackSent: result.Success}, nil
}

// IsClientError reports whether err came from bad input rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}

// primaryLanguage keeps the first tag of an Accept-Language header.
func primaryLanguage(header string) string {
	tag := strings.TrimSpace(strings.Split(header, ",")[0])
	if i := strings.IndexByte(tag, ';'); i >= 0 {
		tag = tag[:i]
	}
	if tag == "" {
		return unknownValue
	}
	return truncate(tag, 10)
}

// truncate keeps at most n characters of s, with invalid UTF-8 replaced first.
func truncate(s string, n int) string {
	s = validText(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func validText(s string) string {
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}

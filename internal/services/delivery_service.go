package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/metrics"
	"s2s-tracker/internal/models"
)

// RedeliveryEnqueuer hands a transaction ID to the background queue.
type RedeliveryEnqueuer interface {
	EnqueueRedelivery(ctx context.Context, transactionId string) error
}

// DeliveryService fires, logs and settles the postback of a recorded conversion.
type DeliveryService struct {
	Sender      *PostbackSender
	Logs        *PostbackLogService
	Conversions *ConversionService
	Settings    *SettingsService
	Queue       RedeliveryEnqueuer
	Metrics     *metrics.Metrics
}

func NewDeliveryService(sender *PostbackSender, logs *PostbackLogService, conversions *ConversionService, settings *SettingsService, queue RedeliveryEnqueuer, m *metrics.Metrics) *DeliveryService {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &DeliveryService{
		Sender:      sender,
		Logs:        logs,
		Conversions: conversions,
		Settings:    settings,
		Queue:       queue,
		Metrics:     m,
	}
}

// BuildPostbackPayload maps a conversion onto the configured parameter names.
func BuildPostbackPayload(conversion *models.Conversion, cfg PostbackConfig) map[string]string {
	payload := map[string]string{
		cfg.TransactionParam: conversion.TransactionId,
		cfg.GoalParam:        conversion.Goal,
		cfg.PayoutParam:      strconv.FormatFloat(conversion.Payout, 'f', 2, 64),
		"name":               conversion.Name,
		"email":              conversion.Email,
	}
	if conversion.OfferId != nil {
		payload["offer_id"] = strconv.FormatUint(uint64(*conversion.OfferId), 10)
	}
	return payload
}

// Deliver sends one postback for conversion, logs the attempt and marks the conversion
// converted with the outcome. Every step commits on its own.
func (s *DeliveryService) Deliver(ctx context.Context, conversion *models.Conversion, cfg PostbackConfig) PostbackResult {
	payload := BuildPostbackPayload(conversion, cfg)

	result := s.Sender.Send(ctx, PostbackRequest{
		URL:                cfg.URL,
		Method:             cfg.Method,
		Payload:            payload,
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})

	log := logger.FromContext(ctx).With(zap.String("transaction_id", conversion.TransactionId))
	if !result.Success {
		fields := []zap.Field{zap.Int("http_status", result.HTTPStatus), zap.Int64("elapsed_ms", result.ElapsedMs)}
		if result.Error != nil {
			fields = append(fields, zap.String("error", *result.Error))
		}
		log.Warn("Postback delivery failed", fields...)
	}

	s.Logs.Log(ctx, conversion.TransactionId, cfg.URL, payload, result)

	if !s.Conversions.UpdateStatus(ctx, conversion.TransactionId, models.ConversionStatusConverted, result.Success, result.Body) {
		log.Warn("Conversion status not updated after postback")
	}
	return result
}

// Redeliver sends the postback of an existing conversion again using current settings.
func (s *DeliveryService) Redeliver(ctx context.Context, transactionId string) (PostbackResult, error) {
	conversion, err := s.Conversions.Get(ctx, transactionId)
	if err != nil {
		return PostbackResult{}, err
	}
	return s.Deliver(ctx, conversion, s.Settings.PostbackConfig(ctx)), nil
}

// RequestRedelivery queues a redelivery for an existing conversion.
func (s *DeliveryService) RequestRedelivery(ctx context.Context, transactionId string) error {
	if s.Queue == nil {
		return ErrQueueUnavailable
	}
	if _, err := s.Conversions.Get(ctx, transactionId); err != nil {
		return err
	}
	if err := s.Queue.EnqueueRedelivery(ctx, transactionId); err != nil {
		return fmt.Errorf("enqueue %s: %w", transactionId, err)
	}
	s.Metrics.RedeliveryEnqueued.Inc()
	return nil
}

// SweepPending finds conversions left pending for longer than staleFor and queues them.
// Without a queue they are delivered inline. It returns how many were handled.
func (s *DeliveryService) SweepPending(ctx context.Context, staleFor time.Duration, limit int) (int, error) {
	stale, err := s.Conversions.ListStalePending(ctx, staleFor, limit)
	if err != nil {
		return 0, err
	}

	log := logger.FromContext(ctx)
	handled := 0
	for i := range stale {
		txn := stale[i].TransactionId
		if s.Queue == nil {
			s.Deliver(ctx, &stale[i], s.Settings.PostbackConfig(ctx))
			handled++
			continue
		}
		if err := s.Queue.EnqueueRedelivery(ctx, txn); err != nil {
			log.Error("Enqueue stale conversion error", zap.String("transaction_id", txn), zap.Error(err))
			continue
		}
		s.Metrics.RedeliveryEnqueued.Inc()
		handled++
	}

	if len(stale) > 0 {
		log.Info("Pending conversion sweep finished", zap.Int("found", len(stale)), zap.Int("handled", handled))
	}
	return handled, nil
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/services"
)

type Worker struct {
	Delivery *services.DeliveryService
}

func NewWorker(delivery *services.DeliveryService) *Worker {
	return &Worker{
		Delivery: delivery,
	}
}

func (w *Worker) HandlePostbackDeliver(ctx context.Context, t *asynq.Task) error {
	var p PostbackDeliverPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if p.TransactionId == "" {
		return fmt.Errorf("empty transaction id: %w", asynq.SkipRetry)
	}

	ctx = logger.WithRequestID(ctx, t.Type()+":"+p.TransactionId)
	result, err := w.Delivery.Redeliver(ctx, p.TransactionId)
	if errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	logger.FromContext(ctx).Info("Postback redelivered",
		zap.Bool("success", result.Success),
		zap.Int("http_status", result.HTTPStatus),
		zap.Int64("elapsed_ms", result.ElapsedMs),
	)
	return nil
}

func NewServeMux(w *Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePostbackDeliver, w.HandlePostbackDeliver)
	return mux
}

// StartWorker blocks serving redelivery tasks until the server is shut down.
func StartWorker(redisOpt asynq.RedisClientOpt, concurrency int, delivery *services.DeliveryService) error {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger: zap.S(),
		},
	)

	if err := srv.Run(NewServeMux(NewWorker(delivery))); err != nil {
		return fmt.Errorf("could not run server: %w", err)
	}
	return nil
}

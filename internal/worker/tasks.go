package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task Types
const (
	TypePostbackDeliver = "postback:deliver"
)

type PostbackDeliverPayload struct {
	TransactionId string `json:"transaction_id"`
}

// Task Creators

func NewPostbackDeliverTask(transactionId string) (*asynq.Task, error) {
	data, err := json.Marshal(PostbackDeliverPayload{TransactionId: transactionId})
	if err != nil {
		return nil, err
	}
	// Each redelivery is a single attempt; a failed one is logged, not retried.
	return asynq.NewTask(TypePostbackDeliver, data, asynq.MaxRetry(0)), nil
}

// Enqueuer publishes redelivery tasks. Only one task per transaction is queued at a time.
type Enqueuer struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	Queue     string
}

func NewEnqueuer(client *asynq.Client, inspector *asynq.Inspector) *Enqueuer {
	return &Enqueuer{Client: client, Inspector: inspector, Queue: "default"}
}

func redeliveryTaskID(transactionId string) string {
	return TypePostbackDeliver + ":" + transactionId
}

// EnqueueRedelivery queues one attempt for transactionId. A task still waiting or running
// under the same ID satisfies the request. A finished one keeps its ID until removed, so
// it is deleted and the attempt queued again.
func (e *Enqueuer) EnqueueRedelivery(ctx context.Context, transactionId string) error {
	task, err := NewPostbackDeliverTask(transactionId)
	if err != nil {
		return err
	}
	taskID := redeliveryTaskID(transactionId)

	err = e.enqueue(ctx, task, taskID)
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	if e.Inspector == nil {
		return fmt.Errorf("redelivery for %s: %w", transactionId, err)
	}

	info, err := e.Inspector.GetTaskInfo(e.Queue, taskID)
	switch {
	case errors.Is(err, asynq.ErrTaskNotFound):
	case err != nil:
		return fmt.Errorf("inspect task %s: %w", taskID, err)
	case info.State == asynq.TaskStateArchived || info.State == asynq.TaskStateCompleted:
		if err := e.Inspector.DeleteTask(e.Queue, taskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("delete task %s: %w", taskID, err)
		}
	default:
		return nil
	}
	return e.enqueue(ctx, task, taskID)
}

func (e *Enqueuer) enqueue(ctx context.Context, task *asynq.Task, taskID string) error {
	_, err := e.Client.EnqueueContext(ctx, task, asynq.Queue(e.Queue), asynq.TaskID(taskID))
	return err
}

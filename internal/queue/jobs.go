package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/rbarbosa/peticionador/internal/model"
)

const (
	// GenerateDocumentTask is scheduled each time a submission is accepted.
	GenerateDocumentTask = "petition:generate"
)

// GeneratePayload is serialized into the task payload so the worker knows
// which template to merge and with what values.
type GeneratePayload struct {
	TaskID     string         `json:"task_id"`
	TemplateID string         `json:"template_id"`
	FormData   model.FormData `json:"form_data"`
}

// EnqueueGenerate enqueues a generation job. MaxRetry is zero on purpose:
// the orchestrator never retries on its own, a retry is a caller-initiated
// action that allocates a brand new task.
func EnqueueGenerate(ctx context.Context, client *asynq.Client, payload GeneratePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(GenerateDocumentTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("enqueue generate task: %w", err)
	}
	return nil
}

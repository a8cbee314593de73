// Package petition holds the submission-side business rules: accepting a
// filled form as a generation task, reading task status, spawning retries
// and re-syncing templates from the drive store.
package petition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rbarbosa/peticionador/internal/model"
	"github.com/rbarbosa/peticionador/internal/validate"
)

// TemplateGetter is the slice of the template repository the service needs.
type TemplateGetter interface {
	Get(ctx context.Context, id string) (*model.Template, error)
}

// TaskStore is the slice of the task repository the service needs.
type TaskStore interface {
	Create(ctx context.Context, t *model.GenerationTask) error
	Get(ctx context.Context, id string) (*model.GenerationTask, error)
	MarkFailure(ctx context.Context, id, message string, canRetry bool) error
}

// EnqueueFunc hands a persisted task to the broker.
type EnqueueFunc func(ctx context.Context, taskID, templateID string, data model.FormData) error

// Service accepts submissions and tracks their tasks.
type Service struct {
	templates TemplateGetter
	tasks     TaskStore
	enqueue   EnqueueFunc
	logger    *slog.Logger
}

// NewService wires the submission service.
func NewService(templates TemplateGetter, tasks TaskStore, enqueue EnqueueFunc, logger *slog.Logger) *Service {
	return &Service{templates: templates, tasks: tasks, enqueue: enqueue, logger: logger}
}

// Submit validates the form against the template and, if it passes, persists
// a QUEUED task and hands it to the broker. The returned task id is the
// caller's polling handle.
func (s *Service) Submit(ctx context.Context, templateID string, data model.FormData) (*model.GenerationTask, error) {
	tpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl.Status == model.TemplateArchived {
		return nil, ErrTemplateArchived
	}
	if problems := validate.Form(tpl.EffectiveFields(), data); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	task := &model.GenerationTask{
		ID:         uuid.New().String(),
		TemplateID: tpl.ID,
		Status:     model.TaskQueued,
		Message:    "na fila",
		FormData:   data,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if err := s.enqueue(ctx, task.ID, task.TemplateID, data); err != nil {
		// The row exists but the broker never saw it; fail it transiently so
		// the client can retry instead of polling forever.
		if mErr := s.tasks.MarkFailure(ctx, task.ID, "falha ao enfileirar tarefa", true); mErr != nil {
			s.logger.Error("mark enqueue failure", "task_id", task.ID, "error", mErr)
		}
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	s.logger.Info("task enqueued", "task_id", task.ID, "template_id", tpl.ID)
	return task, nil
}

// Status is a plain read of the task row.
func (s *Service) Status(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	return s.tasks.Get(ctx, taskID)
}

// Retry spawns a fresh task re-running a failed one's original submission.
// Only transient failures are retryable; the new task carries its own id and
// points back through RetryOf.
func (s *Service) Retry(ctx context.Context, taskID string) (*model.GenerationTask, error) {
	old, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if old.Status != model.TaskFailure {
		return nil, ErrNotFailed
	}
	if !old.CanRetry {
		return nil, ErrNotRetryable
	}

	retry := &model.GenerationTask{
		ID:         uuid.New().String(),
		TemplateID: old.TemplateID,
		Status:     model.TaskQueued,
		Message:    "na fila (nova tentativa)",
		RetryCount: old.RetryCount + 1,
		RetryOf:    &old.ID,
		FormData:   old.FormData,
	}
	if err := s.tasks.Create(ctx, retry); err != nil {
		return nil, fmt.Errorf("create retry task: %w", err)
	}
	if err := s.enqueue(ctx, retry.ID, retry.TemplateID, retry.FormData); err != nil {
		if mErr := s.tasks.MarkFailure(ctx, retry.ID, "falha ao enfileirar tarefa", true); mErr != nil {
			s.logger.Error("mark enqueue failure", "task_id", retry.ID, "error", mErr)
		}
		return nil, fmt.Errorf("enqueue retry: %w", err)
	}
	s.logger.Info("retry enqueued", "task_id", retry.ID, "retry_of", old.ID, "retry_count", retry.RetryCount)
	return retry, nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rbarbosa/peticionador/internal/model"
)

// TaskRepository persists generation tasks. Rows are insert-once; the only
// later writes are status transitions, so polling reads are always
// consistent with what the worker last committed.
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository constructs a repository.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// Create inserts a queued task.
func (r *TaskRepository) Create(ctx context.Context, t *model.GenerationTask) error {
	now := time.Now().UTC()
	t.Status = model.TaskQueued
	t.Progress = 0
	t.CreatedAt = now
	t.UpdatedAt = now
	form, err := json.Marshal(t.FormData)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO generation_tasks (id, template_id, status, progress, message,
			document_url, file_name, error_message, can_retry, retry_count, retry_of,
			form_data, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, t.ID, t.TemplateID, t.Status, t.Progress, t.Message, "", "", "", false,
		t.RetryCount, t.RetryOf, form, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get returns a task by id.
func (r *TaskRepository) Get(ctx context.Context, id string) (*model.GenerationTask, error) {
	var (
		t    model.GenerationTask
		form []byte
	)
	row := r.pool.QueryRow(ctx, `
		SELECT id, template_id, status, progress, message, document_url, file_name,
			error_message, can_retry, retry_count, retry_of, form_data, created_at, updated_at
		FROM generation_tasks WHERE id=$1
	`, id)
	err := row.Scan(&t.ID, &t.TemplateID, &t.Status, &t.Progress, &t.Message,
		&t.DocumentURL, &t.FileName, &t.ErrorMessage, &t.CanRetry, &t.RetryCount,
		&t.RetryOf, &form, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	if len(form) > 0 {
		if err := json.Unmarshal(form, &t.FormData); err != nil {
			return nil, fmt.Errorf("decode form data: %w", err)
		}
	}
	return &t, nil
}

// MarkProcessing moves a queued task into PROCESSING.
func (r *TaskRepository) MarkProcessing(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE generation_tasks
		SET status=$1, updated_at=$2
		WHERE id=$3 AND status=$4
	`, model.TaskProcessing, time.Now().UTC(), id, model.TaskQueued)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// UpdateProgress advances the progress indicator. GREATEST keeps progress
// monotonic even if updates are committed out of order.
func (r *TaskRepository) UpdateProgress(ctx context.Context, id string, progress int, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE generation_tasks
		SET progress=GREATEST(progress, $1), message=$2, updated_at=$3
		WHERE id=$4 AND status=$5
	`, progress, message, time.Now().UTC(), id, model.TaskProcessing)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// MarkSuccess finishes the task with its downloadable result. Progress is
// pinned to 100 and the error columns stay empty: a task never holds both
// a result and an error.
func (r *TaskRepository) MarkSuccess(ctx context.Context, id, documentURL, fileName string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE generation_tasks
		SET status=$1, progress=100, message='', document_url=$2, file_name=$3,
			error_message='', can_retry=FALSE, updated_at=$4
		WHERE id=$5
	`, model.TaskSuccess, documentURL, fileName, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark success: %w", err)
	}
	return nil
}

// MarkFailure finishes the task with an error; canRetry distinguishes
// transient infrastructure failures from permanently bad input.
func (r *TaskRepository) MarkFailure(ctx context.Context, id, message string, canRetry bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE generation_tasks
		SET status=$1, message='', document_url='', file_name='',
			error_message=$2, can_retry=$3, updated_at=$4
		WHERE id=$5
	`, model.TaskFailure, message, canRetry, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark failure: %w", err)
	}
	return nil
}

package model

import (
	"time"
)

// TaskStatus describes the generation lifecycle. The uppercase values are
// part of the public API contract and are polled by clients as-is.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "QUEUED"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskSuccess    TaskStatus = "SUCCESS"
	TaskFailure    TaskStatus = "FAILURE"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskSuccess || s == TaskFailure
}

// GenerationTask tracks one document generation job. Rows are insert-once;
// the only mutations afterwards are status transitions. A retry allocates a
// brand new task linked back through RetryOf — ids are never reused.
type GenerationTask struct {
	ID         string     `json:"task_id"`
	TemplateID string     `json:"template_id"`
	Status     TaskStatus `json:"status"`

	// Progress is 0-100 and monotonically non-decreasing while PROCESSING;
	// it is pinned at 100 on SUCCESS.
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`

	DocumentURL string `json:"document_url,omitempty"`
	FileName    string `json:"file_name,omitempty"`

	ErrorMessage string  `json:"error_message,omitempty"`
	CanRetry     bool    `json:"can_retry"`
	RetryCount   int     `json:"retry_count"`
	RetryOf      *string `json:"retry_of,omitempty"`

	// FormData is kept so a retry can re-enqueue the original submission
	// without the caller resending it; it is never exposed on the status
	// endpoint.
	FormData FormData `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

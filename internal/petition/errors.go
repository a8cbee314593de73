package petition

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateArchived rejects submissions against archived templates.
	ErrTemplateArchived = errors.New("modelo arquivado não aceita novas petições")

	// ErrNotFailed rejects retrying a task that is not in FAILURE.
	ErrNotFailed = errors.New("apenas tarefas com falha podem ser repetidas")

	// ErrNotRetryable rejects retrying a permanent failure.
	ErrNotRetryable = errors.New("falha permanente, repetição não disponível")
)

// ValidationError carries the per-field problems of a rejected submission.
type ValidationError struct {
	Problems map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dados inválidos em %d campo(s)", len(e.Problems))
}

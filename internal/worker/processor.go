// Package worker runs the document generation jobs pulled off the broker.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/hibiken/asynq"

	"github.com/rbarbosa/peticionador/internal/analyze"
	"github.com/rbarbosa/peticionador/internal/model"
	"github.com/rbarbosa/peticionador/internal/notify"
	"github.com/rbarbosa/peticionador/internal/queue"
	"github.com/rbarbosa/peticionador/internal/repository"
)

// TaskStore is the slice of the task repository the worker drives.
type TaskStore interface {
	Get(ctx context.Context, id string) (*model.GenerationTask, error)
	MarkProcessing(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int, message string) error
	MarkSuccess(ctx context.Context, id, documentURL, fileName string) error
	MarkFailure(ctx context.Context, id, message string, canRetry bool) error
}

// TemplateStore is the slice of the template repository the worker reads.
type TemplateStore interface {
	Get(ctx context.Context, id string) (*model.Template, error)
	RecordUsage(ctx context.Context, id string, latency time.Duration) error
}

// ObjectStore covers the document store operations of one generation.
type ObjectStore interface {
	DownloadTemplate(ctx context.Context, objectKey string) ([]byte, error)
	UploadGenerated(ctx context.Context, objectKey string, data []byte) error
	PresignGeneratedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// EventSink pushes task events toward connected clients.
type EventSink interface {
	Publish(ctx context.Context, ev notify.Event)
	Progress(ctx context.Context, taskID string, progress int, message string)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	tasks     TaskStore
	templates TemplateStore
	store     ObjectStore
	events    EventSink
	signedTTL time.Duration
	logger    *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(
	tasks TaskStore,
	templates TemplateStore,
	store ObjectStore,
	events EventSink,
	signedTTL time.Duration,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		tasks:     tasks,
		templates: templates,
		store:     store,
		events:    events,
		signedTTL: signedTTL,
		logger:    logger,
	}
}

// Handler registers the generation job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.GenerateDocumentTask, p.handleGenerate)
	return mux
}

func (p *Processor) handleGenerate(ctx context.Context, task *asynq.Task) error {
	var payload queue.GeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Nothing to mark; without a task id the payload is garbage.
		return fmt.Errorf("decode payload: %w", err)
	}

	row, err := p.tasks.Get(ctx, payload.TaskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", payload.TaskID, err)
	}
	if row.Status.Terminal() {
		p.logger.Warn("skipping terminal task", "task_id", row.ID, "status", row.Status)
		return nil
	}
	if err := p.tasks.MarkProcessing(ctx, row.ID); err != nil {
		return fmt.Errorf("mark processing %s: %w", row.ID, err)
	}

	if err := p.generate(ctx, row, payload.FormData); err != nil {
		canRetry := !isPermanent(err)
		p.logger.Error("generation failed",
			"task_id", row.ID, "template_id", row.TemplateID, "can_retry", canRetry, "error", err)
		if mErr := p.tasks.MarkFailure(ctx, row.ID, err.Error(), canRetry); mErr != nil {
			p.logger.Error("mark failure", "task_id", row.ID, "error", mErr)
		}
		p.events.Publish(ctx, notify.Event{
			Type:    notify.TypeTaskFailed,
			TaskID:  row.ID,
			Status:  model.TaskFailure,
			Message: err.Error(),
		})
		// The broker never retries generation jobs; retries are new tasks
		// spawned by the caller. Returning nil keeps asynq from re-running.
		return nil
	}
	return nil
}

func (p *Processor) generate(ctx context.Context, row *model.GenerationTask, data model.FormData) error {
	started := time.Now()
	progress := func(pct int, msg string) {
		if err := p.tasks.UpdateProgress(ctx, row.ID, pct, msg); err != nil {
			p.logger.Warn("update progress", "task_id", row.ID, "error", err)
		}
		p.events.Progress(ctx, row.ID, pct, msg)
	}

	progress(10, "carregando modelo")
	tpl, err := p.templates.Get(ctx, row.TemplateID)
	if err != nil {
		return fmt.Errorf("load template %s: %w", row.TemplateID, err)
	}
	raw, err := p.store.DownloadTemplate(ctx, tpl.DriveFileID)
	if err != nil {
		return fmt.Errorf("download source %q: %w", tpl.DriveFileID, err)
	}
	source, err := analyze.SourceText(raw)
	if err != nil {
		return fmt.Errorf("decode source %q: %w", tpl.DriveFileID, err)
	}

	progress(50, "mesclando dados")
	document, err := analyze.Render(source, tpl.EffectiveFields(), data)
	if err != nil {
		return fmt.Errorf("render document: %w", err)
	}

	progress(80, "enviando documento")
	fileName := fmt.Sprintf("%s.txt", slugify(tpl.Name))
	objectKey := fmt.Sprintf("peticoes/%s/%s", row.ID, fileName)
	if err := p.store.UploadGenerated(ctx, objectKey, []byte(document)); err != nil {
		return fmt.Errorf("upload generated document: %w", err)
	}
	url, err := p.store.PresignGeneratedURL(ctx, objectKey, p.signedTTL)
	if err != nil {
		return fmt.Errorf("presign document url: %w", err)
	}

	if err := p.tasks.MarkSuccess(ctx, row.ID, url, fileName); err != nil {
		return fmt.Errorf("mark success %s: %w", row.ID, err)
	}
	if err := p.templates.RecordUsage(ctx, tpl.ID, time.Since(row.CreatedAt)); err != nil {
		p.logger.Warn("record usage", "template_id", tpl.ID, "error", err)
	}
	p.events.Publish(ctx, notify.Event{
		Type:     notify.TypeTaskCompleted,
		TaskID:   row.ID,
		Status:   model.TaskSuccess,
		Progress: 100,
		Message:  "documento gerado",
	})
	p.logger.Info("document generated",
		"task_id", row.ID, "template_id", tpl.ID,
		"bytes", len(document), "elapsed", time.Since(started))
	return nil
}

// isPermanent classifies failures a retry of the same submission cannot fix:
// missing required values, a template row that no longer exists, or a source
// document that cannot be decoded.
func isPermanent(err error) bool {
	return errors.Is(err, analyze.ErrMissingRequired) ||
		errors.Is(err, analyze.ErrBadSource) ||
		errors.Is(err, repository.ErrNotFound)
}

// slugify turns a template name into a safe file name.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(stripAccent(r))
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "peticao"
	}
	return slug
}

func stripAccent(r rune) rune {
	switch r {
	case 'á', 'à', 'â', 'ã', 'ä':
		return 'a'
	case 'é', 'è', 'ê', 'ë':
		return 'e'
	case 'í', 'ì', 'î', 'ï':
		return 'i'
	case 'ó', 'ò', 'ô', 'õ', 'ö':
		return 'o'
	case 'ú', 'ù', 'û', 'ü':
		return 'u'
	case 'ç':
		return 'c'
	default:
		return r
	}
}

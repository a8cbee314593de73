package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rbarbosa/peticionador/internal/analyze"
	"github.com/rbarbosa/peticionador/internal/model"
	"github.com/rbarbosa/peticionador/internal/notify"
	"github.com/rbarbosa/peticionador/internal/queue"
	"github.com/rbarbosa/peticionador/internal/repository"
)

type fakeTaskStore struct {
	byID      map[string]*model.GenerationTask
	progress  []int
	successes map[string][2]string
	failures  map[string]bool
}

func newFakeTaskStore(tasks ...*model.GenerationTask) *fakeTaskStore {
	f := &fakeTaskStore{
		byID:      map[string]*model.GenerationTask{},
		successes: map[string][2]string{},
		failures:  map[string]bool{},
	}
	for _, t := range tasks {
		f.byID[t.ID] = t
	}
	return f
}

func (f *fakeTaskStore) Get(_ context.Context, id string) (*model.GenerationTask, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTaskStore) MarkProcessing(_ context.Context, id string) error {
	f.byID[id].Status = model.TaskProcessing
	return nil
}

func (f *fakeTaskStore) UpdateProgress(_ context.Context, id string, progress int, _ string) error {
	t := f.byID[id]
	// Mirror the SQL GREATEST guard: progress never moves backwards.
	if progress > t.Progress {
		t.Progress = progress
	}
	f.progress = append(f.progress, t.Progress)
	return nil
}

func (f *fakeTaskStore) MarkSuccess(_ context.Context, id, documentURL, fileName string) error {
	t := f.byID[id]
	t.Status = model.TaskSuccess
	t.Progress = 100
	f.successes[id] = [2]string{documentURL, fileName}
	return nil
}

func (f *fakeTaskStore) MarkFailure(_ context.Context, id, message string, canRetry bool) error {
	t := f.byID[id]
	t.Status = model.TaskFailure
	t.ErrorMessage = message
	t.CanRetry = canRetry
	f.failures[id] = canRetry
	return nil
}

type fakeTemplateStore struct {
	byID  map[string]*model.Template
	usage []string
}

func (f *fakeTemplateStore) Get(_ context.Context, id string) (*model.Template, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeTemplateStore) RecordUsage(_ context.Context, id string, _ time.Duration) error {
	f.usage = append(f.usage, id)
	return nil
}

type fakeObjectStore struct {
	sources  map[string][]byte
	uploads  map[string][]byte
	download error
}

func (f *fakeObjectStore) DownloadTemplate(_ context.Context, key string) ([]byte, error) {
	if f.download != nil {
		return nil, f.download
	}
	return f.sources[key], nil
}

func (f *fakeObjectStore) UploadGenerated(_ context.Context, key string, data []byte) error {
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeObjectStore) PresignGeneratedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://example.test/" + key, nil
}

type fakeEventSink struct {
	events []notify.Event
}

func (f *fakeEventSink) Publish(_ context.Context, ev notify.Event) {
	f.events = append(f.events, ev)
}

func (f *fakeEventSink) Progress(_ context.Context, taskID string, progress int, message string) {
	f.Publish(context.Background(), notify.Event{
		Type: notify.TypeProgress, TaskID: taskID, Progress: progress, Message: message,
	})
}

func generationFixture() (*fakeTaskStore, *fakeTemplateStore, *fakeObjectStore, *fakeEventSink, *Processor) {
	task := &model.GenerationTask{
		ID:         "task-1",
		TemplateID: "tpl-1",
		Status:     model.TaskQueued,
		CreatedAt:  time.Now().Add(-time.Second),
	}
	tasks := newFakeTaskStore(task)
	templates := &fakeTemplateStore{byID: map[string]*model.Template{
		"tpl-1": {
			ID:          "tpl-1",
			DriveFileID: "modelos/defesa.txt",
			Name:        "Defesa Prévia",
			Status:      model.TemplatePublished,
			Fields: []model.DetectedField{
				{Name: "autor_nome", Type: model.FieldText, Required: true},
			},
		},
	}}
	store := &fakeObjectStore{sources: map[string][]byte{
		"modelos/defesa.txt": []byte("Requerente: {{autor_nome}}."),
	}}
	events := &fakeEventSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewProcessor(tasks, templates, store, events, 15*time.Minute, logger)
	return tasks, templates, store, events, p
}

func generateTask(t *testing.T, payload queue.GeneratePayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(queue.GenerateDocumentTask, data)
}

func TestHandleGenerateSuccessPath(t *testing.T) {
	tasks, templates, store, events, p := generationFixture()

	job := generateTask(t, queue.GeneratePayload{
		TaskID:     "task-1",
		TemplateID: "tpl-1",
		FormData:   model.FormData{"autor_nome": "Maria da Silva"},
	})
	if err := p.handleGenerate(context.Background(), job); err != nil {
		t.Fatalf("handleGenerate: %v", err)
	}

	task := tasks.byID["task-1"]
	if task.Status != model.TaskSuccess || task.Progress != 100 {
		t.Fatalf("task ended as %s/%d, want SUCCESS/100", task.Status, task.Progress)
	}
	for i := 1; i < len(tasks.progress); i++ {
		if tasks.progress[i] < tasks.progress[i-1] {
			t.Fatalf("progress went backwards: %v", tasks.progress)
		}
	}
	if len(tasks.progress) != 3 || tasks.progress[0] != 10 || tasks.progress[1] != 50 || tasks.progress[2] != 80 {
		t.Fatalf("progress ladder = %v, want [10 50 80]", tasks.progress)
	}
	result := tasks.successes["task-1"]
	if !strings.Contains(result[0], "peticoes/task-1/") || result[1] != "defesa-previa.txt" {
		t.Fatalf("result = %v", result)
	}
	if got := string(store.uploads["peticoes/task-1/defesa-previa.txt"]); got != "Requerente: Maria da Silva." {
		t.Fatalf("rendered document = %q", got)
	}
	if len(templates.usage) != 1 || templates.usage[0] != "tpl-1" {
		t.Fatalf("usage recordings = %v", templates.usage)
	}
	last := events.events[len(events.events)-1]
	if last.Type != notify.TypeTaskCompleted || last.Progress != 100 {
		t.Fatalf("final event = %+v", last)
	}
}

func TestHandleGenerateMissingRequiredIsPermanent(t *testing.T) {
	tasks, _, _, events, p := generationFixture()

	job := generateTask(t, queue.GeneratePayload{
		TaskID:     "task-1",
		TemplateID: "tpl-1",
		FormData:   model.FormData{},
	})
	if err := p.handleGenerate(context.Background(), job); err != nil {
		t.Fatalf("failed jobs must not be re-run by the broker: %v", err)
	}

	task := tasks.byID["task-1"]
	if task.Status != model.TaskFailure {
		t.Fatalf("task ended as %s, want FAILURE", task.Status)
	}
	if canRetry, marked := tasks.failures["task-1"]; !marked || canRetry {
		t.Fatalf("missing required value must be permanent, got can_retry=%v", canRetry)
	}
	last := events.events[len(events.events)-1]
	if last.Type != notify.TypeTaskFailed {
		t.Fatalf("final event = %+v", last)
	}
}

func TestHandleGenerateInfrastructureErrorIsTransient(t *testing.T) {
	tasks, _, store, _, p := generationFixture()
	store.download = errors.New("connection refused")

	job := generateTask(t, queue.GeneratePayload{
		TaskID:     "task-1",
		TemplateID: "tpl-1",
		FormData:   model.FormData{"autor_nome": "Maria"},
	})
	if err := p.handleGenerate(context.Background(), job); err != nil {
		t.Fatalf("handleGenerate: %v", err)
	}
	if canRetry, marked := tasks.failures["task-1"]; !marked || !canRetry {
		t.Fatalf("storage failure must stay retryable, got can_retry=%v", canRetry)
	}
}

func TestHandleGenerateSkipsTerminalTask(t *testing.T) {
	tasks, _, _, events, p := generationFixture()
	tasks.byID["task-1"].Status = model.TaskSuccess

	job := generateTask(t, queue.GeneratePayload{TaskID: "task-1", TemplateID: "tpl-1"})
	if err := p.handleGenerate(context.Background(), job); err != nil {
		t.Fatalf("handleGenerate: %v", err)
	}
	if len(tasks.progress) != 0 || len(events.events) != 0 {
		t.Fatal("a terminal task must not be reprocessed")
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Suspensão Condicional da Pena", "suspensao-condicional-da-pena"},
		{"Defesa Prévia — JARI", "defesa-previa-jari"},
		{"  recurso   CETRAN  ", "recurso-cetran"},
		{"***", "peticao"},
	}
	for _, c := range cases {
		if got := slugify(c.in); got != c.want {
			t.Errorf("slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFailureClassification(t *testing.T) {
	permanent := []error{
		fmt.Errorf("render document: %w", analyze.ErrMissingRequired),
		fmt.Errorf("decode source: %w", analyze.ErrBadSource),
		fmt.Errorf("load template: %w", repository.ErrNotFound),
	}
	for _, err := range permanent {
		if !isPermanent(err) {
			t.Errorf("expected permanent: %v", err)
		}
	}
	if isPermanent(errors.New("connection refused")) {
		t.Error("infrastructure errors must stay retryable")
	}
}

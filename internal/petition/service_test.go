package petition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/rbarbosa/peticionador/internal/model"
	"github.com/rbarbosa/peticionador/internal/notify"
)

type fakeTemplates struct {
	byID map[string]*model.Template
	err  error
}

func (f *fakeTemplates) Get(_ context.Context, id string) (*model.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.byID[id]
	if !ok {
		return nil, errors.New("template não encontrado")
	}
	return t, nil
}

func (f *fakeTemplates) Update(_ context.Context, t *model.Template) error {
	f.byID[t.ID] = t
	return nil
}

type fakeTasks struct {
	created  []*model.GenerationTask
	failures map[string]string
	byID     map[string]*model.GenerationTask
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{failures: map[string]string{}, byID: map[string]*model.GenerationTask{}}
}

func (f *fakeTasks) Create(_ context.Context, t *model.GenerationTask) error {
	f.created = append(f.created, t)
	f.byID[t.ID] = t
	return nil
}

func (f *fakeTasks) Get(_ context.Context, id string) (*model.GenerationTask, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, errors.New("tarefa não encontrada")
	}
	return t, nil
}

func (f *fakeTasks) MarkFailure(_ context.Context, id, message string, canRetry bool) error {
	f.failures[id] = message
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func publishedTemplate() *model.Template {
	return &model.Template{
		ID:          "tpl-1",
		DriveFileID: "modelos/defesa.txt",
		Name:        "Defesa Prévia",
		Status:      model.TemplatePublished,
		Fields: []model.DetectedField{
			{Name: "autor_nome", Type: model.FieldText, Required: true},
			{Name: "autor_cpf", Type: model.FieldCPF, Required: true},
		},
	}
}

func TestSubmitEnqueuesValidForm(t *testing.T) {
	templates := &fakeTemplates{byID: map[string]*model.Template{"tpl-1": publishedTemplate()}}
	tasks := newFakeTasks()
	var enqueued []string
	enqueue := func(_ context.Context, taskID, templateID string, _ model.FormData) error {
		enqueued = append(enqueued, taskID)
		return nil
	}
	svc := NewService(templates, tasks, enqueue, quietLogger())

	task, err := svc.Submit(context.Background(), "tpl-1", model.FormData{
		"autor_nome": "Maria da Silva",
		"autor_cpf":  "123.456.789-09",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.ID == "" || task.Status != model.TaskQueued {
		t.Fatalf("unexpected task %+v", task)
	}
	if len(enqueued) != 1 || enqueued[0] != task.ID {
		t.Fatalf("broker saw %v, want [%s]", enqueued, task.ID)
	}
	if task.FormData["autor_cpf"] != "123.456.789-09" {
		t.Fatal("submission data must be kept on the task for retries")
	}
}

func TestSubmitRejectsInvalidForm(t *testing.T) {
	templates := &fakeTemplates{byID: map[string]*model.Template{"tpl-1": publishedTemplate()}}
	tasks := newFakeTasks()
	enqueue := func(_ context.Context, _, _ string, _ model.FormData) error {
		t.Error("invalid submission must not reach the broker")
		return nil
	}
	svc := NewService(templates, tasks, enqueue, quietLogger())

	_, err := svc.Submit(context.Background(), "tpl-1", model.FormData{
		"autor_nome": "Maria da Silva",
		"autor_cpf":  "111.111.111-11",
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.Problems["autor_cpf"]; !ok {
		t.Fatalf("expected problem on autor_cpf, got %v", vErr.Problems)
	}
	if len(tasks.created) != 0 {
		t.Fatal("invalid submission must not create a task")
	}
}

func TestSubmitHonorsRequiredOverrides(t *testing.T) {
	tpl := publishedTemplate()
	tpl.RequiredOverrides = map[string]bool{"autor_cpf": false}
	templates := &fakeTemplates{byID: map[string]*model.Template{"tpl-1": tpl}}
	svc := NewService(templates, newFakeTasks(),
		func(_ context.Context, _, _ string, _ model.FormData) error { return nil }, quietLogger())

	// CPF omitted entirely; the override makes that acceptable.
	_, err := svc.Submit(context.Background(), "tpl-1", model.FormData{"autor_nome": "Maria"})
	if err != nil {
		t.Fatalf("override must relax the required flag: %v", err)
	}
}

func TestSubmitRejectsArchivedTemplate(t *testing.T) {
	tpl := publishedTemplate()
	tpl.Status = model.TemplateArchived
	templates := &fakeTemplates{byID: map[string]*model.Template{"tpl-1": tpl}}
	svc := NewService(templates, newFakeTasks(),
		func(_ context.Context, _, _ string, _ model.FormData) error { return nil }, quietLogger())

	_, err := svc.Submit(context.Background(), "tpl-1", model.FormData{"autor_nome": "Maria"})
	if !errors.Is(err, ErrTemplateArchived) {
		t.Fatalf("expected ErrTemplateArchived, got %v", err)
	}
}

func TestSubmitMarksTaskFailedWhenBrokerDown(t *testing.T) {
	templates := &fakeTemplates{byID: map[string]*model.Template{"tpl-1": publishedTemplate()}}
	tasks := newFakeTasks()
	enqueue := func(_ context.Context, _, _ string, _ model.FormData) error {
		return errors.New("redis down")
	}
	svc := NewService(templates, tasks, enqueue, quietLogger())

	_, err := svc.Submit(context.Background(), "tpl-1", model.FormData{
		"autor_nome": "Maria da Silva",
		"autor_cpf":  "123.456.789-09",
	})
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	if len(tasks.created) != 1 {
		t.Fatalf("expected one created task, got %d", len(tasks.created))
	}
	if _, failed := tasks.failures[tasks.created[0].ID]; !failed {
		t.Fatal("task must be marked failed when the broker rejects it")
	}
}

func TestRetrySpawnsFreshTask(t *testing.T) {
	templates := &fakeTemplates{byID: map[string]*model.Template{"tpl-1": publishedTemplate()}}
	tasks := newFakeTasks()
	old := &model.GenerationTask{
		ID:         "task-old",
		TemplateID: "tpl-1",
		Status:     model.TaskFailure,
		CanRetry:   true,
		RetryCount: 1,
		FormData:   model.FormData{"autor_nome": "Maria", "autor_cpf": "123.456.789-09"},
	}
	tasks.byID[old.ID] = old

	var enqueuedData model.FormData
	enqueue := func(_ context.Context, _, _ string, data model.FormData) error {
		enqueuedData = data
		return nil
	}
	svc := NewService(templates, tasks, enqueue, quietLogger())

	retry, err := svc.Retry(context.Background(), "task-old")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.ID == old.ID || retry.ID == "" {
		t.Fatalf("retry must get a fresh id, got %q", retry.ID)
	}
	if retry.RetryOf == nil || *retry.RetryOf != old.ID {
		t.Fatalf("retry must link back to the failed task, got %+v", retry.RetryOf)
	}
	if retry.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", retry.RetryCount)
	}
	if enqueuedData["autor_nome"] != "Maria" {
		t.Fatal("retry must re-enqueue the original submission")
	}
}

func TestRetryRefusesNonFailedAndPermanent(t *testing.T) {
	templates := &fakeTemplates{byID: map[string]*model.Template{"tpl-1": publishedTemplate()}}
	tasks := newFakeTasks()
	tasks.byID["task-ok"] = &model.GenerationTask{ID: "task-ok", Status: model.TaskSuccess}
	tasks.byID["task-perm"] = &model.GenerationTask{ID: "task-perm", Status: model.TaskFailure, CanRetry: false}
	svc := NewService(templates, tasks,
		func(_ context.Context, _, _ string, _ model.FormData) error { return nil }, quietLogger())

	if _, err := svc.Retry(context.Background(), "task-ok"); !errors.Is(err, ErrNotFailed) {
		t.Fatalf("expected ErrNotFailed, got %v", err)
	}
	if _, err := svc.Retry(context.Background(), "task-perm"); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable, got %v", err)
	}
}

type fakeDownloader struct {
	data map[string][]byte
}

func (f *fakeDownloader) DownloadTemplate(_ context.Context, key string) ([]byte, error) {
	d, ok := f.data[key]
	if !ok {
		return nil, errors.New("objeto não encontrado")
	}
	return d, nil
}

type capturingPublisher struct {
	events []notify.Event
}

func (p *capturingPublisher) Publish(_ context.Context, ev notify.Event) {
	p.events = append(p.events, ev)
}

type capturingCache struct {
	invalidated []string
}

func (c *capturingCache) Invalidate(id string) {
	c.invalidated = append(c.invalidated, id)
}

func TestSyncerRegeneratesFields(t *testing.T) {
	tpl := publishedTemplate()
	tpl.RequiredOverrides = map[string]bool{"novo_campo": true}
	templates := &fakeTemplates{byID: map[string]*model.Template{"tpl-1": tpl}}
	source := "Requerente: {{autor_nome}} portador do CPF {{autor_cpf}} declara {{novo_campo}}."
	downloads := &fakeDownloader{data: map[string][]byte{"modelos/defesa.txt": []byte(source)}}
	pub := &capturingPublisher{}
	cache := &capturingCache{}

	syncer := NewSyncer(templates, downloads, pub, cache, quietLogger())
	if err := syncer.Sync(context.Background(), "tpl-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	got := templates.byID["tpl-1"]
	if len(got.Fields) != 3 {
		t.Fatalf("expected 3 detected fields, got %d: %+v", len(got.Fields), got.Fields)
	}
	byName := map[string]model.DetectedField{}
	for _, f := range got.Fields {
		byName[f.Name] = f
	}
	if byName["autor_cpf"].Type != model.FieldCPF {
		t.Fatalf("autor_cpf inferred as %s", byName["autor_cpf"].Type)
	}
	if !byName["novo_campo"].Required {
		t.Fatal("required override must survive the resync")
	}
	if got.LastSyncedAt == nil {
		t.Fatal("sync must stamp LastSyncedAt")
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "tpl-1" {
		t.Fatalf("cache invalidations = %v", cache.invalidated)
	}
	if len(pub.events) != 1 || pub.events[0].Type != notify.TypeTemplateUpdated {
		t.Fatalf("events = %+v", pub.events)
	}
}

// Package api exposes the HTTP surface: public form submission and task
// polling, the admin template endpoints and the websocket push channel.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rbarbosa/peticionador/internal/analyze"
	"github.com/rbarbosa/peticionador/internal/cache"
	"github.com/rbarbosa/peticionador/internal/config"
	"github.com/rbarbosa/peticionador/internal/docstore"
	"github.com/rbarbosa/peticionador/internal/mapper"
	"github.com/rbarbosa/peticionador/internal/model"
	"github.com/rbarbosa/peticionador/internal/notify"
	"github.com/rbarbosa/peticionador/internal/petition"
	"github.com/rbarbosa/peticionador/internal/repository"
	"github.com/rbarbosa/peticionador/internal/schema"
	"github.com/rbarbosa/peticionador/internal/syncqueue"
	"github.com/rbarbosa/peticionador/internal/ws"
)

const maxBodyBytes = 1 << 20

// Server wires every HTTP endpoint to the services underneath.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	templates *repository.TemplateRepository
	petitions *petition.Service
	syncer    *petition.Syncer
	store     *docstore.Store
	syncQ     *syncqueue.Queue
	tplCache  *cache.TemplateCache
	hub       *ws.Hub
	events    *notify.Publisher
	sub       *notify.Subscriber
	dedup     *notify.Deduper

	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	templates *repository.TemplateRepository,
	petitions *petition.Service,
	syncer *petition.Syncer,
	store *docstore.Store,
	syncQ *syncqueue.Queue,
	tplCache *cache.TemplateCache,
	hub *ws.Hub,
	events *notify.Publisher,
	sub *notify.Subscriber,
) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		templates: templates,
		petitions: petitions,
		syncer:    syncer,
		store:     store,
		syncQ:     syncQ,
		tplCache:  tplCache,
		hub:       hub,
		events:    events,
		sub:       sub,
		dedup:     notify.NewDeduper(cfg.CacheSize, 30*time.Second),
	}
}

// Router assembles the route tree. Split out from Run so tests can mount it
// on httptest servers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Post("/gerar-documento", s.handleGenerate)
		r.Get("/task-status/{taskID}", s.handleTaskStatus)
		r.Post("/retry-task/{taskID}", s.handleRetryTask)
		r.Get("/form-schema/{templateID}", s.handleFormSchema)
		r.Post("/preencher-formulario", s.handleAutoFill)
		r.Post("/webhooks/drive", s.handleDriveWebhook)

		r.Route("/admin/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/scan-drive-folder", s.handleScanDriveFolder)
			r.Post("/import-drive", s.handleImportDrive)
			r.Route("/{templateID}", func(r chi.Router) {
				r.Get("/", s.handleGetTemplate)
				r.Put("/", s.handleUpdateTemplate)
				r.Post("/sync", s.handleSyncTemplate)
				r.Post("/preview", s.handlePreview)
				r.Post("/duplicate", s.handleDuplicate)
			})
		})
	})
	return r
}

// Run starts the HTTP server and the event relay, blocking until the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Router(),
		}
	})

	go func() {
		if err := s.sub.Run(ctx, s.relay); err != nil {
			s.logger.Error("event relay stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api listening", "address", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// relay forwards worker events to connected websocket clients. Failure and
// template notifications are deduplicated inside a short window; progress
// and completion carry fresh payloads every time and always pass.
func (s *Server) relay(ev notify.Event) {
	switch ev.Type {
	case notify.TypeTaskFailed:
		if !s.dedup.Allow(ev.Type, ev.TaskID) {
			return
		}
	case notify.TypeTemplateUpdated, notify.TypeDocumentModified:
		if !s.dedup.Allow(ev.Type, ev.TemplateID) {
			return
		}
	}
	s.hub.Broadcast(ev)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"ws_clients":     s.hub.ClientCount(),
		"sync_queue_len": s.syncQ.Len(),
	})
}

type generateRequest struct {
	TemplateID string         `json:"template_id"`
	FormData   model.FormData `json:"form_data"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.TemplateID == "" {
		respondError(w, http.StatusBadRequest, "template_id é obrigatório")
		return
	}

	task, err := s.petitions.Submit(r.Context(), req.TemplateID, req.FormData)
	if err != nil {
		var vErr *petition.ValidationError
		switch {
		case errors.As(err, &vErr):
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"erro":   "dados inválidos",
				"campos": vErr.Problems,
			})
		case errors.Is(err, repository.ErrNotFound):
			respondError(w, http.StatusNotFound, "modelo não encontrado")
		case errors.Is(err, petition.ErrTemplateArchived):
			respondError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("submit failed", "template_id", req.TemplateID, "error", err)
			respondError(w, http.StatusInternalServerError, "falha ao enfileirar tarefa")
		}
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":  "sucesso_enfileirado",
		"task_id": task.ID,
	})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.petitions.Status(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "tarefa não encontrada")
			return
		}
		s.logger.Error("task status", "error", err)
		respondError(w, http.StatusInternalServerError, "falha ao consultar tarefa")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.petitions.Retry(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			respondError(w, http.StatusNotFound, "tarefa não encontrada")
		case errors.Is(err, petition.ErrNotFailed), errors.Is(err, petition.ErrNotRetryable):
			respondError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("retry failed", "error", err)
			respondError(w, http.StatusInternalServerError, "falha ao repetir tarefa")
		}
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":   "sucesso_enfileirado",
		"task_id":  task.ID,
		"retry_of": task.RetryOf,
	})
}

func (s *Server) handleFormSchema(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.loadTemplate(r, chi.URLParam(r, "templateID"))
	if err != nil {
		s.respondTemplateError(w, err)
		return
	}
	if tpl.Status != model.TemplatePublished {
		respondError(w, http.StatusNotFound, "modelo não publicado")
		return
	}
	respondJSON(w, http.StatusOK, schema.Build(tpl))
}

type autoFillRequest struct {
	TemplateID string                 `json:"template_id"`
	Clients    []*model.ClientRecord  `json:"clients"`
	Authority  *model.AuthorityRecord `json:"authority,omitempty"`
}

// handleAutoFill pre-fills a form from attached client records. Fields the
// records cannot answer stay absent and remain under manual control.
func (s *Server) handleAutoFill(w http.ResponseWriter, r *http.Request) {
	var req autoFillRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.TemplateID == "" {
		respondError(w, http.StatusBadRequest, "template_id é obrigatório")
		return
	}
	tpl, err := s.loadTemplate(r, req.TemplateID)
	if err != nil {
		s.respondTemplateError(w, err)
		return
	}
	fields := tpl.EffectiveFields()
	data := mapper.AutoFill(fields, req.Clients)
	for name, value := range mapper.FillAuthority(fields, req.Authority) {
		data[name] = value
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"form_data": data,
		"mappings":  mapper.Annotate(fields),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ListFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Status:   q.Get("status"),
		Page:     atoiDefault(q.Get("page"), 1),
		PerPage:  atoiDefault(q.Get("per_page"), 20),
	}
	templates, total, err := s.templates.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list templates", "error", err)
		respondError(w, http.StatusInternalServerError, "falha ao listar modelos")
		return
	}
	categories, statuses, err := s.templates.Facets(r.Context())
	if err != nil {
		s.logger.Error("template facets", "error", err)
		respondError(w, http.StatusInternalServerError, "falha ao listar modelos")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"templates": templates,
		"total":     total,
		"page":      filter.Page,
		"facets": map[string]any{
			"categories": categories,
			"statuses":   statuses,
		},
	})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "templateID")
	if r.URL.Query().Get("refresh") == "true" {
		s.tplCache.Invalidate(id)
	}
	tpl, err := s.loadTemplate(r, id)
	if err != nil {
		s.respondTemplateError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tpl)
}

type updateTemplateRequest struct {
	Name              *string          `json:"name"`
	Description       *string          `json:"description"`
	Category          *string          `json:"category"`
	Status            *string          `json:"status"`
	RequiredOverrides *map[string]bool `json:"required_overrides"`
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req updateTemplateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Status != nil && !model.TemplateStatus(*req.Status).Valid() {
		respondError(w, http.StatusBadRequest, "status inválido")
		return
	}
	if req.Category != nil && !model.TemplateCategory(*req.Category).Valid() {
		respondError(w, http.StatusBadRequest, "categoria inválida")
		return
	}
	tpl, err := s.templates.Get(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		s.respondTemplateError(w, err)
		return
	}

	archivingOnly := req.Name == nil && req.Description == nil && req.Category == nil &&
		req.RequiredOverrides == nil &&
		req.Status != nil && *req.Status == string(model.TemplateArchived)
	if !tpl.CanEdit() && !archivingOnly {
		respondError(w, http.StatusConflict, "modelo publicado ou arquivado aceita apenas arquivamento e duplicação")
		return
	}

	if req.Name != nil {
		tpl.Name = *req.Name
	}
	if req.Description != nil {
		tpl.Description = *req.Description
	}
	if req.Category != nil {
		tpl.Category = model.TemplateCategory(*req.Category)
	}
	if req.Status != nil {
		tpl.Status = model.TemplateStatus(*req.Status)
	}
	if req.RequiredOverrides != nil {
		tpl.RequiredOverrides = *req.RequiredOverrides
		// Re-apply pinned flags to the already detected fields so the change
		// is visible without waiting for the next sync.
		tpl.Fields = tpl.EffectiveFields()
	}

	if err := s.templates.Update(r.Context(), tpl); err != nil {
		s.logger.Error("update template", "template_id", tpl.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "falha ao salvar modelo")
		return
	}
	s.tplCache.Invalidate(tpl.ID)
	respondJSON(w, http.StatusOK, tpl)
}

type syncRequest struct {
	Priority string `json:"priority"`
}

func (s *Server) handleSyncTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "templateID")
	if _, err := s.templates.Get(r.Context(), id); err != nil {
		s.respondTemplateError(w, err)
		return
	}
	var req syncRequest
	if r.ContentLength > 0 && !s.decodeJSON(w, r, &req) {
		return
	}
	priority := syncqueue.PriorityHigh
	if req.Priority == syncqueue.PriorityNormal {
		priority = syncqueue.PriorityNormal
	}
	s.syncQ.Enqueue(syncqueue.Item{
		TemplateID: id,
		Reason:     syncqueue.ReasonManual,
		Priority:   priority,
	})
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "sincronizacao_enfileirada"})
}

type previewRequest struct {
	FormData model.FormData `json:"form_data"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	tpl, err := s.loadTemplate(r, chi.URLParam(r, "templateID"))
	if err != nil {
		s.respondTemplateError(w, err)
		return
	}
	raw, err := s.store.DownloadTemplate(r.Context(), tpl.DriveFileID)
	if err != nil {
		s.logger.Error("preview download", "template_id", tpl.ID, "error", err)
		respondError(w, http.StatusBadGateway, "falha ao baixar documento de origem")
		return
	}
	source, err := analyze.SourceText(raw)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	document, err := analyze.Render(source, tpl.EffectiveFields(), req.FormData)
	if err != nil {
		if errors.Is(err, analyze.ErrMissingRequired) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("preview render", "template_id", tpl.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "falha ao gerar prévia")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, document)
}

func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.templates.Get(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		s.respondTemplateError(w, err)
		return
	}
	copyTpl := *tpl
	copyTpl.ID = uuid.New().String()
	copyTpl.Name = tpl.Name + " (cópia)"
	copyTpl.Status = model.TemplateDraft
	copyTpl.UsageCount = 0
	copyTpl.AvgLatencyMS = 0
	if tpl.RequiredOverrides != nil {
		copyTpl.RequiredOverrides = make(map[string]bool, len(tpl.RequiredOverrides))
		for k, v := range tpl.RequiredOverrides {
			copyTpl.RequiredOverrides[k] = v
		}
	}
	if err := s.templates.Create(r.Context(), &copyTpl); err != nil {
		s.logger.Error("duplicate template", "template_id", tpl.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "falha ao duplicar modelo")
		return
	}
	respondJSON(w, http.StatusCreated, &copyTpl)
}

type scanRequest struct {
	FolderPrefix string `json:"folder_prefix"`
}

type scannedObject struct {
	docstore.TemplateObject
	AlreadyImported bool `json:"already_imported"`
}

func (s *Server) handleScanDriveFolder(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	objects, err := s.store.ListTemplates(r.Context(), req.FolderPrefix)
	if err != nil {
		s.logger.Error("scan folder", "prefix", req.FolderPrefix, "error", err)
		respondError(w, http.StatusBadGateway, "falha ao listar pasta")
		return
	}
	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	imported, err := s.templates.ExistingDriveFileIDs(r.Context(), keys)
	if err != nil {
		s.logger.Error("scan folder lookup", "error", err)
		respondError(w, http.StatusInternalServerError, "falha ao verificar modelos existentes")
		return
	}
	out := make([]scannedObject, len(objects))
	for i, obj := range objects {
		out[i] = scannedObject{TemplateObject: obj, AlreadyImported: imported[obj.Key]}
	}
	respondJSON(w, http.StatusOK, map[string]any{"objects": out, "total": len(out)})
}

type importRequest struct {
	ObjectKey string `json:"object_key"`
	Name      string `json:"name"`
	Category  string `json:"category"`
}

func (s *Server) handleImportDrive(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.ObjectKey == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "object_key e name são obrigatórios")
		return
	}
	category := model.TemplateCategory(req.Category)
	if category == "" {
		category = model.CategoryOutros
	}
	if !category.Valid() {
		respondError(w, http.StatusBadRequest, "categoria inválida")
		return
	}
	tpl := &model.Template{
		ID:          uuid.New().String(),
		DriveFileID: req.ObjectKey,
		Name:        req.Name,
		Category:    category,
		Status:      model.TemplateDraft,
	}
	if err := s.templates.Create(r.Context(), tpl); err != nil {
		s.logger.Error("import template", "object_key", req.ObjectKey, "error", err)
		respondError(w, http.StatusInternalServerError, "falha ao criar modelo")
		return
	}

	synced := true
	if err := s.syncer.Sync(r.Context(), tpl.ID); err != nil {
		// The row exists; the admin can trigger a re-sync once the store is
		// reachable again.
		s.logger.Warn("initial sync failed", "template_id", tpl.ID, "error", err)
		synced = false
	}
	created, err := s.templates.Get(r.Context(), tpl.ID)
	if err != nil {
		created = tpl
	}
	respondJSON(w, http.StatusCreated, map[string]any{"template": created, "synced": synced})
}

type driveWebhookRequest struct {
	FileID string `json:"file_id"`
}

func (s *Server) handleDriveWebhook(w http.ResponseWriter, r *http.Request) {
	var req driveWebhookRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	affected, err := s.templates.ListByDriveFileID(r.Context(), req.FileID)
	if err != nil {
		s.logger.Error("webhook lookup", "file_id", req.FileID, "error", err)
		respondError(w, http.StatusInternalServerError, "falha ao processar notificação")
		return
	}
	if len(affected) == 0 {
		// Notifications for files nobody imported are expected noise.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	for _, tpl := range affected {
		s.events.Publish(r.Context(), notify.Event{
			Type:       notify.TypeDocumentModified,
			TemplateID: tpl.ID,
			Message:    "documento de origem modificado",
		})
		s.syncQ.Enqueue(syncqueue.Item{
			TemplateID: tpl.ID,
			Reason:     syncqueue.ReasonWebhook,
			Priority:   syncqueue.PriorityNormal,
		})
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":    "sincronizacao_enfileirada",
		"templates": len(affected),
	})
}

// loadTemplate serves reads through the metadata cache.
func (s *Server) loadTemplate(r *http.Request, id string) (*model.Template, error) {
	if tpl := s.tplCache.Get(id); tpl != nil {
		return tpl, nil
	}
	tpl, err := s.templates.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	s.tplCache.Put(tpl)
	return tpl, nil
}

func (s *Server) respondTemplateError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, "modelo não encontrado")
		return
	}
	s.logger.Error("load template", "error", err)
	respondError(w, http.StatusInternalServerError, "falha ao carregar modelo")
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "corpo JSON inválido")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"erro": message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http request",
			"method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 1 {
		return def
	}
	return n
}

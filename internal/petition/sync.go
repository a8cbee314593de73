package petition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rbarbosa/peticionador/internal/analyze"
	"github.com/rbarbosa/peticionador/internal/model"
	"github.com/rbarbosa/peticionador/internal/notify"
)

// TemplateStore is the repository slice the syncer needs.
type TemplateStore interface {
	Get(ctx context.Context, id string) (*model.Template, error)
	Update(ctx context.Context, t *model.Template) error
}

// SourceDownloader fetches a template's source document from the drive
// store by object key.
type SourceDownloader interface {
	DownloadTemplate(ctx context.Context, objectKey string) ([]byte, error)
}

// EventPublisher pushes template_updated events; may be nil.
type EventPublisher interface {
	Publish(ctx context.Context, ev notify.Event)
}

// Invalidator drops a template from the metadata cache; may be nil.
type Invalidator interface {
	Invalidate(id string)
}

// Syncer re-reads a template's source document and regenerates its detected
// fields. Required overrides survive the regeneration.
type Syncer struct {
	templates TemplateStore
	sources   SourceDownloader
	events    EventPublisher
	cache     Invalidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewSyncer wires the syncer; events and cache may be nil.
func NewSyncer(templates TemplateStore, sources SourceDownloader, events EventPublisher, cache Invalidator, logger *slog.Logger) *Syncer {
	return &Syncer{
		templates: templates,
		sources:   sources,
		events:    events,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// Sync refreshes one template from its source document.
func (s *Syncer) Sync(ctx context.Context, templateID string) error {
	tpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	data, err := s.sources.DownloadTemplate(ctx, tpl.DriveFileID)
	if err != nil {
		return fmt.Errorf("download source %q: %w", tpl.DriveFileID, err)
	}
	text, err := analyze.SourceText(data)
	if err != nil {
		return fmt.Errorf("decode source %q: %w", tpl.DriveFileID, err)
	}

	tpl.Fields = analyze.Analyze(text, tpl.RequiredOverrides)
	syncedAt := s.now().UTC()
	tpl.LastSyncedAt = &syncedAt
	if err := s.templates.Update(ctx, tpl); err != nil {
		return fmt.Errorf("store template: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(tpl.ID)
	}
	if s.events != nil {
		s.events.Publish(ctx, notify.Event{
			Type:       notify.TypeTemplateUpdated,
			TemplateID: tpl.ID,
			Message:    fmt.Sprintf("%d campo(s) detectado(s)", len(tpl.Fields)),
		})
	}
	s.logger.Info("template synced", "template_id", tpl.ID, "fields", len(tpl.Fields))
	return nil
}

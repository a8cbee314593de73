// Package repository wraps all SQL used throughout the API and worker.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rbarbosa/peticionador/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("registro não encontrado")

// psql builds queries with $N placeholders for pgx.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// TemplateRepository persists petition templates.
type TemplateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository constructs a repository.
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

const templateColumns = `id, drive_file_id, folder_id, name, description, category, status,
	fields, required_overrides, usage_count, avg_latency_ms, last_synced_at, created_at, updated_at`

// Create inserts a new template.
func (r *TemplateRepository) Create(ctx context.Context, t *model.Template) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = model.TemplateDraft
	}
	fields, overrides, err := marshalTemplateJSON(t)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO templates (id, drive_file_id, folder_id, name, description, category, status,
			fields, required_overrides, usage_count, avg_latency_ms, last_synced_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, t.ID, t.DriveFileID, t.FolderID, t.Name, t.Description, t.Category, t.Status,
		fields, overrides, t.UsageCount, t.AvgLatencyMS, t.LastSyncedAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// Get returns a template by id.
func (r *TemplateRepository) Get(ctx context.Context, id string) (*model.Template, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=$1`, id)
	return scanTemplate(row)
}

// Update stores editable attributes plus the detected field set.
func (r *TemplateRepository) Update(ctx context.Context, t *model.Template) error {
	t.UpdatedAt = time.Now().UTC()
	fields, overrides, err := marshalTemplateJSON(t)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE templates
		SET name=$1, description=$2, category=$3, status=$4, fields=$5,
			required_overrides=$6, folder_id=$7, last_synced_at=$8, updated_at=$9
		WHERE id=$10
	`, t.Name, t.Description, t.Category, t.Status, fields, overrides,
		t.FolderID, t.LastSyncedAt, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByDriveFileID finds every template referencing a drive object, used
// by the change webhook to map file notifications back to templates.
// Duplicated templates share the source document, so this can return more
// than one row.
func (r *TemplateRepository) ListByDriveFileID(ctx context.Context, driveFileID string) ([]*model.Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM templates WHERE drive_file_id=$1`, driveFileID)
	if err != nil {
		return nil, fmt.Errorf("query by drive id: %w", err)
	}
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate by drive id: %w", err)
	}
	return out, nil
}

// ExistingDriveFileIDs reports which of the given drive object keys already
// back a template, so the folder scan can mark duplicates.
func (r *TemplateRepository) ExistingDriveFileIDs(ctx context.Context, keys []string) (map[string]bool, error) {
	if len(keys) == 0 {
		return map[string]bool{}, nil
	}
	query, args, err := psql.Select("drive_file_id").From("templates").
		Where(sq.Eq{"drive_file_id": keys}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build drive id query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query drive ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool, len(keys))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan drive id: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drive ids: %w", err)
	}
	return out, nil
}

// RecordUsage bumps the invocation counter and folds the new latency into
// the rolling average.
func (r *TemplateRepository) RecordUsage(ctx context.Context, id string, latency time.Duration) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE templates
		SET avg_latency_ms = (avg_latency_ms * usage_count + $1) / (usage_count + 1),
			usage_count = usage_count + 1,
			updated_at = $2
		WHERE id=$3
	`, latency.Milliseconds(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// ListFilter narrows the admin template listing.
type ListFilter struct {
	Search   string
	Category string
	Status   string
	Page     int
	PerPage  int
}

// List returns one page of templates plus the unpaged total. The query is
// assembled dynamically, every filter is optional.
func (r *TemplateRepository) List(ctx context.Context, f ListFilter) ([]*model.Template, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 20
	}

	base := psql.Select(templateColumns).From("templates")
	count := psql.Select("COUNT(*)").From("templates")
	if f.Search != "" {
		like := "%" + f.Search + "%"
		cond := sq.Or{sq.ILike{"name": like}, sq.ILike{"description": like}}
		base = base.Where(cond)
		count = count.Where(cond)
	}
	if f.Category != "" {
		base = base.Where(sq.Eq{"category": f.Category})
		count = count.Where(sq.Eq{"category": f.Category})
	}
	if f.Status != "" {
		base = base.Where(sq.Eq{"status": f.Status})
		count = count.Where(sq.Eq{"status": f.Status})
	}

	countSQL, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	listSQL, listArgs, err := base.
		OrderBy("updated_at DESC").
		Limit(uint64(f.PerPage)).
		Offset(uint64((f.Page - 1) * f.PerPage)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate templates: %w", err)
	}
	return out, total, nil
}

// Facet is one value of a filterable attribute with its population.
type Facet struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facets returns category and status distributions for the admin UI
// filter chips.
func (r *TemplateRepository) Facets(ctx context.Context) (categories, statuses []Facet, err error) {
	categories, err = r.facet(ctx, "category")
	if err != nil {
		return nil, nil, err
	}
	statuses, err = r.facet(ctx, "status")
	if err != nil {
		return nil, nil, err
	}
	return categories, statuses, nil
}

func (r *TemplateRepository) facet(ctx context.Context, column string) ([]Facet, error) {
	query, args, err := psql.
		Select(column, "COUNT(*)").
		From("templates").
		GroupBy(column).
		OrderBy(column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build facet query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("facet %s: %w", column, err)
	}
	defer rows.Close()
	var out []Facet
	for rows.Next() {
		var f Facet
		if err := rows.Scan(&f.Value, &f.Count); err != nil {
			return nil, fmt.Errorf("scan facet: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*model.Template, error) {
	var (
		t         model.Template
		fields    []byte
		overrides []byte
	)
	err := row.Scan(&t.ID, &t.DriveFileID, &t.FolderID, &t.Name, &t.Description,
		&t.Category, &t.Status, &fields, &overrides, &t.UsageCount,
		&t.AvgLatencyMS, &t.LastSyncedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &t.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &t.RequiredOverrides); err != nil {
			return nil, fmt.Errorf("decode overrides: %w", err)
		}
	}
	return &t, nil
}

func marshalTemplateJSON(t *model.Template) (fields, overrides []byte, err error) {
	if t.Fields == nil {
		t.Fields = []model.DetectedField{}
	}
	fields, err = json.Marshal(t.Fields)
	if err != nil {
		return nil, nil, fmt.Errorf("encode fields: %w", err)
	}
	if t.RequiredOverrides == nil {
		t.RequiredOverrides = map[string]bool{}
	}
	overrides, err = json.Marshal(t.RequiredOverrides)
	if err != nil {
		return nil, nil, fmt.Errorf("encode overrides: %w", err)
	}
	return fields, overrides, nil
}

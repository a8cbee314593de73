// Package model contains the struct definitions shared across packages.
package model

import (
	"time"
)

// TemplateStatus describes the editorial lifecycle of a petition template.
// Published and archived templates are never hard-deleted.
type TemplateStatus string

const (
	TemplateDraft     TemplateStatus = "draft"
	TemplateReviewing TemplateStatus = "reviewing"
	TemplatePublished TemplateStatus = "published"
	TemplateArchived  TemplateStatus = "archived"
)

// Valid reports whether the value is one of the known statuses. API input
// is checked against this before persisting; an unknown status would leave
// the template uneditable.
func (s TemplateStatus) Valid() bool {
	switch s {
	case TemplateDraft, TemplateReviewing, TemplatePublished, TemplateArchived:
		return true
	}
	return false
}

// TemplateCategory enumerates the petition types the product ships with.
type TemplateCategory string

const (
	CategorySuspensaoCondicional TemplateCategory = "suspensao-condicional"
	CategoryDefesaPrevia         TemplateCategory = "defesa-previa"
	CategoryRecursoJari          TemplateCategory = "recurso-jari"
	CategoryRecursoCetran        TemplateCategory = "recurso-cetran"
	CategoryConversaoAdvertencia TemplateCategory = "conversao-advertencia"
	CategoryOutros               TemplateCategory = "outros"
)

// Valid reports whether the value is one of the known categories.
func (c TemplateCategory) Valid() bool {
	switch c {
	case CategorySuspensaoCondicional, CategoryDefesaPrevia, CategoryRecursoJari,
		CategoryRecursoCetran, CategoryConversaoAdvertencia, CategoryOutros:
		return true
	}
	return false
}

// FieldType is the semantic type inferred for a template placeholder.
type FieldType string

const (
	FieldCPF      FieldType = "cpf"
	FieldCNPJ     FieldType = "cnpj"
	FieldCEP      FieldType = "cep"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "telefone"
	FieldDate     FieldType = "data"
	FieldCurrency FieldType = "moeda"
	FieldNumber   FieldType = "numero"
	FieldOAB      FieldType = "oab"
	FieldPlate    FieldType = "placa"
	FieldSelect   FieldType = "selecao"
	FieldLongText FieldType = "texto_longo"
	FieldText     FieldType = "texto"
)

// DetectedField is one placeholder found inside a template source document.
// Fields are regenerated wholesale on every sync.
type DetectedField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Label    string    `json:"label"`
	Required bool      `json:"required"`
	Position int       `json:"position"`
	Context  string    `json:"context,omitempty"`
}

// Template identifies a source document in the drive store plus everything
// the form layer derives from it.
type Template struct {
	ID          string           `json:"id"`
	DriveFileID string           `json:"drive_file_id"`
	FolderID    string           `json:"folder_id,omitempty"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Category    TemplateCategory `json:"category"`
	Status      TemplateStatus   `json:"status"`
	Fields      []DetectedField  `json:"fields,omitempty"`

	// RequiredOverrides pins the required flag for named fields across
	// resyncs, winning over the keyword heuristic.
	RequiredOverrides map[string]bool `json:"required_overrides,omitempty"`

	UsageCount   int64      `json:"usage_count"`
	AvgLatencyMS int64      `json:"avg_latency_ms"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CanEdit reports whether normal edits are still allowed; published and
// archived templates only accept archiving and duplication.
func (t *Template) CanEdit() bool {
	return t.Status == TemplateDraft || t.Status == TemplateReviewing
}

// EffectiveFields returns the detected fields with RequiredOverrides
// applied. Callers validating or rendering a submission must use this, not
// Fields, so admin decisions always win over the sync heuristic.
func (t *Template) EffectiveFields() []DetectedField {
	if len(t.RequiredOverrides) == 0 {
		return t.Fields
	}
	out := make([]DetectedField, len(t.Fields))
	copy(out, t.Fields)
	for i := range out {
		if req, ok := t.RequiredOverrides[out[i].Name]; ok {
			out[i].Required = req
		}
	}
	return out
}

// FormData maps placeholder names to the values a user typed in.
type FormData map[string]string

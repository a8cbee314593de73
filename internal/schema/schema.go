// Package schema builds the dynamic form definition a client renders for a
// template. The build is deterministic: same template analysis in, same
// schema out, no I/O.
package schema

import (
	"fmt"
	"math"
	"sort"

	"github.com/rbarbosa/peticionador/internal/mapper"
	"github.com/rbarbosa/peticionador/internal/model"
)

// sectionGap is the byte distance between consecutive placeholders beyond
// which a new section starts. Fields clustered in the same paragraph stay
// together; a page break apart means a new concern.
const sectionGap = 400

// Rule is a declarative validation rule mirrored by the client; the server
// re-validates regardless.
type Rule struct {
	Kind  string `json:"kind"`
	Param string `json:"param,omitempty"`
}

// Field is one form widget.
type Field struct {
	Name         string            `json:"name"`
	Type         model.FieldType   `json:"type"`
	Label        string            `json:"label"`
	Placeholder  string            `json:"placeholder,omitempty"`
	Required     bool              `json:"required"`
	Autocomplete string            `json:"autocomplete,omitempty"`
	// DataMapKey annotates which client-record attribute auto-fills this
	// field; empty means manual entry only.
	DataMapKey  string            `json:"data_map_key,omitempty"`
	RecordIndex int               `json:"record_index,omitempty"`
	Hints       map[string]string `json:"hints,omitempty"`
	Rules       []Rule            `json:"rules,omitempty"`
}

// Section groups fields that sit close together in the source document.
type Section struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// FormSchema is everything a client needs to render and pre-validate the
// fill-out form for one template.
type FormSchema struct {
	TemplateID string    `json:"template_id"`
	Sections   []Section `json:"sections"`
	// ComplexityScore is a normalized [0,1] weight of how demanding the
	// form is to fill.
	ComplexityScore  float64 `json:"complexity_score"`
	EstimatedMinutes int     `json:"estimated_minutes"`
}

// Build derives the form schema from a template's detected fields.
func Build(t *model.Template) *FormSchema {
	fields := append([]model.DetectedField(nil), t.Fields...)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Position < fields[j].Position })

	var sections []Section
	var current []Field
	lastPos := -1
	flush := func() {
		if len(current) == 0 {
			return
		}
		sections = append(sections, Section{
			Title:  fmt.Sprintf("Seção %d", len(sections)+1),
			Fields: current,
		})
		current = nil
	}
	for _, f := range fields {
		if lastPos >= 0 && f.Position-lastPos > sectionGap {
			flush()
		}
		current = append(current, buildField(t, f))
		lastPos = f.Position
	}
	flush()

	return &FormSchema{
		TemplateID:       t.ID,
		Sections:         sections,
		ComplexityScore:  complexity(fields),
		EstimatedMinutes: estimatedMinutes(fields),
	}
}

func buildField(t *model.Template, f model.DetectedField) Field {
	required := f.Required
	if pinned, ok := t.RequiredOverrides[f.Name]; ok {
		required = pinned
	}
	out := Field{
		Name:        f.Name,
		Type:        f.Type,
		Label:       f.Label,
		Placeholder: placeholderExample(f.Type),
		Required:    required,
		Hints:       hints(f.Type),
		Rules:       rules(f.Type, required),
	}
	out.Autocomplete = autocompleteSource(f.Name, f.Type)
	if m, ok := mapper.ResolveKey(f.Name); ok {
		out.DataMapKey = m.DataMapKey
		out.RecordIndex = m.RecordIndex
	}
	return out
}

func placeholderExample(t model.FieldType) string {
	switch t {
	case model.FieldCPF:
		return "000.000.000-00"
	case model.FieldCNPJ:
		return "00.000.000/0000-00"
	case model.FieldCEP:
		return "00000-000"
	case model.FieldEmail:
		return "nome@exemplo.com.br"
	case model.FieldPhone:
		return "(11) 98765-4321"
	case model.FieldDate:
		return "31/12/2026"
	case model.FieldCurrency:
		return "R$ 0,00"
	case model.FieldOAB:
		return "OAB/SP 123.456"
	case model.FieldPlate:
		return "ABC1D23"
	default:
		return ""
	}
}

// autocompleteByName binds well-known field names to their data sources;
// exact name match wins over the type binding.
var autocompleteByName = map[string]string{
	"nome":            "clientes",
	"nome_completo":   "clientes",
	"nome_autoridade": "autoridades",
	"orgao":           "autoridades",
	"autoridade":      "autoridades",
	"cidade":          "cidades",
	"estado":          "ufs",
	"uf":              "ufs",
}

var autocompleteByType = map[model.FieldType]string{
	model.FieldCPF:    "clientes",
	model.FieldCNPJ:   "clientes",
	model.FieldOAB:    "advogados",
	model.FieldSelect: "ufs",
}

func autocompleteSource(name string, t model.FieldType) string {
	if src, ok := autocompleteByName[name]; ok {
		return src
	}
	return autocompleteByType[t]
}

func hints(t model.FieldType) map[string]string {
	switch t {
	case model.FieldCurrency:
		return map[string]string{"precisao": "2", "moeda": "BRL"}
	case model.FieldDate:
		return map[string]string{"formato": "DD/MM/AAAA", "locale": "pt-BR"}
	case model.FieldLongText:
		return map[string]string{"linhas": "5"}
	case model.FieldPlate:
		return map[string]string{"caixa": "alta"}
	default:
		return nil
	}
}

func rules(t model.FieldType, required bool) []Rule {
	var out []Rule
	if required {
		out = append(out, Rule{Kind: "required"})
	}
	switch t {
	case model.FieldCPF, model.FieldCNPJ, model.FieldCEP, model.FieldEmail,
		model.FieldPhone, model.FieldDate, model.FieldCurrency, model.FieldPlate:
		out = append(out, Rule{Kind: string(t)})
	case model.FieldLongText:
		out = append(out, Rule{Kind: "max_length", Param: "10000"})
	default:
		out = append(out, Rule{Kind: "max_length", Param: "1000"})
	}
	return out
}

// expensive types carry double weight in the complexity score: they demand
// either lookups (documents, money amounts) or actual writing.
var expensiveTypes = map[model.FieldType]bool{
	model.FieldCPF:      true,
	model.FieldCNPJ:     true,
	model.FieldDate:     true,
	model.FieldCurrency: true,
	model.FieldLongText: true,
}

const complexityCeiling = 30.0

func complexity(fields []model.DetectedField) float64 {
	var weighted float64
	for _, f := range fields {
		if expensiveTypes[f.Type] {
			weighted += 2
		} else {
			weighted++
		}
	}
	return math.Min(1, weighted/complexityCeiling)
}

// fillSeconds is the average time a user spends on one field of each type.
var fillSeconds = map[model.FieldType]int{
	model.FieldText:     15,
	model.FieldLongText: 60,
	model.FieldCPF:      20,
	model.FieldCNPJ:     25,
	model.FieldCEP:      10,
	model.FieldEmail:    15,
	model.FieldPhone:    15,
	model.FieldDate:     10,
	model.FieldCurrency: 10,
	model.FieldNumber:   10,
	model.FieldOAB:      15,
	model.FieldPlate:    10,
	model.FieldSelect:   5,
}

func estimatedMinutes(fields []model.DetectedField) int {
	if len(fields) == 0 {
		return 0
	}
	total := 0
	for _, f := range fields {
		sec, ok := fillSeconds[f.Type]
		if !ok {
			sec = 15
		}
		total += sec
	}
	minutes := int(math.Ceil(float64(total) / 60))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

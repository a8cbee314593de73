// Package mapper resolves template field names to attributes of attached
// client records so forms can be auto-filled. Resolution is computed once
// per form build and exposed as annotations; nothing here keeps a per-field
// lookup table, because the field set changes whenever a template resyncs.
package mapper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rbarbosa/peticionador/internal/model"
)

// authorField captures "autor_2_cpf" style names: an optional ordinal plus
// the attribute. Templates written in English use "author"; both prefixes
// occur in imported documents.
var authorField = regexp.MustCompile(`^(?:autor|author)_(?:(\d+)_)?([a-z_]+)$`)

// authorityField captures "orgao_cidade" style names addressing the
// administrative body. There is always at most one authority per petition,
// so no ordinal.
var authorityField = regexp.MustCompile(`^orgao(?:_([a-z_]+))?$`)

// Mapping annotates one form field with the client attribute that fills it.
type Mapping struct {
	FieldName string `json:"field_name"`
	// DataMapKey is the attribute on the client record.
	DataMapKey string `json:"data_map_key"`
	// RecordIndex selects which attached record supplies the value, 1-based.
	RecordIndex int `json:"record_index"`
}

// ResolveKey maps a form field name to a client attribute key. It returns
// ok=false when the field has no recognized mapping, which callers must
// treat as "leave the field under manual control".
func ResolveKey(fieldName string) (Mapping, bool) {
	name := strings.ToLower(strings.TrimSpace(fieldName))
	if m := authorField.FindStringSubmatch(name); m != nil {
		attr := m[2]
		if !knownAttribute(attr) {
			return Mapping{}, false
		}
		idx := 1
		if m[1] != "" {
			parsed, err := strconv.Atoi(m[1])
			if err != nil || parsed < 1 {
				return Mapping{}, false
			}
			idx = parsed
		}
		return Mapping{FieldName: fieldName, DataMapKey: attr, RecordIndex: idx}, true
	}
	if knownAttribute(name) {
		return Mapping{FieldName: fieldName, DataMapKey: name, RecordIndex: 1}, true
	}
	return Mapping{}, false
}

// Annotate resolves every detected field in one pass.
func Annotate(fields []model.DetectedField) []Mapping {
	out := make([]Mapping, 0, len(fields))
	for _, f := range fields {
		if m, ok := ResolveKey(f.Name); ok {
			out = append(out, m)
		}
	}
	return out
}

// AutoFill produces form values for every annotated field that the attached
// records can answer. Fields without a mapping or whose record/attribute is
// missing are simply absent from the result.
func AutoFill(fields []model.DetectedField, records []*model.ClientRecord) model.FormData {
	data := make(model.FormData)
	for _, m := range Annotate(fields) {
		if m.RecordIndex > len(records) {
			continue
		}
		rec := records[m.RecordIndex-1]
		if rec == nil {
			continue
		}
		if v, ok := rec.Attribute(m.DataMapKey); ok && v != "" {
			data[m.FieldName] = v
		}
	}
	return data
}

// FillAuthority produces values for fields addressing the administrative
// body: "orgao" resolves to its name, "orgao_<attr>" to the attribute.
func FillAuthority(fields []model.DetectedField, authority *model.AuthorityRecord) model.FormData {
	data := make(model.FormData)
	if authority == nil {
		return data
	}
	for _, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		m := authorityField.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		attr := m[1]
		if attr == "" {
			attr = "orgao"
		}
		if v, ok := authority.Attribute(attr); ok && v != "" {
			data[f.Name] = v
		}
	}
	return data
}

func knownAttribute(key string) bool {
	var probe model.ClientRecord
	_, ok := probe.Attribute(key)
	return ok
}

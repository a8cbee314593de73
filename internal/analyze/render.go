package analyze

import (
	"errors"
	"fmt"

	"github.com/rbarbosa/peticionador/internal/model"
	"github.com/rbarbosa/peticionador/internal/validate"
)

// ErrMissingRequired marks a merge attempted without a required value; it
// is a permanent failure, retrying the same submission cannot fix it.
var ErrMissingRequired = errors.New("valor obrigatório ausente")

// Render merges form data into the template source. Every placeholder is
// replaced by its masked value; placeholders without a value render empty
// unless the field is required, which aborts the merge.
func Render(source string, fields []model.DetectedField, data model.FormData) (string, error) {
	byName := make(map[string]model.DetectedField, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(source, func(token string) string {
		m := placeholderPattern.FindStringSubmatch(token)
		name := m[1]
		value, has := data[name]
		field, known := byName[name]
		if !has || value == "" {
			if known && field.Required {
				missing = append(missing, name)
			}
			return ""
		}
		if known {
			return validate.Display(field.Type, value)
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %v", ErrMissingRequired, missing)
	}
	return out, nil
}

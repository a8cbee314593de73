// Package analyze turns template source documents into detected fields and
// merges filled forms back into them.
package analyze

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rbarbosa/peticionador/internal/infer"
	"github.com/rbarbosa/peticionador/internal/model"
)

// placeholderPattern matches {{campo}} tokens, tolerating inner whitespace.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([\p{L}0-9_]+)\s*\}\}`)

// contextWindow is how many bytes around a placeholder feed type inference
// and the required-keyword heuristic.
const contextWindow = 120

var requiredKeywords = []string{
	"obrigatório",
	"obrigatória",
	"obrigatorio",
	"obrigatoria",
	"necessário",
	"necessario",
	"deve conter",
	"preenchimento obrigatório",
}

// Placeholder is one raw token occurrence in the source.
type Placeholder struct {
	Name     string
	Position int
	Context  string
}

// Extract lists placeholders in document order. Repeated occurrences of the
// same token collapse into the first one.
func Extract(source string) []Placeholder {
	matches := placeholderPattern.FindAllStringSubmatchIndex(source, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		name := source[m[2]:m[3]]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Placeholder{
			Name:     name,
			Position: m[0],
			Context:  window(source, m[0], m[1]),
		})
	}
	return out
}

// Analyze produces the template's detected fields: extraction, type
// inference, label humanization and the best-effort required heuristic.
// Overrides pin the required flag for named fields across resyncs.
func Analyze(source string, overrides map[string]bool) []model.DetectedField {
	placeholders := Extract(source)
	fields := make([]model.DetectedField, 0, len(placeholders))
	for _, p := range placeholders {
		f := model.DetectedField{
			Name:     p.Name,
			Type:     infer.Infer(p.Name, p.Context),
			Label:    Humanize(p.Name),
			Position: p.Position,
			Context:  p.Context,
			Required: requiredInContext(p.Context),
		}
		if pinned, ok := overrides[p.Name]; ok {
			f.Required = pinned
		}
		fields = append(fields, f)
	}
	return fields
}

// Humanize converts snake_case or camelCase placeholder names into a
// sentence-cased label: "autor_1_nome" -> "Autor 1 nome".
func Humanize(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			b.WriteRune(' ')
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	label := strings.Join(strings.Fields(b.String()), " ")
	if label == "" {
		return name
	}
	first := []rune(label)
	first[0] = unicode.ToUpper(first[0])
	return string(first)
}

func requiredInContext(context string) bool {
	lower := strings.ToLower(context)
	for _, kw := range requiredKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func window(source string, start, end int) string {
	from := start - contextWindow
	if from < 0 {
		from = 0
	}
	to := end + contextWindow
	if to > len(source) {
		to = len(source)
	}
	// Avoid splitting a UTF-8 sequence at the window edges.
	for from > 0 && from < len(source) && !utf8Start(source[from]) {
		from--
	}
	for to < len(source) && !utf8Start(source[to]) {
		to++
	}
	// Neighboring tokens are noise for inference; the window keeps only the
	// surrounding prose.
	return placeholderPattern.ReplaceAllString(source[from:to], " ")
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

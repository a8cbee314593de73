// Package infer classifies template placeholders into semantic field types.
// Classification is an ordered rule table: the first matching pattern wins,
// so rules are declared narrow to general. The function is pure and total —
// unknown fields fall through a small heuristic and end up as plain text.
package infer

import (
	"regexp"
	"strings"

	"github.com/rbarbosa/peticionador/internal/model"
)

// rule pairs a field type with the pattern that claims it.
type rule struct {
	fieldType model.FieldType
	pattern   *regexp.Regexp
}

// Declaration order is significant: ties resolve to the earlier rule, which
// must therefore be the more specific one (cpf before generic number, plate
// before generic text and so on).
var rules = []rule{
	{model.FieldCPF, regexp.MustCompile(`\bcpf\b`)},
	{model.FieldCNPJ, regexp.MustCompile(`\bcnpj\b`)},
	{model.FieldCEP, regexp.MustCompile(`\bcep\b`)},
	{model.FieldOAB, regexp.MustCompile(`\boab\b`)},
	{model.FieldPlate, regexp.MustCompile(`\bplacas?\b`)},
	{model.FieldEmail, regexp.MustCompile(`\be ?mail\b`)},
	{model.FieldPhone, regexp.MustCompile(`telefone|celular|whatsapp|\bfone\b`)},
	{model.FieldDate, regexp.MustCompile(`\bdatas?\b|nascimento|vencimento|prazo|\bemissao\b|emiss[aã]o`)},
	{model.FieldCurrency, regexp.MustCompile(`valor|multa|honorari|pre[cç]o|r\$`)},
	{model.FieldSelect, regexp.MustCompile(`\buf\b|estado\s+civil`)},
	{model.FieldLongText, regexp.MustCompile(`observa[cç][oõ]es|descri[cç][aã]o|justificativa|fatos|argumenta[cç][aã]o|fundamenta[cç][aã]o`)},
	{model.FieldNumber, regexp.MustCompile(`n[uú]mero|\bn[ºo°]\b|\bait\b|quantidade|\brenavam\b|processo`)},
}

var (
	currencyHint = regexp.MustCompile(`R\$|\$`)
	dateHint     = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`)
)

// Infer returns the semantic type for a placeholder given its name and the
// text surrounding it in the source document. It never fails; the weakest
// answer is model.FieldText.
func Infer(fieldName, surroundingContext string) model.FieldType {
	// The name is stronger evidence than surrounding prose: a field called
	// valor_multa stays a currency even when the sentence before it talks
	// about dates. Rules therefore run twice, name-only first.
	if t, ok := match(fieldName); ok {
		return t
	}
	if t, ok := match(fieldName + " " + surroundingContext); ok {
		return t
	}
	// Heuristic fallback for fields no rule claims.
	if currencyHint.MatchString(surroundingContext) {
		return model.FieldCurrency
	}
	if dateHint.MatchString(surroundingContext) {
		return model.FieldDate
	}
	if len(surroundingContext) > 100 {
		return model.FieldLongText
	}
	return model.FieldText
}

func match(haystack string) (model.FieldType, bool) {
	haystack = strings.ToLower(haystack)
	// Snake and kebab separators would defeat \b in the rule patterns
	// (underscore counts as a word character).
	haystack = strings.NewReplacer("_", " ", "-", " ").Replace(haystack)
	for _, r := range rules {
		if r.pattern.MatchString(haystack) {
			return r.fieldType, true
		}
	}
	return "", false
}

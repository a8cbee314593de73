// Package validate implements the authoritative server-side validators.
// Clients mirror these rules for instant feedback, but submissions are
// always re-validated here before a generation job is accepted.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rbarbosa/peticionador/internal/model"
)

var (
	ErrRequired  = errors.New("campo obrigatório")
	ErrChecksum  = errors.New("dígito verificador inválido")
	ErrRepeated  = errors.New("sequência de dígitos repetidos")
	ErrBadFormat = errors.New("formato inválido")
)

var (
	nonDigits    = regexp.MustCompile(`\D`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	platePattern = regexp.MustCompile(`^[A-Z]{3}-?\d[A-Z0-9]\d{2}$`)
)

// Digits strips every non-digit character.
func Digits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

func allSame(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return len(digits) > 0
}

// CPF validates the 11-digit identifier including both modulo-11 check
// digits. All-repeated sequences such as 111.111.111-11 pass the arithmetic
// but are trivially invalid and rejected first.
func CPF(value string) error {
	d := Digits(value)
	if len(d) != 11 {
		return fmt.Errorf("cpf: %w", ErrBadFormat)
	}
	if allSame(d) {
		return fmt.Errorf("cpf: %w", ErrRepeated)
	}
	for _, pos := range []int{9, 10} {
		sum := 0
		weight := pos + 1
		for i := 0; i < pos; i++ {
			sum += int(d[i]-'0') * (weight - i)
		}
		check := 11 - sum%11
		if check >= 10 {
			check = 0
		}
		if int(d[pos]-'0') != check {
			return fmt.Errorf("cpf: %w", ErrChecksum)
		}
	}
	return nil
}

var (
	cnpjWeightsFirst  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsSecond = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// CNPJ validates the 14-digit company identifier, same scheme as CPF but
// with its own weight tables.
func CNPJ(value string) error {
	d := Digits(value)
	if len(d) != 14 {
		return fmt.Errorf("cnpj: %w", ErrBadFormat)
	}
	if allSame(d) {
		return fmt.Errorf("cnpj: %w", ErrRepeated)
	}
	for _, weights := range [][]int{cnpjWeightsFirst, cnpjWeightsSecond} {
		sum := 0
		for i, w := range weights {
			sum += int(d[i]-'0') * w
		}
		check := 11 - sum%11
		if check >= 10 {
			check = 0
		}
		if int(d[len(weights)]-'0') != check {
			return fmt.Errorf("cnpj: %w", ErrChecksum)
		}
	}
	return nil
}

// CEP validates the 8-digit postal code, with or without hyphen.
func CEP(value string) error {
	d := Digits(value)
	if len(d) != 8 {
		return fmt.Errorf("cep: %w", ErrBadFormat)
	}
	return nil
}

// Email performs a shallow structural check; deliverability is not our
// problem.
func Email(value string) error {
	if !emailPattern.MatchString(strings.TrimSpace(value)) {
		return fmt.Errorf("email: %w", ErrBadFormat)
	}
	return nil
}

// Phone accepts Brazilian landlines and mobiles: DDD plus 8 or 9 digits.
func Phone(value string) error {
	d := Digits(value)
	if len(d) < 10 || len(d) > 11 {
		return fmt.Errorf("telefone: %w", ErrBadFormat)
	}
	return nil
}

// Date accepts the pt-BR short form DD/MM/YYYY.
func Date(value string) error {
	if _, err := time.Parse("02/01/2006", strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("data: %w", ErrBadFormat)
	}
	return nil
}

// Currency accepts pt-BR money like "R$ 1.234,56", "1234,56" or "1500".
func Currency(value string) error {
	v := strings.TrimSpace(value)
	v = strings.TrimPrefix(v, "R$")
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("moeda: %w", ErrBadFormat)
	}
	for _, r := range v {
		if r != '.' && r != ',' && (r < '0' || r > '9') {
			return fmt.Errorf("moeda: %w", ErrBadFormat)
		}
	}
	return nil
}

// Plate accepts both the legacy ABC-1234 and the Mercosul ABC1D23 formats.
func Plate(value string) error {
	if !platePattern.MatchString(strings.ToUpper(strings.TrimSpace(value))) {
		return fmt.Errorf("placa: %w", ErrBadFormat)
	}
	return nil
}

// Length enforces inclusive bounds; max <= 0 means unbounded.
func Length(value string, min, max int) error {
	n := len([]rune(value))
	if n < min {
		return fmt.Errorf("mínimo de %d caracteres: %w", min, ErrBadFormat)
	}
	if max > 0 && n > max {
		return fmt.Errorf("máximo de %d caracteres: %w", max, ErrBadFormat)
	}
	return nil
}

// Field validates a single value against its detected field definition.
func Field(f model.DetectedField, value string) error {
	if strings.TrimSpace(value) == "" {
		if f.Required {
			return ErrRequired
		}
		return nil
	}
	switch f.Type {
	case model.FieldCPF:
		return CPF(value)
	case model.FieldCNPJ:
		return CNPJ(value)
	case model.FieldCEP:
		return CEP(value)
	case model.FieldEmail:
		return Email(value)
	case model.FieldPhone:
		return Phone(value)
	case model.FieldDate:
		return Date(value)
	case model.FieldCurrency:
		return Currency(value)
	case model.FieldPlate:
		return Plate(value)
	case model.FieldLongText:
		return Length(value, 1, 10000)
	default:
		return Length(value, 1, 1000)
	}
}

// Form validates a full submission against the template's fields and
// returns per-field messages, empty when everything passes. Unknown keys in
// the submission are ignored; templates change shape on resync and stale
// clients should not be rejected for extra values.
func Form(fields []model.DetectedField, data model.FormData) map[string]string {
	problems := make(map[string]string)
	for _, f := range fields {
		if err := Field(f, data[f.Name]); err != nil {
			problems[f.Name] = err.Error()
		}
	}
	return problems
}

package validate

import (
	"strings"

	"github.com/rbarbosa/peticionador/internal/model"
)

// MaskCPF formats 11 digits as 000.000.000-00. Values that are not exactly
// 11 digits are returned untouched.
func MaskCPF(value string) string {
	d := Digits(value)
	if len(d) != 11 {
		return value
	}
	return d[:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:]
}

// MaskCNPJ formats 14 digits as 00.000.000/0000-00.
func MaskCNPJ(value string) string {
	d := Digits(value)
	if len(d) != 14 {
		return value
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

// MaskCEP formats 8 digits as 12345-678.
func MaskCEP(value string) string {
	d := Digits(value)
	if len(d) != 8 {
		return value
	}
	return d[:5] + "-" + d[5:]
}

// MaskPhone formats 10 or 11 digits as (11) 3456-7890 / (11) 98765-4321.
func MaskPhone(value string) string {
	d := Digits(value)
	switch len(d) {
	case 10:
		return "(" + d[:2] + ") " + d[2:6] + "-" + d[6:]
	case 11:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:]
	default:
		return value
	}
}

// MaskCurrency normalizes money input to the "R$ 1.234,56" display form.
// Input already carrying the prefix is left as typed.
func MaskCurrency(value string) string {
	v := strings.TrimSpace(value)
	if v == "" || strings.HasPrefix(v, "R$") {
		return v
	}
	return "R$ " + v
}

// Display applies the type-specific mask used when merging values into the
// generated document.
func Display(t model.FieldType, value string) string {
	switch t {
	case model.FieldCPF:
		return MaskCPF(value)
	case model.FieldCNPJ:
		return MaskCNPJ(value)
	case model.FieldCEP:
		return MaskCEP(value)
	case model.FieldPhone:
		return MaskPhone(value)
	case model.FieldCurrency:
		return MaskCurrency(value)
	default:
		return value
	}
}

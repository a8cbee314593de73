package mapper

import (
	"testing"

	"github.com/rbarbosa/peticionador/internal/model"
)

func TestResolveKey(t *testing.T) {
	cases := []struct {
		field   string
		wantKey string
		wantIdx int
		wantOK  bool
	}{
		{"autor_2_cpf", "cpf", 2, true},
		{"autor_1_nome", "nome", 1, true},
		{"autor_cpf", "cpf", 1, true},
		{"author_3_email", "email", 3, true},
		{"cpf", "cpf", 1, true},
		{"cidade", "cidade", 1, true},
		{"autor_2_salario", "", 0, false},
		{"reu_cpf", "", 0, false},
		{"data_infracao", "", 0, false},
		{"autor_0_cpf", "", 0, false},
		{"", "", 0, false},
	}
	for _, tc := range cases {
		m, ok := ResolveKey(tc.field)
		if ok != tc.wantOK {
			t.Errorf("ResolveKey(%q) ok = %v, want %v", tc.field, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if m.DataMapKey != tc.wantKey || m.RecordIndex != tc.wantIdx {
			t.Errorf("ResolveKey(%q) = (%s, %d), want (%s, %d)",
				tc.field, m.DataMapKey, m.RecordIndex, tc.wantKey, tc.wantIdx)
		}
	}
}

func TestAutoFill(t *testing.T) {
	fields := []model.DetectedField{
		{Name: "autor_1_nome"},
		{Name: "autor_1_cpf"},
		{Name: "autor_2_nome"},
		{Name: "cidade"},
		{Name: "data_infracao"},
	}
	records := []*model.ClientRecord{
		{Nome: "João Silva Santos", CPF: "123.456.789-09", Cidade: "Curitiba"},
		{Nome: "Maria Oliveira"},
	}
	data := AutoFill(fields, records)

	want := map[string]string{
		"autor_1_nome": "João Silva Santos",
		"autor_1_cpf":  "123.456.789-09",
		"autor_2_nome": "Maria Oliveira",
		"cidade":       "Curitiba",
	}
	if len(data) != len(want) {
		t.Fatalf("AutoFill returned %d values, want %d: %v", len(data), len(want), data)
	}
	for k, v := range want {
		if data[k] != v {
			t.Errorf("data[%q] = %q, want %q", k, data[k], v)
		}
	}
	if _, ok := data["data_infracao"]; ok {
		t.Error("unmapped field must stay under manual control")
	}
}

func TestFillAuthority(t *testing.T) {
	fields := []model.DetectedField{
		{Name: "orgao"},
		{Name: "orgao_cidade"},
		{Name: "orgao_telefone"},
		{Name: "autor_1_nome"},
	}
	authority := &model.AuthorityRecord{Orgao: "DETRAN-PR", Nome: "Diretor Geral", Cidade: "Curitiba"}
	data := FillAuthority(fields, authority)

	if data["orgao"] != "DETRAN-PR" {
		t.Errorf("orgao = %q, want DETRAN-PR", data["orgao"])
	}
	if data["orgao_cidade"] != "Curitiba" {
		t.Errorf("orgao_cidade = %q, want Curitiba", data["orgao_cidade"])
	}
	if _, ok := data["orgao_telefone"]; ok {
		t.Error("unknown authority attribute must stay unfilled")
	}
	if _, ok := data["autor_1_nome"]; ok {
		t.Error("client fields must not be touched by the authority fill")
	}
	if got := FillAuthority(fields, nil); len(got) != 0 {
		t.Errorf("nil authority must fill nothing, got %v", got)
	}
}

func TestAutoFillMissingRecord(t *testing.T) {
	fields := []model.DetectedField{{Name: "autor_3_cpf"}}
	data := AutoFill(fields, []*model.ClientRecord{{CPF: "111.444.777-35"}})
	if len(data) != 0 {
		t.Fatalf("expected no fill for out-of-range record index, got %v", data)
	}
}

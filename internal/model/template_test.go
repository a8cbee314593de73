package model

import "testing"

func TestTemplateStatusValid(t *testing.T) {
	for _, s := range []TemplateStatus{TemplateDraft, TemplateReviewing, TemplatePublished, TemplateArchived} {
		if !s.Valid() {
			t.Errorf("%s must be valid", s)
		}
	}
	for _, s := range []TemplateStatus{"", "bogus", "DRAFT", "publicado"} {
		if s.Valid() {
			t.Errorf("%q must be rejected; an unknown status leaves the template uneditable", s)
		}
	}
}

func TestTemplateCategoryValid(t *testing.T) {
	for _, c := range []TemplateCategory{
		CategorySuspensaoCondicional, CategoryDefesaPrevia, CategoryRecursoJari,
		CategoryRecursoCetran, CategoryConversaoAdvertencia, CategoryOutros,
	} {
		if !c.Valid() {
			t.Errorf("%s must be valid", c)
		}
	}
	for _, c := range []TemplateCategory{"", "multas", "Outros"} {
		if c.Valid() {
			t.Errorf("%q must be rejected", c)
		}
	}
}

func TestEffectiveFieldsAppliesOverrides(t *testing.T) {
	tpl := &Template{
		Fields: []DetectedField{
			{Name: "autor_cpf", Required: true},
			{Name: "observacoes", Required: false},
		},
		RequiredOverrides: map[string]bool{"autor_cpf": false, "observacoes": true},
	}
	got := tpl.EffectiveFields()
	if got[0].Required || !got[1].Required {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if tpl.Fields[0].Required != true {
		t.Fatal("EffectiveFields must not mutate the stored fields")
	}
}

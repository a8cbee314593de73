package model

// PartyKind distinguishes natural persons from legal entities.
type PartyKind string

const (
	PartyNatural PartyKind = "pessoa_fisica"
	PartyLegal   PartyKind = "pessoa_juridica"
)

// ClientRecord is a stored party used to auto-fill author fields. The core
// treats these as read-only: they are sourced from the registration side of
// the product.
type ClientRecord struct {
	ID       string    `json:"id"`
	Kind     PartyKind `json:"kind"`
	Nome     string    `json:"nome"`
	CPF      string    `json:"cpf,omitempty"`
	CNPJ     string    `json:"cnpj,omitempty"`
	RG       string    `json:"rg,omitempty"`
	CNH      string    `json:"cnh,omitempty"`
	Email    string    `json:"email,omitempty"`
	Telefone string    `json:"telefone,omitempty"`
	Endereco string    `json:"endereco,omitempty"`
	Numero   string    `json:"numero,omitempty"`
	Bairro   string    `json:"bairro,omitempty"`
	Cidade   string    `json:"cidade,omitempty"`
	Estado   string    `json:"estado,omitempty"`
	CEP      string    `json:"cep,omitempty"`
}

// Attribute resolves a mapped attribute key to its value. The key set here
// is the vocabulary the client-data mapper resolves against.
func (c *ClientRecord) Attribute(key string) (string, bool) {
	switch key {
	case "nome":
		return c.Nome, true
	case "cpf":
		return c.CPF, true
	case "cnpj":
		return c.CNPJ, true
	case "rg":
		return c.RG, true
	case "cnh":
		return c.CNH, true
	case "email":
		return c.Email, true
	case "telefone":
		return c.Telefone, true
	case "endereco":
		return c.Endereco, true
	case "numero":
		return c.Numero, true
	case "bairro":
		return c.Bairro, true
	case "cidade":
		return c.Cidade, true
	case "estado":
		return c.Estado, true
	case "cep":
		return c.CEP, true
	}
	return "", false
}

// AuthorityRecord is the administrative body a petition is addressed to.
type AuthorityRecord struct {
	ID     string `json:"id"`
	Nome   string `json:"nome"`
	Orgao  string `json:"orgao"`
	Cidade string `json:"cidade,omitempty"`
	Estado string `json:"estado,omitempty"`
}

// Attribute resolves a mapped attribute key against the authority.
func (a *AuthorityRecord) Attribute(key string) (string, bool) {
	switch key {
	case "nome":
		return a.Nome, true
	case "orgao":
		return a.Orgao, true
	case "cidade":
		return a.Cidade, true
	case "estado":
		return a.Estado, true
	}
	return "", false
}

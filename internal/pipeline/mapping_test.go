package pipeline

import (
	"testing"

	"loteiro/internal"
)

func TestDetectField(t *testing.T) {
	cases := map[string]internal.FieldID{
		"Número":          internal.FieldNumero,
		"nº":              internal.FieldNumero,
		"Lote":            internal.FieldNumero,
		"Quadra":          internal.FieldBloco,
		"Tipologia":       internal.FieldTipologia,
		"Pavimento":       internal.FieldAndar,
		"Área Privativa":  internal.FieldAreaPrivativa,
		"Valor (R$)":      internal.FieldValor,
		"Situação":        internal.FieldStatus,
		"Observações":     internal.FieldObservacoes,
		"xyz":             "",
	}
	for header, want := range cases {
		if got := DetectField(header); got != want {
			t.Fatalf("DetectField(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestAutoDetectMappingFirstClaimWins(t *testing.T) {
	columns := []string{"Número", "Unidade", "Quadra", "Valor"}
	mapping := AutoDetectMapping(columns)
	if mapping[internal.FieldNumero] != "Número" {
		t.Fatalf("numero mapped to %q", mapping[internal.FieldNumero])
	}
	if mapping[internal.FieldBloco] != "Quadra" {
		t.Fatalf("bloco mapped to %q", mapping[internal.FieldBloco])
	}
	if mapping[internal.FieldValor] != "Valor" {
		t.Fatalf("valor mapped to %q", mapping[internal.FieldValor])
	}
}

func TestValidateMappingRequiresNumero(t *testing.T) {
	columns := []string{"Quadra"}
	mapping := AutoDetectMapping(columns)
	if err := ValidateMapping(mapping, columns); err == nil {
		t.Fatal("expected error for missing numero mapping")
	}
	mapping[internal.FieldNumero] = "Quadra"
	if err := ValidateMapping(mapping, columns); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mapping[internal.FieldNumero] = "inexistente"
	if err := ValidateMapping(mapping, columns); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

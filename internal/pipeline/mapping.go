package pipeline

import (
	"fmt"
	"strings"

	"loteiro/internal"
	"loteiro/internal/util"
)

// fieldAliases drives header auto-detection. A column matches a field when
// its normalized header equals or contains one of the aliases; fields are
// probed in internal.Fields order and the first hit wins.
var fieldAliases = map[internal.FieldID][]string{
	internal.FieldNumero:        {"numero", "num", "número", "nº", "unidade", "lote", "un"},
	internal.FieldBloco:         {"bloco", "quadra", "torre", "bl", "qd"},
	internal.FieldTipologia:     {"tipologia", "tipo", "planta", "modelo"},
	internal.FieldAndar:         {"andar", "pavimento", "pav"},
	internal.FieldAreaPrivativa: {"area privativa", "área privativa", "area", "área", "m2", "m²", "metragem"},
	internal.FieldValor:         {"valor", "preço", "preco", "r$"},
	internal.FieldStatus:        {"status", "situação", "situacao", "disponibilidade"},
	internal.FieldDescricao:     {"descrição", "descricao", "desc"},
	internal.FieldObservacoes:   {"observações", "observacoes", "obs"},
}

// DetectField proposes the system field a column header belongs to, or ""
// when no alias matches.
func DetectField(columnName string) internal.FieldID {
	header := util.NormalizeHeader(columnName)
	if header == "" {
		return ""
	}
	for _, field := range internal.Fields {
		for _, alias := range fieldAliases[field] {
			if header == alias || strings.Contains(header, alias) {
				return field
			}
		}
	}
	return ""
}

// AutoDetectMapping walks the columns in file order and claims each detected
// field once; later columns never steal a claimed field.
func AutoDetectMapping(columns []string) internal.ColumnMapping {
	mapping := internal.ColumnMapping{}
	for _, field := range internal.Fields {
		mapping[field] = ""
	}
	for _, col := range columns {
		field := DetectField(col)
		if field == "" {
			continue
		}
		if mapping[field] == "" {
			mapping[field] = col
		}
	}
	return mapping
}

// ValidateMapping gates advancement past the mapping stage.
func ValidateMapping(mapping internal.ColumnMapping, columns []string) error {
	if mapping[internal.FieldNumero] == "" {
		return fmt.Errorf("a coluna de número é obrigatória no mapeamento")
	}
	known := map[string]bool{}
	for _, col := range columns {
		known[col] = true
	}
	for field, col := range mapping {
		if col != "" && !known[col] {
			return fmt.Errorf("coluna %q mapeada para %s não existe no arquivo", col, field)
		}
	}
	return nil
}

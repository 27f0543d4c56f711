package pipeline

import (
	"fmt"
	"strings"

	"loteiro/internal"
	"loteiro/internal/util"
)

// ProcessRows turns every raw row into a validated ImportRow using the
// frozen column mapping and value resolutions. Pure, per-row independent
// computation except for the running intra-file duplicate set.
func ProcessRows(
	rows []internal.RawRow,
	mapping internal.ColumnMapping,
	blocoRes, tipologiaRes map[string]*internal.ValueResolution,
	existing []internal.UnidadeRecord,
) []internal.ImportRow {
	seen := map[string]struct{}{}
	out := make([]internal.ImportRow, 0, len(rows))

	for _, raw := range rows {
		row := processRow(raw, mapping, blocoRes, tipologiaRes)

		key := duplicateKey(row.Fields.Numero, row.Fields.BlocoID)
		if _, dup := seen[key]; dup {
			row.Errors = append(row.Errors, "Linha duplicada no arquivo")
		} else {
			seen[key] = struct{}{}
		}

		if id := findExisting(existing, row.Fields.Numero, row.Fields.BlocoID); id != nil {
			row.Duplicate = true
			row.ExistingID = id
		}

		row.Valid = len(row.Errors) == 0
		out = append(out, row)
	}

	return out
}

func processRow(
	raw internal.RawRow,
	mapping internal.ColumnMapping,
	blocoRes, tipologiaRes map[string]*internal.ValueResolution,
) internal.ImportRow {
	row := internal.ImportRow{LineNo: raw.LineNo, Errors: []string{}, Warnings: []string{}}

	row.Fields.Numero = strings.TrimSpace(mapping.Cell(raw, internal.FieldNumero))
	if row.Fields.Numero == "" {
		row.Errors = append(row.Errors, "Número é obrigatório")
	}

	blocoRaw := strings.TrimSpace(mapping.Cell(raw, internal.FieldBloco))
	row.Fields.BlocoID = ResolvedID(blocoRes, blocoRaw)
	if blocoRaw != "" && row.Fields.BlocoID == nil {
		row.Warnings = append(row.Warnings, fmt.Sprintf("%s %q não mapeado", internal.RefBloco.Label(), blocoRaw))
	}

	tipologiaRaw := strings.TrimSpace(mapping.Cell(raw, internal.FieldTipologia))
	row.Fields.TipologiaID = ResolvedID(tipologiaRes, tipologiaRaw)
	if tipologiaRaw != "" && row.Fields.TipologiaID == nil {
		row.Warnings = append(row.Warnings, fmt.Sprintf("%s %q não mapeado", internal.RefTipologia.Label(), tipologiaRaw))
	}

	if andarRaw := strings.TrimSpace(mapping.Cell(raw, internal.FieldAndar)); andarRaw != "" {
		row.Fields.Andar = util.ParseAndar(andarRaw)
	}

	if areaRaw := strings.TrimSpace(mapping.Cell(raw, internal.FieldAreaPrivativa)); areaRaw != "" {
		if area, ok := util.ParseArea(areaRaw); ok {
			row.Fields.AreaPrivativa = util.FloatPtr(area)
		} else {
			row.Errors = append(row.Errors, "Área deve ser numérica")
		}
	}

	if valorRaw := strings.TrimSpace(mapping.Cell(raw, internal.FieldValor)); valorRaw != "" {
		if valor, ok := util.ParseValor(valorRaw); ok {
			row.Fields.Valor = util.FloatPtr(valor)
		} else {
			row.Errors = append(row.Errors, "Valor deve ser numérico")
		}
	}

	statusRaw := strings.TrimSpace(mapping.Cell(raw, internal.FieldStatus))
	if statusRaw == "" {
		row.Fields.Status = internal.StatusDisponivel
	} else if status, ok := parseStatus(statusRaw); ok {
		row.Fields.Status = status
	} else {
		row.Errors = append(row.Errors, "Status inválido: "+statusRaw)
	}

	row.Fields.Descricao = strings.TrimSpace(mapping.Cell(raw, internal.FieldDescricao))
	row.Fields.Observacoes = strings.TrimSpace(mapping.Cell(raw, internal.FieldObservacoes))

	return row
}

func parseStatus(raw string) (internal.UnidadeStatus, bool) {
	for _, status := range internal.UnidadeStatuses {
		if strings.EqualFold(raw, string(status)) {
			return status, true
		}
	}
	return "", false
}

// duplicateKey is the composite identity of a unidade within one upload.
func duplicateKey(numero string, blocoID *int64) string {
	if blocoID == nil {
		return numero + "__NULL"
	}
	return fmt.Sprintf("%s__%d", numero, *blocoID)
}

func findExisting(existing []internal.UnidadeRecord, numero string, blocoID *int64) *int64 {
	for _, unidade := range existing {
		if unidade.Numero != numero {
			continue
		}
		if blocoID == nil && unidade.BlocoID == nil {
			id := unidade.ID
			return &id
		}
		if blocoID != nil && unidade.BlocoID != nil && *blocoID == *unidade.BlocoID {
			id := unidade.ID
			return &id
		}
	}
	return nil
}

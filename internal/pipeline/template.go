package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// TemplateHeaders is the fixed layout offered for download; the aliases in
// mapping.go recognize every one of them.
var TemplateHeaders = []string{
	"Número", "Bloco", "Tipologia", "Andar",
	"Área Privativa", "Valor", "Status", "Descrição", "Observações",
}

var templateExampleRow = []any{
	"01", "Quadra A", "Lote Padrão", 1, "250,00", "R$ 150.000,00", "disponivel",
	"Lote de esquina", "",
}

// WriteTemplateXLSX produces the import template with one example row.
func WriteTemplateXLSX(outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	for i, h := range TemplateHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, v := range templateExampleRow {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheet, cell, v)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		end, _ := excelize.CoordinatesToCellName(len(TemplateHeaders), 1)
		_ = f.SetCellStyle(sheet, "A1", end, style)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

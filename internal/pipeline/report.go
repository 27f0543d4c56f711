package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"loteiro/internal"
)

// RowDiagnostic is the user-facing fate of one row after the preview or the
// final commit. No row is ever silently dropped.
type RowDiagnostic struct {
	LineNo   int
	Numero   string
	Fate     internal.RowFate
	Errors   []string
	Warnings []string
}

// RowFateFor classifies what the commit will do (or did) with a row under
// the given duplicate policy.
func RowFateFor(row internal.ImportRow, policy internal.DuplicatePolicy) internal.RowFate {
	switch {
	case !row.Valid:
		return internal.FateSkippedError
	case row.Duplicate && policy == internal.PolicyUpdate:
		return internal.FateUpdated
	case row.Duplicate:
		return internal.FateSkippedDuplicate
	default:
		return internal.FateCreated
	}
}

// Summarize aggregates the four commit buckets. Created + Updated + Skipped
// + Errors always equals the total row count.
func Summarize(rows []internal.ImportRow, policy internal.DuplicatePolicy) internal.CommitResult {
	result := internal.CommitResult{}
	for _, row := range rows {
		switch RowFateFor(row, policy) {
		case internal.FateCreated:
			result.Created++
		case internal.FateUpdated:
			result.Updated++
		case internal.FateSkippedDuplicate:
			result.Skipped++
		case internal.FateSkippedError:
			result.Errors++
		}
	}
	return result
}

// BuildDiagnostics exposes every row's fate and messages for display or
// export.
func BuildDiagnostics(rows []internal.ImportRow, policy internal.DuplicatePolicy) []RowDiagnostic {
	out := make([]RowDiagnostic, 0, len(rows))
	for _, row := range rows {
		out = append(out, RowDiagnostic{
			LineNo:   row.LineNo,
			Numero:   row.Fields.Numero,
			Fate:     RowFateFor(row, policy),
			Errors:   row.Errors,
			Warnings: row.Warnings,
		})
	}
	return out
}

// ErrorRows filters the rows that carry at least one error.
func ErrorRows(rows []internal.ImportRow) []internal.ImportRow {
	out := []internal.ImportRow{}
	for _, row := range rows {
		if len(row.Errors) > 0 {
			out = append(out, row)
		}
	}
	return out
}

// ExportDiagnosticsXLSX writes the per-row diagnostics to a spreadsheet the
// user can keep alongside the original upload.
func ExportDiagnosticsXLSX(diagnostics []RowDiagnostic, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{"linha", "numero", "resultado", "erros", "avisos"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, diag := range diagnostics {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}
		set(1, diag.LineNo)
		set(2, diag.Numero)
		set(3, string(diag.Fate))
		set(4, strings.Join(diag.Errors, "; "))
		set(5, strings.Join(diag.Warnings, "; "))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

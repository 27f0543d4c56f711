package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"loteiro/internal"
)

// Table is the loader's output: the header columns in file order and the
// raw data rows, numbered from 1 starting after the header.
type Table struct {
	Columns []string
	Rows    []internal.RawRow
}

// LoadTable parses an uploaded tabular file. The format is picked from the
// file name extension. Pure parse, no side effects.
func LoadTable(name string, blob []byte) (Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return parseXLSX(blob)
	case ".csv":
		return parseCSV(blob)
	case ".html", ".htm":
		return parseHTMLTable(blob)
	case ".pdf":
		return parsePDFTable(blob)
	case ".eml":
		return parseEMLAttachment(blob)
	default:
		return Table{}, fmt.Errorf("formato de arquivo não suportado: %s", filepath.Ext(name))
	}
}

func parseXLSX(blob []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return Table{}, fmt.Errorf("não foi possível ler a planilha: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("planilha sem abas")
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("não foi possível ler a planilha: %w", err)
	}
	return tableFromGrid(grid)
}

func parseCSV(blob []byte) (Table, error) {
	reader := csv.NewReader(bytes.NewReader(blob))
	reader.FieldsPerRecord = -1
	firstLine, _, _ := strings.Cut(string(blob), "\n")
	if strings.Contains(firstLine, ";") && !strings.Contains(firstLine, ",") {
		reader.Comma = ';'
	}

	grid, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("não foi possível ler o CSV: %w", err)
	}
	return tableFromGrid(grid)
}

func parseHTMLTable(blob []byte) (Table, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(blob))
	if err != nil {
		return Table{}, fmt.Errorf("não foi possível ler o HTML: %w", err)
	}

	grid := [][]string{}
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return true
		}
		rows.Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})
			grid = append(grid, cells)
		})
		return false
	})

	if len(grid) == 0 {
		return Table{}, fmt.Errorf("nenhuma tabela encontrada no HTML")
	}
	return tableFromGrid(grid)
}

var rePDFColumns = regexp.MustCompile(`\t|\s{2,}`)

func parsePDFTable(blob []byte) (Table, error) {
	r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return Table{}, fmt.Errorf("não foi possível ler o PDF: %w", err)
	}

	grid := [][]string{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range splitLines(text) {
			grid = append(grid, rePDFColumns.Split(line, -1))
		}
	}

	if len(grid) == 0 {
		return Table{}, fmt.Errorf("nenhum texto tabular encontrado no PDF")
	}
	return tableFromGrid(grid)
}

// parseEMLAttachment accepts a raw e-mail and imports the first spreadsheet
// attachment found, so a forwarded planilha can be fed in directly.
func parseEMLAttachment(blob []byte) (Table, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(blob))
	if err != nil {
		return Table{}, fmt.Errorf("não foi possível ler o e-mail: %w", err)
	}

	for _, att := range env.Attachments {
		lower := strings.ToLower(strings.TrimSpace(att.FileName))
		if strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm") || strings.HasSuffix(lower, ".csv") {
			return LoadTable(lower, att.Content)
		}
	}
	return Table{}, fmt.Errorf("e-mail sem anexo de planilha")
}

func tableFromGrid(grid [][]string) (Table, error) {
	headerIdx := -1
	for i, row := range grid {
		if !rowIsBlank(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return Table{}, nil
	}

	columns := make([]string, 0, len(grid[headerIdx]))
	for i, cell := range grid[headerIdx] {
		name := normalizeSpaces(cell)
		if name == "" {
			name = fmt.Sprintf("coluna_%d", i+1)
		}
		columns = append(columns, name)
	}

	rows := make([]internal.RawRow, 0, len(grid)-headerIdx-1)
	for i, row := range grid[headerIdx+1:] {
		if rowIsBlank(row) {
			continue
		}
		cells := make(map[string]string, len(columns))
		for c, col := range columns {
			if c < len(row) {
				cells[col] = strings.TrimSpace(row[c])
			} else {
				cells[col] = ""
			}
		}
		rows = append(rows, internal.RawRow{LineNo: i + 1, Cells: cells})
	}

	return Table{Columns: columns, Rows: rows}, nil
}

func rowIsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var reSpaces = regexp.MustCompile(`\s+`)

func normalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

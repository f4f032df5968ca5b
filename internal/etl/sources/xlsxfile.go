package sources

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"sheetsync/internal/etl"
)

// ── XLSX File Source ────────────────────────────────────────
// Reads rows from one sheet of an Excel workbook. Numeric cells come back
// as int64 or float64, booleans as bool, and date-formatted or text cells
// as their displayed string. Rows with no values are skipped.

type xlsxFileSource struct{}

func init() { etl.RegisterSource(&xlsxFileSource{}) }

func (s *xlsxFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:       "xlsx_file",
		Label:      "Excel Workbook",
		Extensions: []string{".xlsx", ".xlsm"},
		ConfigFields: []etl.ConfigField{
			{Key: "path", Label: "File Path", Type: "file", Required: true, Help: "Path to the .xlsx workbook"},
			{Key: "sheet", Label: "Sheet", Type: "string", Required: false, Help: "Sheet name (default: the active sheet)"},
		},
	}
}

func (s *xlsxFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (etl.ColumnList, error) {
	f, sheet, err := openWorkbook(cfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := readSheet(f, sheet)
	if err != nil {
		return nil, err
	}
	return headerColumns(data.header), nil
}

func (s *xlsxFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Row, <-chan error) {
	out := make(chan etl.Row, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, sheet, err := openWorkbook(cfg)
		if err != nil {
			errCh <- err
			return
		}
		defer f.Close()

		data, err := readSheet(f, sheet)
		if err != nil {
			errCh <- err
			return
		}
		for _, row := range data.rows {
			select {
			case out <- row:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

// Annotate sets the marker cell on matched rows and saves the workbook in
// place. Cells of other rows are not written.
func (s *xlsxFileSource) Annotate(ctx context.Context, cfg etl.SourceConfig, primaryKey, marker string, keys map[string]bool, value string) (int, error) {
	f, sheet, err := openWorkbook(cfg)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	data, err := readSheet(f, sheet)
	if err != nil {
		return 0, err
	}
	pk := columnIndex(data.header, primaryKey)
	if pk < 0 {
		return 0, fmt.Errorf("primary key column %q not found", primaryKey)
	}

	markerCol := columnIndex(data.header, marker)
	if markerCol < 0 {
		if data.overflowRow > 0 {
			return 0, fmt.Errorf("row %d has values past the last header column; add a %q header to annotate", data.overflowRow, marker)
		}
		markerCol = len(data.header)
		cell, err := excelize.CoordinatesToCellName(markerCol+1, 1)
		if err != nil {
			return 0, err
		}
		if err := f.SetCellValue(sheet, cell, marker); err != nil {
			return 0, fmt.Errorf("set marker header: %w", err)
		}
	}

	marked := 0
	for _, row := range data.rows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		key, ok := etl.KeyString(row.Values[pk])
		if !ok || !keys[key] {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(markerCol+1, row.Index)
		if err != nil {
			return 0, err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return 0, fmt.Errorf("set marker %s: %w", cell, err)
		}
		marked++
	}

	if err := f.Save(); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}
	return marked, nil
}

// ── Workbook reading ───────────────────────────────────────

type sheetData struct {
	header      []string
	rows        []etl.Row // values aligned with header, Index is the sheet row
	overflowRow int       // first sheet row with a cell past the header, 0 if none
}

func openWorkbook(cfg etl.SourceConfig) (*excelize.File, string, error) {
	path := cfg.String("path", "")
	if path == "" {
		return nil, "", fmt.Errorf("path is required")
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("open workbook: %w", err)
	}

	sheet := cfg.String("sheet", "")
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		f.Close()
		return nil, "", fmt.Errorf("sheet %q not found", sheet)
	}
	return f, sheet, nil
}

func readSheet(f *excelize.File, sheet string) (*sheetData, error) {
	formatted, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(formatted) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	data := &sheetData{header: formatted[0]}
	width := len(data.header)
	for r := 1; r < len(formatted); r++ {
		if data.overflowRow == 0 && hasCellPast(formatted[r], width) {
			data.overflowRow = r + 1
		}
		vals := make([]any, width)
		empty := true
		for c := 0; c < width; c++ {
			v, err := cellValue(f, sheet, c, r, cellAt(raw, r, c), cellAt(formatted, r, c))
			if err != nil {
				return nil, err
			}
			if v != nil {
				empty = false
			}
			vals[c] = v
		}
		if empty {
			continue
		}
		data.rows = append(data.rows, etl.Row{Index: r + 1, Values: vals})
	}
	return data, nil
}

func hasCellPast(row []string, width int) bool {
	for c := width; c < len(row); c++ {
		if row[c] != "" {
			return true
		}
	}
	return false
}

func cellAt(rows [][]string, r, c int) string {
	if r < len(rows) && c < len(rows[r]) {
		return rows[r][c]
	}
	return ""
}

// cellValue types one cell from its stored and displayed text.
func cellValue(f *excelize.File, sheet string, col, row int, raw, formatted string) (any, error) {
	if raw == "" && formatted == "" {
		return nil, nil
	}
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return nil, err
	}
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return nil, fmt.Errorf("cell %s: %w", name, err)
	}

	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if n, ok := parseNumber(raw); ok && isNumeric(formatted) {
			return n, nil
		}
	}
	return formatted, nil
}

// parseNumber returns int64 for integral values and float64 otherwise.
func parseNumber(s string) (any, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	fv, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(fv, 0) || math.IsNaN(fv) {
		return nil, false
	}
	if fv == math.Trunc(fv) && math.Abs(fv) < 1<<53 {
		return int64(fv), true
	}
	return fv, true
}

// isNumeric reports whether a displayed value is a plain number, allowing
// thousands separators. Dates, percentages and currency are not.
func isNumeric(s string) bool {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

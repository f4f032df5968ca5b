package sources

import "sheetsync/internal/etl"

// headerColumns normalizes a header row into text columns.
func headerColumns(header []string) etl.ColumnList {
	cols := make(etl.ColumnList, len(header))
	for i, h := range header {
		cols[i] = etl.Column{Name: etl.NormalizeColumnName(h), Type: etl.TypeText}
	}
	return cols
}

// columnIndex finds a header cell by normalized name, or -1.
func columnIndex(header []string, name string) int {
	want := etl.NormalizeColumnName(name)
	for i, h := range header {
		if etl.NormalizeColumnName(h) == want {
			return i
		}
	}
	return -1
}

package etl

import "strings"

// ── Record model ───────────────────────────────────────────
// Common intermediate data format.
// Sources emit rows of cells, the destination is read back into the
// same shape, and the diff engine compares the two record sets.

// ColumnType is the declared destination type of a column.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
)

// Column describes a single column in a record set.
type Column struct {
	Name string     `json:"name" yaml:"name"`
	Type ColumnType `json:"type" yaml:"type"`
}

// ColumnList is an ordered list of columns.
type ColumnList []Column

// Names returns the column names in order.
func (cl ColumnList) Names() []string {
	names := make([]string, len(cl))
	for i, c := range cl {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of a column, matched case-insensitively, or -1.
func (cl ColumnList) Index(name string) int {
	for i, c := range cl {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Has reports whether the list contains the column.
func (cl ColumnList) Has(name string) bool { return cl.Index(name) >= 0 }

// Spelling returns the list's own spelling of name, or name itself when the
// list has no such column.
func (cl ColumnList) Spelling(name string) string {
	if i := cl.Index(name); i >= 0 {
		return cl[i].Name
	}
	return name
}

// TextColumns builds a ColumnList of text columns from names.
func TextColumns(names ...string) ColumnList {
	cl := make(ColumnList, len(names))
	for i, n := range names {
		cl[i] = Column{Name: n, Type: TypeText}
	}
	return cl
}

// Row is a single record: cell values aligned with the record set's columns.
type Row struct {
	Index  int   `json:"index"` // 1-based source row number (header is row 1)
	Values []any `json:"values"`
}

// RecordSet is a keyed, ordered collection of rows sharing one column list.
type RecordSet struct {
	Columns    ColumnList
	PrimaryKey string

	pkIndex int
	rows    []Row
	keys    []string
	byKey   map[string]int
	colIdx  map[string]int
}

// NewRecordSet validates the column list and returns an empty record set.
// Column names must be unique (case-insensitively) and include primaryKey.
func NewRecordSet(columns ColumnList, primaryKey string) (*RecordSet, error) {
	if len(columns) == 0 {
		return nil, &SchemaError{Message: "record set has no columns"}
	}
	colIdx := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, &SchemaError{Message: "empty column name"}
		}
		k := strings.ToLower(c.Name)
		if _, dup := colIdx[k]; dup {
			return nil, &SchemaError{Column: c.Name, Message: "duplicate column name"}
		}
		colIdx[k] = i
	}
	pk, ok := colIdx[strings.ToLower(primaryKey)]
	if !ok {
		return nil, &SchemaError{Column: primaryKey, Message: "primary key column not found"}
	}
	return &RecordSet{
		Columns:    columns,
		PrimaryKey: columns[pk].Name,
		pkIndex:    pk,
		byKey:      make(map[string]int),
		colIdx:     colIdx,
	}, nil
}

// Add appends a row. Short rows are padded with NULLs and extra cells are
// dropped. A missing or duplicate primary key is a DataError.
func (rs *RecordSet) Add(index int, values []any) error {
	row := make([]any, len(rs.Columns))
	copy(row, values)

	key, ok := KeyString(row[rs.pkIndex])
	if !ok {
		return &DataError{Column: rs.PrimaryKey, Row: index, Message: "missing primary key"}
	}
	if prev, dup := rs.byKey[key]; dup {
		return &DataError{
			Key:      key,
			Column:   rs.PrimaryKey,
			Row:      index,
			OtherRow: rs.rows[prev].Index,
			Message:  "duplicate primary key",
		}
	}
	rs.byKey[key] = len(rs.rows)
	rs.rows = append(rs.rows, Row{Index: index, Values: row})
	rs.keys = append(rs.keys, key)
	return nil
}

// Len returns the number of rows.
func (rs *RecordSet) Len() int { return len(rs.rows) }

// Rows returns the rows in insertion order.
func (rs *RecordSet) Rows() []Row { return rs.rows }

// Keys returns the primary-key identities in insertion order.
func (rs *RecordSet) Keys() []string { return rs.keys }

// Lookup returns the row stored under a key identity.
func (rs *RecordSet) Lookup(key string) (Row, bool) {
	i, ok := rs.byKey[key]
	if !ok {
		return Row{}, false
	}
	return rs.rows[i], true
}

// ColumnIndex returns the position of a column (case-insensitive) or -1.
func (rs *RecordSet) ColumnIndex(name string) int {
	if i, ok := rs.colIdx[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// Value returns a row's cell by column name, or nil if the column is absent.
func (rs *RecordSet) Value(row Row, column string) any {
	i := rs.ColumnIndex(column)
	if i < 0 || i >= len(row.Values) {
		return nil
	}
	return row.Values[i]
}

// Project returns a new record set restricted to the given columns (which
// must include the primary key). Rows keep their order and indices.
func (rs *RecordSet) Project(columns ColumnList) (*RecordSet, error) {
	out, err := NewRecordSet(columns, rs.PrimaryKey)
	if err != nil {
		return nil, err
	}
	for _, r := range rs.rows {
		vals := make([]any, len(columns))
		for i, c := range columns {
			vals[i] = rs.Value(r, c.Name)
		}
		if err := out.Add(r.Index, vals); err != nil {
			return nil, err
		}
	}
	return out, nil
}

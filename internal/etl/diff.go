package etl

import "strings"

// ── Diff Engine ────────────────────────────────────────────
// Classifies each source row against the destination snapshot.
// Groups keep source order so the result is deterministic.

// ColumnChange is one differing cell of an updated row.
type ColumnChange struct {
	Column string `json:"column" yaml:"column"`
	Old    any    `json:"old" yaml:"old"`
	New    any    `json:"new" yaml:"new"`
}

// InsertRow is a source row whose key is absent from the destination.
// Values are aligned with DiffResult.Columns.
type InsertRow struct {
	Key    string `json:"key" yaml:"key"`
	Row    int    `json:"row" yaml:"row"`
	Values []any  `json:"values" yaml:"values"`
}

// UpdateRow is a source row whose tracked columns differ from the destination.
type UpdateRow struct {
	Key     string         `json:"key" yaml:"key"`
	Row     int            `json:"row" yaml:"row"`
	Changes []ColumnChange `json:"changes" yaml:"changes"`
}

// DiffResult partitions the source rows into insert, update and unchanged.
type DiffResult struct {
	PrimaryKey string      `json:"primaryKey" yaml:"primary_key"`
	Columns    ColumnList  `json:"columns" yaml:"columns"`
	ToInsert   []InsertRow `json:"toInsert" yaml:"to_insert"`
	ToUpdate   []UpdateRow `json:"toUpdate" yaml:"to_update"`
	Unchanged  []string    `json:"unchanged" yaml:"unchanged"`
}

// Empty reports whether the diff requires no writes.
func (d *DiffResult) Empty() bool {
	return d == nil || (len(d.ToInsert) == 0 && len(d.ToUpdate) == 0)
}

// Diff compares source against the destination snapshot. dest may be nil
// when the destination table does not exist yet. Excluded columns take no
// part in comparison and never appear in the result.
func Diff(source, dest *RecordSet, primaryKey string, excluded []string) (*DiffResult, error) {
	if source == nil {
		return nil, &SchemaError{Message: "no source record set"}
	}
	if isExcluded(primaryKey, excluded) {
		return nil, &SchemaError{Column: primaryKey, Message: "primary key cannot be excluded"}
	}
	pkIdx := source.ColumnIndex(primaryKey)
	if pkIdx < 0 {
		return nil, &SchemaError{Column: primaryKey, Message: "primary key column not found in source"}
	}

	// Tracked columns: source order, excluded removed.
	var tracked ColumnList
	var srcIdx []int
	for i, c := range source.Columns {
		if isExcluded(c.Name, excluded) {
			continue
		}
		tracked = append(tracked, c)
		srcIdx = append(srcIdx, i)
	}

	result := &DiffResult{
		PrimaryKey: source.Columns[pkIdx].Name,
		Columns:    tracked,
		ToInsert:   []InsertRow{},
		ToUpdate:   []UpdateRow{},
		Unchanged:  []string{},
	}

	seen := make(map[string]int, source.Len())
	for _, row := range source.Rows() {
		key, ok := KeyString(row.Values[pkIdx])
		if !ok {
			return nil, &DataError{Column: result.PrimaryKey, Row: row.Index, Message: "missing primary key"}
		}
		if prev, dup := seen[key]; dup {
			return nil, &DataError{Key: key, Column: result.PrimaryKey, Row: row.Index, OtherRow: prev, Message: "duplicate primary key"}
		}
		seen[key] = row.Index

		var existing Row
		found := false
		if dest != nil {
			existing, found = dest.Lookup(key)
		}
		if !found {
			vals := make([]any, len(srcIdx))
			for i, si := range srcIdx {
				vals[i] = row.Values[si]
			}
			result.ToInsert = append(result.ToInsert, InsertRow{Key: key, Row: row.Index, Values: vals})
			continue
		}

		var changes []ColumnChange
		for i, si := range srcIdx {
			if si == pkIdx {
				continue
			}
			col := tracked[i].Name
			newVal := row.Values[si]
			oldVal := dest.Value(existing, col)
			if !Equal(oldVal, newVal) {
				changes = append(changes, ColumnChange{Column: col, Old: oldVal, New: newVal})
			}
		}
		if len(changes) == 0 {
			result.Unchanged = append(result.Unchanged, key)
			continue
		}
		result.ToUpdate = append(result.ToUpdate, UpdateRow{Key: key, Row: row.Index, Changes: changes})
	}
	return result, nil
}

func isExcluded(name string, excluded []string) bool {
	for _, e := range excluded {
		if strings.EqualFold(e, name) {
			return true
		}
	}
	return false
}

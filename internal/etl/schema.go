package etl

import "strings"

// ── Schema Reconciler ──────────────────────────────────────
// Decides the DDL needed so the destination can hold every source column.
// Growth is additive only: columns are created, never altered or dropped.

// SchemaPlan is the DDL a run must apply before writing rows.
type SchemaPlan struct {
	PrimaryKey  string     `json:"primaryKey" yaml:"primary_key"`
	CreateTable bool       `json:"createTable" yaml:"create_table"`
	Columns     ColumnList `json:"columns,omitempty" yaml:"columns,omitempty"`         // full column set when CreateTable
	AddColumns  ColumnList `json:"addColumns,omitempty" yaml:"add_columns,omitempty"` // nullable columns to append
}

// Empty reports whether the plan carries no DDL.
func (p *SchemaPlan) Empty() bool {
	return p == nil || (!p.CreateTable && len(p.AddColumns) == 0)
}

// Reconcile compares the source column list with the destination's and
// returns the DDL plan. It does no I/O and is idempotent: once the plan is
// applied, reconciling the same pair again yields an empty plan.
func Reconcile(destExists bool, source, dest ColumnList, primaryKey string) (*SchemaPlan, error) {
	if len(source) == 0 {
		return nil, &SchemaError{Message: "source has no columns"}
	}
	if err := validateColumns(source); err != nil {
		return nil, err
	}
	pk := source.Index(primaryKey)
	if pk < 0 {
		return nil, &SchemaError{Column: primaryKey, Message: "primary key column not found in source"}
	}

	plan := &SchemaPlan{PrimaryKey: source[pk].Name}

	if !destExists {
		plan.CreateTable = true
		plan.Columns = make(ColumnList, len(source))
		for i, c := range source {
			plan.Columns[i] = Column{Name: c.Name, Type: TypeText}
		}
		return plan, nil
	}

	for _, c := range source {
		if dest.Has(c.Name) {
			continue
		}
		plan.AddColumns = append(plan.AddColumns, Column{Name: c.Name, Type: TypeText})
	}
	return plan, nil
}

// validateColumns checks every name against the identifier allow-list and
// rejects case-insensitive duplicates.
func validateColumns(cols ColumnList) error {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if err := ValidateIdentifier(c.Name); err != nil {
			return err
		}
		k := strings.ToLower(c.Name)
		if seen[k] {
			return &SchemaError{Column: c.Name, Message: "duplicate column name"}
		}
		seen[k] = true
	}
	return nil
}

package etl

import (
	"context"
	"fmt"
)

// ── Destination ────────────────────────────────────────────
// The destination is a keyed table (or collection) the engine reads back
// and converges. Concrete stores live in internal/dbclient, one per driver.

// SyncMode determines how row writes are issued.
type SyncMode string

const (
	SyncDiff   SyncMode = "diff"   // INSERT new keys, UPDATE changed columns by key
	SyncUpsert SyncMode = "upsert" // insert-or-update on primary-key conflict
)

// TableInfo describes the destination table as it is now.
type TableInfo struct {
	Exists  bool       `json:"exists"`
	Columns ColumnList `json:"columns"`
}

// Store is the capability set the engine needs from a destination.
// Identifiers passed in have already been validated.
type Store interface {
	// Driver names the backing driver ("postgres", "mysql", ...).
	Driver() string

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Describe reports whether the table exists and lists its columns.
	Describe(ctx context.Context, table string) (*TableInfo, error)

	// ReadRows returns every row of the table projected onto columns.
	// Values are nil (NULL) or the stored scalar.
	ReadRows(ctx context.Context, table string, columns ColumnList) ([][]any, error)

	// TransactionalDDL reports whether CREATE TABLE and ADD COLUMN can roll
	// back together with row writes.
	TransactionalDDL() bool

	// Begin starts a write transaction.
	Begin(ctx context.Context) (Tx, error)

	Close() error
}

// Tx is one atomic unit of destination writes.
type Tx interface {
	// CreateTable creates the table if it does not exist. Every column is
	// text; primaryKey is the table's primary key.
	CreateTable(ctx context.Context, table string, columns ColumnList, primaryKey string) error

	// AddColumn appends a nullable text column. Adding a column that already
	// exists is a no-op.
	AddColumn(ctx context.Context, table string, column Column) error

	// InsertRows writes rows in bulk. Values are aligned with columns.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error

	// UpdateRow sets columns on the row whose primary key equals key.
	// found is false when no row matched.
	UpdateRow(ctx context.Context, table, primaryKey, key string, columns []string, values []any) (found bool, err error)

	// UpsertRows inserts rows, overwriting the given columns of any row
	// whose primary key already exists.
	UpsertRows(ctx context.Context, table, primaryKey string, columns []string, rows [][]any) error

	Commit() error
	Rollback() error
}

// LoadSnapshot reads the destination rows into a record set keyed by
// primaryKey. A missing table yields nil. Only the tracked columns the table
// already has are read; tracked columns it lacks compare as NULL, and
// destination-only columns are never touched.
func LoadSnapshot(ctx context.Context, store Store, table string, info *TableInfo, tracked ColumnList, primaryKey string) (*RecordSet, error) {
	if info == nil || !info.Exists {
		return nil, nil
	}
	if !info.Columns.Has(primaryKey) {
		return nil, &SchemaError{Column: primaryKey, Message: fmt.Sprintf("destination table %q has no primary key column", table)}
	}

	var read ColumnList
	for _, c := range tracked {
		if i := info.Columns.Index(c.Name); i >= 0 {
			read = append(read, info.Columns[i])
		}
	}

	rows, err := store.ReadRows(ctx, table, read)
	if err != nil {
		return nil, fmt.Errorf("read destination: %w", err)
	}

	rs, err := NewRecordSet(read, primaryKey)
	if err != nil {
		return nil, err
	}
	for i, vals := range rows {
		if err := rs.Add(i+1, vals); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

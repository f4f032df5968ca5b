package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sheetsync/internal/etl"
)

// dialect captures what differs between the SQL engines.
type dialect interface {
	name() string

	// quote wraps a validated identifier.
	quote(ident string) string

	// placeholder returns the n-th (1-based) bind parameter marker.
	placeholder(n int) string

	// keyType is the column type of the primary-key column.
	keyType() string

	transactionalDDL() bool

	// maxParams bounds the bind parameters of a single statement.
	maxParams() int

	// listColumns returns the table's column names in ordinal order; an
	// empty result means the table does not exist.
	listColumns(ctx context.Context, q querier, table string) ([]string, error)

	// upsertSuffix is appended to a multi-row INSERT to overwrite the
	// update columns when the primary key already exists.
	upsertSuffix(primaryKey string, update []string) string
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// sqlStore is the shared etl.Store for MySQL, Postgres and SQLite.
type sqlStore struct {
	driverName string
	db         *sql.DB
	d          dialect
}

// newSQLStore opens a pooled connection through database/sql.
func newSQLStore(driverName, dsn string, d dialect) (*sqlStore, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	return wrapDB(db, d), nil
}

func wrapDB(db *sql.DB, d dialect) *sqlStore {
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	return &sqlStore{driverName: d.name(), db: db, d: d}
}

func (s *sqlStore) Driver() string { return s.driverName }

func (s *sqlStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *sqlStore) TransactionalDDL() bool { return s.d.transactionalDDL() }

func (s *sqlStore) Describe(ctx context.Context, table string) (*etl.TableInfo, error) {
	names, err := s.d.listColumns(ctx, s.db, table)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	if len(names) == 0 {
		return &etl.TableInfo{}, nil
	}
	return &etl.TableInfo{Exists: true, Columns: etl.TextColumns(names...)}, nil
}

func (s *sqlStore) ReadRows(ctx context.Context, table string, columns etl.ColumnList) ([][]any, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.d.quote(c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), s.d.quote(table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for j, v := range values {
			values[j] = formatValue(v)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

// formatValue converts a scanned driver value into a cell value.
func formatValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(etl.TimestampLayout)
	default:
		return val
	}
}

func (s *sqlStore) Begin(ctx context.Context) (etl.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, d: s.d}, nil
}

func (s *sqlStore) Close() error { return s.db.Close() }

// DB exposes the pool for tests and diagnostics.
func (s *sqlStore) DB() *sql.DB { return s.db }

// ── Transaction ────────────────────────────────────────────

type sqlTx struct {
	tx *sql.Tx
	d  dialect
}

func (t *sqlTx) CreateTable(ctx context.Context, table string, columns etl.ColumnList, primaryKey string) error {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		if strings.EqualFold(c.Name, primaryKey) {
			defs = append(defs, fmt.Sprintf("%s %s PRIMARY KEY", t.d.quote(c.Name), t.d.keyType()))
			continue
		}
		defs = append(defs, fmt.Sprintf("%s TEXT", t.d.quote(c.Name)))
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.d.quote(table), strings.Join(defs, ", "))
	_, err := t.tx.ExecContext(ctx, query)
	return err
}

func (t *sqlTx) AddColumn(ctx context.Context, table string, column etl.Column) error {
	existing, err := t.d.listColumns(ctx, t.tx, table)
	if err != nil {
		return fmt.Errorf("list columns: %w", err)
	}
	for _, name := range existing {
		if strings.EqualFold(name, column.Name) {
			return nil
		}
	}
	query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", t.d.quote(table), t.d.quote(column.Name))
	_, err = t.tx.ExecContext(ctx, query)
	return err
}

func (t *sqlTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	return t.insert(ctx, table, columns, rows, "")
}

func (t *sqlTx) UpsertRows(ctx context.Context, table, primaryKey string, columns []string, rows [][]any) error {
	update := make([]string, 0, len(columns))
	for _, c := range columns {
		if !strings.EqualFold(c, primaryKey) {
			update = append(update, c)
		}
	}
	return t.insert(ctx, table, columns, rows, t.d.upsertSuffix(primaryKey, update))
}

// insert writes rows as multi-row INSERTs, chunked so no statement exceeds
// the dialect's bind parameter limit.
func (t *sqlTx) insert(ctx context.Context, table string, columns []string, rows [][]any, suffix string) error {
	if len(rows) == 0 {
		return nil
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = t.d.quote(c)
	}
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", t.d.quote(table), strings.Join(quoted, ", "))

	perStmt := t.d.maxParams() / len(columns)
	if perStmt < 1 {
		return fmt.Errorf("%d columns exceed the %d parameter limit", len(columns), t.d.maxParams())
	}

	for start := 0; start < len(rows); start += perStmt {
		end := min(start+perStmt, len(rows))
		chunk := rows[start:end]

		var sb strings.Builder
		sb.WriteString(head)
		args := make([]any, 0, len(chunk)*len(columns))
		n := 1
		for i, row := range chunk {
			if len(row) != len(columns) {
				return fmt.Errorf("row has %d values for %d columns", len(row), len(columns))
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for j, v := range row {
				if j > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(t.d.placeholder(n))
				n++
				args = append(args, v)
			}
			sb.WriteByte(')')
		}
		sb.WriteString(suffix)

		if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) UpdateRow(ctx context.Context, table, primaryKey, key string, columns []string, values []any) (bool, error) {
	if len(columns) != len(values) {
		return false, fmt.Errorf("%d values for %d columns", len(values), len(columns))
	}
	sets := make([]string, len(columns))
	args := make([]any, 0, len(values)+1)
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = %s", t.d.quote(c), t.d.placeholder(i+1))
		args = append(args, values[i])
	}
	args = append(args, key)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		t.d.quote(table), strings.Join(sets, ", "), t.d.quote(primaryKey), t.d.placeholder(len(columns)+1))

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// ── Shared helpers ─────────────────────────────────────────

// quoteWith doubles any embedded quote character and wraps the identifier.
func quoteWith(q string, ident string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// scanNames collects a single string column.
func scanNames(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

package dbclient

import (
	"context"
	"strings"

	"sheetsync/internal/domain"

	_ "modernc.org/sqlite"
)

// buildSQLiteDSN opens the file in WAL mode with a busy timeout for
// concurrent access.
func buildSQLiteDSN(conn *domain.DatabaseConnection) string {
	path := conn.Host
	if path == "" {
		path = conn.Database
	}
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func newSQLiteStore(conn *domain.DatabaseConnection) (*sqlStore, error) {
	return newSQLStore("sqlite", buildSQLiteDSN(conn), sqliteDialect{})
}

type sqliteDialect struct{}

func (sqliteDialect) name() string              { return "sqlite" }
func (sqliteDialect) quote(ident string) string { return quoteWith(`"`, ident) }
func (sqliteDialect) placeholder(int) string    { return "?" }
func (sqliteDialect) keyType() string           { return "TEXT" }
func (sqliteDialect) transactionalDDL() bool    { return true }
func (sqliteDialect) maxParams() int            { return 999 }

func (sqliteDialect) listColumns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	return scanNames(rows)
}

func (d sqliteDialect) upsertSuffix(primaryKey string, update []string) string {
	return onConflictSuffix(d.quote, "excluded", primaryKey, update)
}

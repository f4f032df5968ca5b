package dbclient

import (
	"context"
	"fmt"
	"strings"

	"sheetsync/internal/domain"

	"github.com/go-sql-driver/mysql"
)

// buildMySQLDSN constructs a MySQL DSN from a DatabaseConnection.
// clientFoundRows makes UPDATE report matched rows rather than changed rows.
func buildMySQLDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", conn.Host, port)
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range conn.Options {
		cfg.Params[k] = v
	}
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN()
}

// mysqlDialect keys use a binary collation so keys that differ only in
// case or accents stay distinct, as they do in the record set.
type mysqlDialect struct{}

func (mysqlDialect) name() string              { return "mysql" }
func (mysqlDialect) quote(ident string) string { return quoteWith("`", ident) }
func (mysqlDialect) placeholder(int) string    { return "?" }
func (mysqlDialect) keyType() string           { return "VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin" }
func (mysqlDialect) transactionalDDL() bool    { return false }
func (mysqlDialect) maxParams() int            { return 65535 }

func (mysqlDialect) listColumns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, err
	}
	return scanNames(rows)
}

func (d mysqlDialect) upsertSuffix(primaryKey string, update []string) string {
	if len(update) == 0 {
		update = []string{primaryKey}
	}
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", d.quote(c), d.quote(c))
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

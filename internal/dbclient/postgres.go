package dbclient

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"sheetsync/internal/domain"

	_ "github.com/lib/pq"
)

// buildPostgresDSN constructs a lib/pq keyword/value connection string.
func buildPostgresDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{
		"host=" + pqQuote(conn.Host),
		fmt.Sprintf("port=%d", port),
		"user=" + pqQuote(conn.Username),
		"password=" + pqQuote(password),
		"dbname=" + pqQuote(conn.Database),
		"sslmode=" + pqQuote(sslMode),
	}
	for _, k := range sortedKeys(conn.Options) {
		parts = append(parts, k+"="+pqQuote(conn.Options[k]))
	}
	return strings.Join(parts, " ")
}

// pqQuote quotes a keyword/value parameter when it is empty or contains
// spaces, quotes or backslashes.
func pqQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// buildPostgresURL constructs a postgres:// URL, the form pgx parses.
func buildPostgresURL(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	for k, v := range conn.Options {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(conn.Username, password),
		Host:     fmt.Sprintf("%s:%d", conn.Host, port),
		Path:     "/" + conn.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// postgresDialect serves both lib/pq and pgx.
type postgresDialect struct{ driver string }

func (d postgresDialect) name() string            { return d.driver }
func (postgresDialect) quote(ident string) string { return quoteWith(`"`, ident) }
func (postgresDialect) placeholder(n int) string  { return fmt.Sprintf("$%d", n) }
func (postgresDialect) keyType() string           { return "TEXT" }
func (postgresDialect) transactionalDDL() bool    { return true }
func (postgresDialect) maxParams() int            { return 65535 }

func (postgresDialect) listColumns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	return scanNames(rows)
}

func (d postgresDialect) upsertSuffix(primaryKey string, update []string) string {
	return onConflictSuffix(d.quote, "EXCLUDED", primaryKey, update)
}

// onConflictSuffix renders ON CONFLICT upserts (Postgres and SQLite).
func onConflictSuffix(quote func(string) string, excluded, primaryKey string, update []string) string {
	if len(update) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quote(primaryKey))
	}
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = %s.%s", quote(c), excluded, quote(c))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", quote(primaryKey), strings.Join(sets, ", "))
}

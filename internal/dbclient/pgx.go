package dbclient

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"sheetsync/internal/domain"
)

// newPgxStore opens Postgres through pgx's database/sql adapter.
func newPgxStore(conn *domain.DatabaseConnection, password string) (*sqlStore, error) {
	cfg, err := pgx.ParseConfig(buildPostgresURL(conn, password))
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	return wrapDB(stdlib.OpenDB(*cfg), postgresDialect{driver: "pgx"}), nil
}

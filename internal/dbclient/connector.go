package dbclient

import (
	"fmt"

	"sheetsync/internal/domain"
	"sheetsync/internal/etl"
)

// OpenStore creates the etl.Store for a destination connection.
// The password is resolved by the caller (config, env or SecretStore).
// Opening does not dial; the engine pings before its first read.
func OpenStore(conn *domain.DatabaseConnection, password string) (etl.Store, error) {
	var (
		store etl.Store
		err   error
	)
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		store, err = asStore(newSQLiteStore(conn))
	case domain.DatabaseDriverMySQL:
		store, err = asStore(newSQLStore("mysql", buildMySQLDSN(conn, password), mysqlDialect{}))
	case domain.DatabaseDriverPostgres:
		store, err = asStore(newSQLStore("postgres", buildPostgresDSN(conn, password), postgresDialect{driver: "postgres"}))
	case domain.DatabaseDriverPgx:
		store, err = asStore(newPgxStore(conn, password))
	case domain.DatabaseDriverMongoDB:
		var m *mongoStore
		if m, err = newMongoStore(conn, password); err == nil {
			store = m
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func asStore(s *sqlStore, err error) (etl.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

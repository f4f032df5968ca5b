package domain

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverPgx      DatabaseDriver = "pgx" // Postgres through jackc/pgx
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// Valid reports whether d is a supported driver.
func (d DatabaseDriver) Valid() bool {
	switch d {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverPgx, DatabaseDriverMongoDB, DatabaseDriverSQLite:
		return true
	}
	return false
}

// DatabaseConnection holds the metadata for connecting to the destination.
// The password is resolved separately (config, env or the SecretStore).
type DatabaseConnection struct {
	Driver         DatabaseDriver    `json:"driver" yaml:"driver" mapstructure:"driver"`
	Host           string            `json:"host" yaml:"host" mapstructure:"host"` // hostname, URI (mongodb) or file path (sqlite)
	Port           int               `json:"port" yaml:"port" mapstructure:"port"` // 0 means the driver default
	Database       string            `json:"database" yaml:"name" mapstructure:"name"`
	Username       string            `json:"username" yaml:"user" mapstructure:"user"`
	Password       string            `json:"-" yaml:"-" mapstructure:"password"`
	PasswordSecret string            `json:"passwordSecret,omitempty" yaml:"password_secret,omitempty" mapstructure:"password_secret"`
	SSLMode        string            `json:"sslMode" yaml:"ssl_mode" mapstructure:"ssl_mode"`
	Options        map[string]string `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"` // driver-specific query params
}

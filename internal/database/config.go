package database

import (
	"fmt"
)

// DatabaseConfig is a subset of the configuration focusing solely
// on database connection items. The 'sqlite' driver only requires
// the Path; the 'postgres' driver requires the network details.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=postgres sqlite"`
	User     string `yaml:"username" validate:"required_if=Driver postgres"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	SslMode  string `yaml:"sslmode"`
	Path     string `yaml:"path" validate:"required_if=Driver sqlite"`
}

const (
	DefaultDatabaseName = "STASH_DB"
	DefaultHost         = "0.0.0.0"
	DefaultPort         = "5432"
	DefaultSslMode      = "disable"
)

// WithDefaults returns a copy of the config with any omitted values
// filled in. Instances are read as map values, which the config loader
// does not apply struct defaults to.
func (config DatabaseConfig) WithDefaults() DatabaseConfig {
	if config.Driver == "" {
		config.Driver = DriverPostgres
	}
	if config.Driver != DriverPostgres {
		return config
	}

	if config.Name == "" {
		config.Name = DefaultDatabaseName
	}
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Port == "" {
		config.Port = DefaultPort
	}
	if config.SslMode == "" {
		config.SslMode = DefaultSslMode
	}

	return config
}

func (config DatabaseConfig) dataSource() (string, string, error) {
	switch config.Driver {
	case DriverPostgres:
		sslMode := config.SslMode
		if sslMode == "" {
			sslMode = "disable"
		}

		return DriverPostgres, fmt.Sprintf(PostgresConnectionString, config.Host, config.User, config.Password, config.Name, config.Port, sslMode), nil
	case DriverSqlite:
		if config.Path == "" {
			return "", "", fmt.Errorf("sqlite database requires a path")
		}

		return DriverSqlite, fmt.Sprintf(SqliteConnectionString, config.Path), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver '%s'", config.Driver)
	}
}

// sqlxDriverName returns the name sqlx uses to decide which
// bindvar style the driver expects.
func (config DatabaseConfig) sqlxDriverName() string {
	if config.Driver == DriverSqlite {
		return "sqlite3"
	}

	return DriverPostgres
}

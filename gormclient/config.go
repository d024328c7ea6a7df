package gormclient

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
)

// Driver selects the database backend.
type Driver string

const (
	// DriverSQLite uses SQLite (pure Go, single node, default).
	DriverSQLite Driver = "sqlite"

	// DriverPostgres uses PostgreSQL.
	DriverPostgres Driver = "postgres"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path" default:":memory:"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port" default:"5432"`
	Database string `mapstructure:"database" json:"database" yaml:"database"`
	User     string `mapstructure:"user" json:"user" yaml:"user"`
	Password string `mapstructure:"password" json:"-" yaml:"password"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode" yaml:"sslmode" default:"disable"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config contains the datasource configuration.
type Config struct {
	Driver Driver `mapstructure:"driver" json:"driver" yaml:"driver" default:"sqlite"`
	// DSN, when set, is handed to the driver verbatim and wins over the driver sections.
	DSN      string         `mapstructure:"dsn" json:"-" yaml:"dsn"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" json:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" json:"postgres" yaml:"postgres"`

	MaxOpenConns    int           `mapstructure:"max-open-conns" json:"maxOpenConns" yaml:"max-open-conns"`
	MaxIdleConns    int           `mapstructure:"max-idle-conns" json:"maxIdleConns" yaml:"max-idle-conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn-max-lifetime" json:"connMaxLifetime" yaml:"conn-max-lifetime"`

	// AutoMigrate creates or updates the tables of the declared models on connect.
	AutoMigrate bool `mapstructure:"auto-migrate" json:"autoMigrate" yaml:"auto-migrate"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("set datasource defaults: %w", err)
	}

	if c.Driver == DriverPostgres {
		if c.MaxOpenConns == 0 {
			c.MaxOpenConns = 25
		}
		if c.MaxIdleConns == 0 {
			c.MaxIdleConns = 5
		}
	}
	// Every connection to ":memory:" is a separate database.
	if c.Driver == DriverSQLite && c.DSN == "" && c.SQLite.Path == MemoryPath {
		c.MaxOpenConns = 1
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.DSN == "" && c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DriverPostgres:
		if c.DSN != "" {
			return nil
		}
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Driver)
	}
	return nil
}

// Package config provides centralized configuration management for heapload.
// Settings come from an optional YAML file, then environment variables, then
// defaults, and are validated on startup to fail fast on misconfiguration.
package config

import "time"

// ConfigFileEnv names the environment variable holding the YAML file path.
const ConfigFileEnv = "HEAPLOAD_CONFIG"

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Status   StatusConfig   `yaml:"status"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL selects the backend by scheme: postgres://, sqlite:// or memory:
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `yaml:"min_conns" env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// JournalTable holds one checkpoint row per source (default: journal)
	JournalTable string `yaml:"journal_table" env:"DB_JOURNAL_TABLE" default:"journal"`
}

// IngestConfig holds listing processing settings.
type IngestConfig struct {
	// BatchSize is the number of rows committed per transaction (default: 10000)
	BatchSize int `yaml:"batch_size" env:"INGEST_BATCH_SIZE" default:"10000"`

	// ChunkSize is the initial read buffer in bytes (default: 64KiB)
	ChunkSize int `yaml:"chunk_size" env:"INGEST_CHUNK_SIZE" default:"65536"`

	// HeaderLabel is the line preceding the data rows. Empty selects the
	// debugger's standard column header.
	HeaderLabel string `yaml:"header_label" env:"INGEST_HEADER_LABEL"`

	// Encoding is the source text encoding (default: utf-8)
	Encoding string `yaml:"encoding" env:"INGEST_ENCODING" default:"utf-8"`

	// Table is the data table. Empty derives it from the file name.
	Table string `yaml:"table" env:"INGEST_TABLE"`
}

// StatusConfig holds the optional status server settings.
type StatusConfig struct {
	// Addr is the listen address; empty disables the server
	Addr string `yaml:"addr" env:"STATUS_ADDR"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `yaml:"read_timeout" env:"STATUS_READ_TIMEOUT" default:"15s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"STATUS_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 5s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"STATUS_SHUTDOWN_TIMEOUT" default:"5s"`
}

// Enabled reports whether the status server should run.
func (c *StatusConfig) Enabled() bool {
	return c.Addr != ""
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: console, text or json (default: console)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"console"`
}

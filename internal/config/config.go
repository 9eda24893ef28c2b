// Package config loads application settings from the environment and pipeline definition
// files from disk.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/BartekS5/bulkimport/pkg/database"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	SQLConnString   string
	SQLDriver       string
	MongoConnString string
	MongoDatabase   string
	SourceBaseURL   string
	MaxAttempts     int
	Concurrency     int
	RetryDelay      time.Duration
	LogJSON         bool
}

// LoadConfig loads application settings from environment variables
// (which should be populated by the .env file in main.go).
func LoadConfig() (*Config, error) {
	cfg := &Config{
		SQLConnString:   os.Getenv("SQL_CONNECTION_STRING"),
		SQLDriver:       envOr("SQL_DRIVER", database.DriverSQLServer),
		MongoConnString: os.Getenv("MONGO_CONNECTION_STRING"),
		MongoDatabase:   envOr("MONGO_DATABASE", "bulk_import"),
		SourceBaseURL:   os.Getenv("SOURCE_BASE_URL"),
	}

	if cfg.MongoConnString == "" {
		return nil, errors.New("MONGO_CONNECTION_STRING environment variable not set")
	}
	if cfg.SQLConnString == "" {
		return nil, errors.New("SQL_CONNECTION_STRING environment variable not set")
	}
	switch cfg.SQLDriver {
	case database.DriverSQLServer, database.DriverPostgres:
	default:
		return nil, errors.Newf("SQL_DRIVER must be %q or %q, got %q",
			database.DriverSQLServer, database.DriverPostgres, cfg.SQLDriver)
	}

	var err error
	if cfg.MaxAttempts, err = envInt("IMPORT_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = envInt("IMPORT_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = envDuration("IMPORT_RETRY_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = envBool("LOG_JSON", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.Newf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "parse %s", key)
	}
	return b, nil
}

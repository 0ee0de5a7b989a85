// Package config loads the CLI configuration from environment
// variables, an optional config file, and .env files.
package config

import (
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem all commands operate on. Tests swap in a
// memory filesystem.
var AppFs = afero.NewOsFs()

// Config holds the resolved CLI configuration. Database connection
// settings beyond the database name stay in the libpq environment.
type Config struct {
	// ProjectDir is the migration project directory.
	ProjectDir string
	// Database overrides PGDATABASE when non-empty.
	Database string
	// VersionTable is the (optionally schema-qualified) table holding
	// applied versions.
	VersionTable string
	// WaitTimeout bounds how long commands wait for a connection.
	WaitTimeout time.Duration
	// PgDump is the pg_dump binary path or name.
	PgDump string
	// FixtureDirs are extra directories whose *.sql files join the
	// project's fixtures.
	FixtureDirs []string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Load resolves configuration. Precedence, lowest to highest: defaults,
// config file, environment, .env, .env.local.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName(".pgward")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "pgward"))

	v.SetEnvPrefix("PGWARD")
	v.AutomaticEnv()
	// The database name follows the libpq convention rather than the
	// tool's own prefix.
	_ = v.BindEnv("database", "PGWARD_DATABASE", "PGDATABASE")

	v.SetDefault("project_directory", ".")
	v.SetDefault("schema_version_table", "schema_version")
	v.SetDefault("wait_timeout", "60s")
	v.SetDefault("pg_dump", "pg_dump")
	v.SetDefault("log_level", "warn")

	// Missing config file is fine.
	_ = v.ReadInConfig()

	if ok, _ := afero.Exists(AppFs, ".env"); ok {
		_ = godotenv.Load()
	}
	if ok, _ := afero.Exists(AppFs, ".env.local"); ok {
		_ = godotenv.Overload(".env.local")
	}

	return &Config{
		ProjectDir:   v.GetString("project_directory"),
		Database:     v.GetString("database"),
		VersionTable: v.GetString("schema_version_table"),
		WaitTimeout:  v.GetDuration("wait_timeout"),
		PgDump:       v.GetString("pg_dump"),
		FixtureDirs:  v.GetStringSlice("fixture_dirs"),
		LogLevel:     v.GetString("log_level"),
	}, nil
}

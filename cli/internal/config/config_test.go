package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PGDATABASE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.ProjectDir)
	assert.Equal(t, "schema_version", cfg.VersionTable)
	assert.Equal(t, 60*time.Second, cfg.WaitTimeout)
	assert.Equal(t, "pg_dump", cfg.PgDump)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PGWARD_PROJECT_DIRECTORY", "/srv/db")
	t.Setenv("PGWARD_SCHEMA_VERSION_TABLE", "audit.versions")
	t.Setenv("PGWARD_WAIT_TIMEOUT", "5s")
	t.Setenv("PGWARD_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/db", cfg.ProjectDir)
	assert.Equal(t, "audit.versions", cfg.VersionTable)
	assert.Equal(t, 5*time.Second, cfg.WaitTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestDatabaseFollowsLibpq(t *testing.T) {
	t.Setenv("PGDATABASE", "appdb")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "appdb", cfg.Database)
}

func TestDatabaseOwnPrefixWins(t *testing.T) {
	t.Setenv("PGDATABASE", "appdb")
	t.Setenv("PGWARD_DATABASE", "otherdb")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "otherdb", cfg.Database)
}

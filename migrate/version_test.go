package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateVersionTable(t *testing.T) {
	for _, name := range []string{
		"schema_version",
		"_private",
		"public.schema_version",
		"Audit.Versions2",
	} {
		assert.NoError(t, ValidateVersionTable(name), name)
	}

	for _, name := range []string{
		"",
		"1version",
		"bad-name",
		"a.b.c",
		"drop table; --",
		"public.",
	} {
		assert.Error(t, ValidateVersionTable(name), name)
	}
}

func TestNewVersionStoreDefault(t *testing.T) {
	assert.Equal(t, DefaultVersionTable, NewVersionStore("").Table)
	assert.Equal(t, "audit.versions", NewVersionStore("audit.versions").Table)
}

func TestVersionStoreDDL(t *testing.T) {
	t.Run("plain table", func(t *testing.T) {
		ddl := NewVersionStore("schema_version").tableDDL()
		assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS schema_version")
		assert.Contains(t, ddl, "CREATE INDEX IF NOT EXISTS schema_version_version_idx ON schema_version (version)")
		assert.Contains(t, ddl, "CREATE INDEX IF NOT EXISTS schema_version_applied_at_idx ON schema_version (applied_at)")
	})

	t.Run("schema qualified index names drop the qualifier", func(t *testing.T) {
		ddl := NewVersionStore("audit.versions").tableDDL()
		assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS audit.versions")
		assert.Contains(t, ddl, "CREATE INDEX IF NOT EXISTS versions_version_idx ON audit.versions")
		assert.NotContains(t, ddl, "audit.versions_version_idx")
	})
}


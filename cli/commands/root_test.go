package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/pgward/cli/internal/config"
)

func testOptions(t *testing.T) (*options, *bytes.Buffer) {
	t.Helper()
	var stdout bytes.Buffer
	o := &options{
		cfg: &config.Config{
			ProjectDir:   "proj",
			VersionTable: "schema_version",
		},
		fs:     afero.NewMemMapFs(),
		stdout: &stdout,
		stderr: &bytes.Buffer{},
	}
	return o, &stdout
}

func run(o *options, args ...string) error {
	root := NewRootCommand(o)
	root.SetArgs(args)
	return root.Execute()
}

func TestParseTarget(t *testing.T) {
	target, err := parseTarget("latest", "latest")
	require.NoError(t, err)
	assert.Nil(t, target)

	target, err = parseTarget("7", "latest")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, 7, *target)

	for _, bad := range []string{"-1", "abc", ""} {
		_, err = parseTarget(bad, "latest")
		var ue *usageError
		require.ErrorAs(t, err, &ue, bad)
	}
}

func TestInitCommand(t *testing.T) {
	o, _ := testOptions(t)

	require.NoError(t, run(o, "init"))

	for _, dir := range []string{"proj/migrations", "proj/fixtures", "proj/tests"} {
		ok, err := afero.DirExists(o.fs, dir)
		require.NoError(t, err)
		assert.True(t, ok, dir)
	}
	ok, err := afero.Exists(o.fs, "proj/schema.sql")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewCommand(t *testing.T) {
	o, stdout := testOptions(t)
	require.NoError(t, run(o, "init"))

	require.NoError(t, run(o, "new", "create_users"))

	assert.Contains(t, stdout.String(), "proj/migrations/00000_create_users.up.sql")
	assert.Contains(t, stdout.String(), "proj/migrations/00000_create_users.down.sql")

	ok, err := afero.Exists(o.fs, "proj/migrations/00000_create_users.up.sql")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewCommandRequiresProject(t *testing.T) {
	o, _ := testOptions(t)

	err := run(o, "new", "create_users")
	require.ErrorContains(t, err, "schema does not exist or is wrong type")
}

func TestFixturesCommandLists(t *testing.T) {
	o, stdout := testOptions(t)
	require.NoError(t, run(o, "init"))
	require.NoError(t, afero.WriteFile(o.fs, "proj/fixtures/users.sql", []byte("insert"), 0o644))
	require.NoError(t, afero.WriteFile(o.fs, "proj/fixtures/cities.sql", []byte("insert"), 0o644))
	stdout.Reset()

	require.NoError(t, run(o, "fixtures"))

	assert.Equal(t, "cities\nusers\n", stdout.String())
}

func TestCreateDBRequiresDatabaseName(t *testing.T) {
	o, _ := testOptions(t)

	err := run(o, "create-db")
	var ue *usageError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, err.Error(), "no database name")
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	o, _ := testOptions(t)

	err := run(o, "init", "--bogus")
	var ue *usageError
	require.ErrorAs(t, err, &ue)
}

func TestVersionCommand(t *testing.T) {
	o, stdout := testOptions(t)

	require.NoError(t, run(o, "version"))

	assert.True(t, strings.HasPrefix(stdout.String(), "pgward version "), stdout.String())
}

func TestErrSilentIsDistinct(t *testing.T) {
	assert.False(t, errors.Is(errors.New("silent failure"), errSilent))
	assert.True(t, errors.Is(errSilent, errSilent))
}

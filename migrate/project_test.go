package migrate

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProjectScaffoldsLayout(t *testing.T) {
	fsys := afero.NewMemMapFs()

	p, err := NewProject(fsys, "proj")
	require.NoError(t, err)

	for _, path := range []string{"proj/schema.sql"} {
		ok, err := afero.Exists(fsys, path)
		require.NoError(t, err)
		assert.True(t, ok, path)
	}
	for _, dir := range []string{"proj/migrations", "proj/fixtures", "proj/tests"} {
		ok, err := afero.DirExists(fsys, dir)
		require.NoError(t, err)
		assert.True(t, ok, dir)
	}
	assert.Equal(t, 0, p.Graph.Len())
}

func TestNewProjectIsIdempotent(t *testing.T) {
	fsys := afero.NewMemMapFs()

	p, err := NewProject(fsys, "proj")
	require.NoError(t, err)
	_, err = p.NewMigration("init")
	require.NoError(t, err)

	p, err = NewProject(fsys, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Graph.Len())
}

func TestOpenProjectValidatesLayout(t *testing.T) {
	t.Run("missing schema", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, fsys.MkdirAll("proj/migrations", 0o755))

		_, err := OpenProject(fsys, "proj")
		require.ErrorContains(t, err, "schema does not exist or is wrong type")
	})

	t.Run("missing migrations dir", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "proj/schema.sql", nil, 0o644))

		_, err := OpenProject(fsys, "proj")
		require.ErrorContains(t, err, "migrations directory does not exist or is wrong type")
	})

	t.Run("fixtures path is a file", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "proj/schema.sql", nil, 0o644))
		require.NoError(t, fsys.MkdirAll("proj/migrations", 0o755))
		require.NoError(t, afero.WriteFile(fsys, "proj/fixtures", nil, 0o644))

		_, err := OpenProject(fsys, "proj")
		require.ErrorContains(t, err, "fixtures directory is not a directory")
	})
}

func TestNewMigrationNumbering(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p, err := NewProject(fsys, "proj")
	require.NoError(t, err)

	assert.Equal(t, 0, p.NextMigrationID())

	m, err := p.NewMigration("init")
	require.NoError(t, err)
	assert.Equal(t, 0, m.ID)
	assert.Equal(t, "proj/migrations/00000_init.up.sql", m.Up.Path)
	require.NotNil(t, m.Down)
	assert.Equal(t, "proj/migrations/00000_init.down.sql", m.Down.Path)

	m, err = p.NewMigration("add_users")
	require.NoError(t, err)
	assert.Equal(t, 1, m.ID)

	// Both files exist and are empty.
	content, err := m.Up.Read()
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestNewMigrationSkipsPastGaps(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p, err := NewProject(fsys, "proj")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fsys, "proj/migrations/00041_answer.up.sql", nil, 0o644))

	p, err = OpenProject(fsys, "proj")
	require.NoError(t, err)
	assert.Equal(t, 42, p.NextMigrationID())
}

func TestFixtures(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p, err := NewProject(fsys, "proj")
	require.NoError(t, err)

	_, err = p.NewFixture("users")
	require.NoError(t, err)

	_, err = p.NewFixture("users")
	require.ErrorContains(t, err, "cannot create fixture, already exists")

	f, err := p.Fixture("users")
	require.NoError(t, err)
	assert.Equal(t, "users", f.Name)

	_, err = p.Fixture("nope")
	require.ErrorContains(t, err, "unknown fixture: 'nope'")

	assert.Equal(t, []string{"users"}, p.FixtureNames())
}

func TestExtraFixtureDirs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_, err := NewProject(fsys, "proj")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fsys, "shared/users.sql", []byte("shared"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "shared/cities.sql", []byte("shared"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "proj/fixtures/users.sql", []byte("local"), 0o644))

	p, err := OpenProject(fsys, "proj", WithFixtureDirs("shared"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"users", "cities"}, p.FixtureNames())

	// The project's own fixtures win over shared ones.
	f, err := p.Fixture("users")
	require.NoError(t, err)
	content, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, "local", content)
}

func TestTests(t *testing.T) {
	fsys := afero.NewMemMapFs()
	p, err := NewProject(fsys, "proj")
	require.NoError(t, err)

	_, err = p.NewTest("b_check")
	require.NoError(t, err)
	_, err = p.NewTest("a_check")
	require.NoError(t, err)
	_, err = p.NewTest("a_check")
	require.ErrorContains(t, err, "cannot create test, already exists")

	tests := p.Tests()
	require.Len(t, tests, 2)
	assert.Equal(t, "a_check", tests[0].Name)
	assert.Equal(t, "b_check", tests[1].Name)
}

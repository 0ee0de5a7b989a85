package migrate

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph(t *testing.T, downs map[int]bool, ids ...int) *Graph {
	t.Helper()
	fsys := afero.NewMemMapFs()
	g := NewGraph()
	for _, id := range ids {
		m := &Migration{ID: id, Name: "m", Up: NewSqlFile(fsys, "up.sql")}
		if downs[id] {
			down := NewSqlFile(fsys, "down.sql")
			m.Down = &down
		}
		g.Append(m)
	}
	return g
}

func allDowns(ids ...int) map[int]bool {
	m := make(map[int]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestMigrateEmptyGraph(t *testing.T) {
	e := NewEngine(NewGraph(), NewVersionStore(""))

	err := e.Migrate(context.Background(), nil, nil, Up)
	assert.True(t, IsKind(err, KindNoMigrations))
	assert.EqualError(t, err, "no migrations exist, there is nothing to apply")
}

func TestRollbackChain(t *testing.T) {
	t.Run("exclusive of target", func(t *testing.T) {
		e := NewEngine(testGraph(t, allDowns(1, 2, 3, 4), 1, 2, 3, 4), NewVersionStore(""))

		chain, err := e.rollbackChain(4, 2)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		assert.Equal(t, 4, chain[0].ID)
		assert.Equal(t, 3, chain[1].ID)
	})

	t.Run("down to base", func(t *testing.T) {
		e := NewEngine(testGraph(t, allDowns(1, 2), 1, 2), NewVersionStore(""))

		chain, err := e.rollbackChain(2, 0)
		require.NoError(t, err)
		require.Len(t, chain, 2)
	})

	t.Run("orphaned version", func(t *testing.T) {
		e := NewEngine(testGraph(t, allDowns(1, 2), 1, 2), NewVersionStore(""))

		_, err := e.rollbackChain(7, 1)
		assert.True(t, IsKind(err, KindOrphanedVersion))
		assert.EqualError(t, err, "schema version '7' does not have associated migration")
	})

	t.Run("missing down blocks whole chain", func(t *testing.T) {
		downs := allDowns(1, 3)
		e := NewEngine(testGraph(t, downs, 1, 2, 3), NewVersionStore(""))

		_, err := e.rollbackChain(3, 1)
		assert.True(t, IsKind(err, KindMissingDown))
	})
}

func TestErrorKinds(t *testing.T) {
	err := NewError(KindWrongDirection, "direction is down but moving from version %d to %d migrates up", 1, 3)

	assert.True(t, IsDomain(err))
	assert.True(t, IsDirection(err))
	assert.False(t, IsLockTimeout(err))
	assert.False(t, IsKind(err, KindNoPath))
	assert.Equal(t, "direction is down but moving from version 1 to 3 migrates up", err.Error())

	assert.False(t, IsDomain(context.Canceled))
}

func TestRunSQLFileEmptyIsNoop(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "empty.sql", []byte("  \n\t\n"), 0o644))

	// A nil querier proves Exec is never reached.
	err := RunSQLFile(context.Background(), nil, NewSqlFile(fsys, "empty.sql"))
	assert.NoError(t, err)
}

func TestRunSQLFileMissingFile(t *testing.T) {
	fsys := afero.NewMemMapFs()

	err := RunSQLFile(context.Background(), nil, NewSqlFile(fsys, "absent.sql"))
	require.ErrorContains(t, err, "absent.sql")
}

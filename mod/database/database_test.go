package database_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"imuslab.com/edgeproxy/mod/database"
	"imuslab.com/edgeproxy/mod/database/dbinc"
)

type record struct {
	Name  string
	Count int
}

func openBackends(t *testing.T) map[string]*database.Database {
	t.Helper()
	dir := t.TempDir()
	result := map[string]*database.Database{}
	for name, backend := range map[string]dbinc.BackendType{
		"bolt":    dbinc.BackendBoltDB,
		"leveldb": dbinc.BackendLevelDB,
	} {
		db, err := database.NewDatabase(filepath.Join(dir, name+".db"), backend)
		require.NoError(t, err)
		t.Cleanup(db.Close)
		result[name] = db
	}
	return result
}

func TestDatabaseReadWrite(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.NewTable("stats"))
			assert.True(t, db.TableExists("stats"))

			require.NoError(t, db.Write("stats", "2026_01_02", record{Name: "a", Count: 3}))
			assert.True(t, db.KeyExists("stats", "2026_01_02"))
			assert.False(t, db.KeyExists("stats", "2026_01_03"))

			var got record
			require.NoError(t, db.Read("stats", "2026_01_02", &got))
			assert.Equal(t, record{Name: "a", Count: 3}, got)

			require.NoError(t, db.Delete("stats", "2026_01_02"))
			assert.False(t, db.KeyExists("stats", "2026_01_02"))
			assert.Error(t, db.Read("stats", "2026_01_02", &got))
		})
	}
}

func TestDatabaseListAndDrop(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.NewTable("acme"))
			require.NoError(t, db.Write("acme", "b", record{Name: "b"}))
			require.NoError(t, db.Write("acme", "a", record{Name: "a"}))
			require.NoError(t, db.Write("other", "a", record{Name: "x"}))

			entries, err := db.ListTable("acme")
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "a", string(entries[0][0]))
			assert.Equal(t, "b", string(entries[1][0]))

			var got record
			require.NoError(t, json.Unmarshal(entries[1][1], &got))
			assert.Equal(t, "b", got.Name)

			require.NoError(t, db.DropTable("acme"))
			assert.False(t, db.TableExists("acme"))
			assert.True(t, db.KeyExists("other", "a"))
		})
	}
}

func TestDatabaseReadOnly(t *testing.T) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ro.db"), dbinc.BackEndAuto)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, dbinc.BackendBoltDB, db.BackendType)

	db.UpdateReadWriteMode(true)
	assert.ErrorIs(t, db.Write("t", "k", 1), database.ErrReadOnly)
	assert.ErrorIs(t, db.NewTable("t"), database.ErrReadOnly)
	assert.ErrorIs(t, db.Delete("t", "k"), database.ErrReadOnly)
}

func TestParseBackendType(t *testing.T) {
	cases := map[string]dbinc.BackendType{
		"":        dbinc.BackEndAuto,
		"auto":    dbinc.BackEndAuto,
		"BoltDB":  dbinc.BackendBoltDB,
		"leveldb": dbinc.BackendLevelDB,
	}
	for input, want := range cases {
		got, ok := dbinc.ParseBackendType(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}
	_, ok := dbinc.ParseBackendType("sqlite")
	assert.False(t, ok)
}

package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MemoryDefaults(t *testing.T) {
	conn, err := Open()
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
}

func TestOpen_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "logs", "checksums.db")

	conn, err := Open(WithPath(dbPath))
	require.NoError(t, err)
	defer conn.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestOpen_AppliesSchemaTwice(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	schema := `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT);`

	conn, err := Open(WithPath(dbPath), WithSchema(schema))
	require.NoError(t, err)
	_, err = conn.Exec("INSERT INTO kv (k, v) VALUES ('a', 'b')")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	conn, err = Open(WithPath(dbPath), WithSchema(schema))
	require.NoError(t, err)
	defer conn.Close()

	var v string
	require.NoError(t, conn.Get(&v, "SELECT v FROM kv WHERE k = 'a'"))
	assert.Equal(t, "b", v)
}

func TestOpen_BadSchema(t *testing.T) {
	_, err := Open(WithSchema("CREATE NONSENSE"))
	assert.Error(t, err)
}

func TestOpen_WithPragmas(t *testing.T) {
	conn, err := Open(WithPath(filepath.Join(t.TempDir(), "cache.db")), WithPragmas("PRAGMA synchronous=OFF;"))
	require.NoError(t, err)
	defer conn.Close()

	var sync int
	require.NoError(t, conn.Get(&sync, "PRAGMA synchronous"))
	assert.Equal(t, 0, sync)

	var mode string
	require.NoError(t, conn.Get(&mode, "PRAGMA journal_mode"))
	assert.NotEqual(t, "wal", mode, "custom pragmas replace the defaults")
}

func TestOpen_DefaultPragmas(t *testing.T) {
	conn, err := Open(WithPath(filepath.Join(t.TempDir(), "state.db")))
	require.NoError(t, err)
	defer conn.Close()

	var mode string
	require.NoError(t, conn.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cleanbook/internal/ir"
)

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cleanbook.db")

	m, err := OpenSQLite(path)
	require.NoError(t, err)
	defer m.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cleanbook.db")

	for i := 0; i < 3; i++ {
		m, err := OpenSQLite(path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, m.Close())
	}

	m, err := OpenSQLite(path)
	require.NoError(t, err)
	defer m.Close()

	var name string
	err = m.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='collections'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "collections", name)
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	m, err := OpenSQLite(filepath.Join(t.TempDir(), "cleanbook.db"))
	require.NoError(t, err)
	defer m.Close()

	assert.NoError(t, m.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, m.verifyPragma("synchronous", "1"))
	assert.NoError(t, m.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, m.verifyPragma("user_version", "1"))
}

func TestSQLiteMedium_ReadWrite(t *testing.T) {
	ctx := context.Background()
	m, err := OpenSQLite(filepath.Join(t.TempDir(), "cleanbook.db"))
	require.NoError(t, err)
	defer m.Close()

	_, found, err := m.Read(ctx, "customers")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Write(ctx, "customers", []byte(`[{"id":"1"}]`)))
	require.NoError(t, m.Write(ctx, "customers", []byte(`[{"id":"2"}]`)))

	payload, found, err := m.Read(ctx, "customers")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"id":"2"}]`, string(payload))

	var rows int
	require.NoError(t, m.db.QueryRow("SELECT COUNT(*) FROM collections").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSQLiteMedium_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cleanbook.db")

	m, err := OpenSQLite(path)
	require.NoError(t, err)
	c := NewCollection[ir.Customer](ir.KindCustomer, m, quietLogger())
	_, err = c.Insert(ctx, ir.Customer{ID: "1", Name: "Ann", Phone: "555-0100", Address: "1 Elm St"})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer m2.Close()

	loaded, err := NewCollection[ir.Customer](ir.KindCustomer, m2, quietLogger()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.Customer{{ID: "1", Name: "Ann", Phone: "555-0100", Address: "1 Elm St"}}, loaded)
}

func TestSQLiteMedium_ClosedDatabaseIsPersistError(t *testing.T) {
	ctx := context.Background()
	m, err := OpenSQLite(filepath.Join(t.TempDir(), "cleanbook.db"))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	c := NewCollection[ir.Staff](ir.KindStaff, m, quietLogger())
	_, err = c.Insert(ctx, ir.Staff{ID: "9", Name: "Bo"})
	require.Error(t, err)
	assert.True(t, ir.IsPersist(err))
	assert.Len(t, c.All(), 1)
}

package testing

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teranos/tagstore/db"
)

// CreateTestDB creates an in-memory SQLite test database with every migration applied.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := db.OpenWithMigrations(db.MemoryPath, nil)
	require.NoError(t, err, "Failed to create test database")

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// CreateEmptyDB creates an in-memory SQLite database WITHOUT any tables.
// Used for testing error handling when the schema is missing.
func CreateEmptyDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := db.Open(db.MemoryPath, nil)
	require.NoError(t, err, "Failed to create empty database")

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// CountRows returns the number of rows in table
func CountRows(t *testing.T, q db.Querier, table string) int {
	t.Helper()
	var n int
	err := q.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n)
	require.NoError(t, err)
	return n
}

package utils

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRowsToMaps(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE test_table (
		id INTEGER PRIMARY KEY,
		name TEXT,
		value INTEGER,
		data BLOB
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO test_table (id, name, value, data) VALUES
		(1, 'test1', 100, 'binary1'),
		(2, 'test2', 200, 'binary2')`)
	require.NoError(t, err)

	rows, err := db.Query("SELECT * FROM test_table ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	results, err := ScanRowsToMaps(rows)
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0]["id"])
	assert.Equal(t, "test1", results[0]["name"])
	assert.Equal(t, int64(100), results[0]["value"])
	assert.Equal(t, "binary1", results[0]["data"])
	assert.Equal(t, int64(2), results[1]["id"])
}

func TestScanRowsToMapsHandlesNull(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE test_table (
		id INTEGER PRIMARY KEY,
		nullable_value INTEGER
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO test_table (id, nullable_value) VALUES (1, NULL)`)
	require.NoError(t, err)

	rows, err := db.Query("SELECT * FROM test_table")
	require.NoError(t, err)
	defer rows.Close()

	results, err := ScanRowsToMaps(rows)
	require.NoError(t, err)

	assert.Len(t, results, 1)
	assert.Nil(t, results[0]["nullable_value"])
}

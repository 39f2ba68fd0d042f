package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	database, err := Open("file::memory:")
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, RunMigrations(database))
	// Second run is a no-op
	require.NoError(t, RunMigrations(database))

	var tables []string
	err = database.Select(&tables, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'schema_%' ORDER BY name")
	require.NoError(t, err)
	assert.Equal(t, []string{"bots", "matches", "moves", "participants", "tournaments"}, tables)
}

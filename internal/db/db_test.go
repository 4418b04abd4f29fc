package db

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaSQL_DefinesTables(t *testing.T) {
	assert.True(t, strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS content_sessions"))
	assert.True(t, strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS content_artifacts"))
	assert.True(t, strings.Contains(schemaSQL, "ON DELETE CASCADE"))
}

func TestSessionRow_SnapshotNotSerialized(t *testing.T) {
	row := SessionRow{ID: "s1", Status: "active", Snapshot: []byte(`{"big":"doc"}`)}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "big")
	assert.Contains(t, string(data), `"id":"s1"`)
}

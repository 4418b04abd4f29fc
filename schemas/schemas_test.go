package schemas

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schemaFiles = []string{
	"session.schema.json",
	"config.schema.json",
}

func TestAllSchemaFiles_ValidJSON(t *testing.T) {
	for _, schemaFile := range schemaFiles {
		t.Run(schemaFile, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(".", schemaFile))
			require.NoError(t, err, "should be able to read schema file")

			var schemaObj map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &schemaObj), "schema file should be valid JSON: %s", schemaFile)

			_, hasSchema := schemaObj["$schema"]
			_, hasProps := schemaObj["properties"]
			assert.True(t, hasSchema && hasProps, "schema should declare $schema and properties")
		})
	}
}

func TestEmbeddedSchemasMatchFiles(t *testing.T) {
	embedded := map[string]string{
		"session.schema.json": Session,
		"config.schema.json":  Config,
	}
	for name, content := range embedded {
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.Equal(t, string(data), content, name)
	}
}

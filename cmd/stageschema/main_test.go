package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchema(t *testing.T) {
	data, err := marshalSchema(buildSchema())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "tessera stage", doc["title"])

	stage := doc
	if defs, ok := doc["definitions"].(map[string]any); ok && doc["properties"] == nil {
		stage, _ = defs["StageData"].(map[string]any)
	}
	props, ok := stage["properties"].(map[string]any)
	require.True(t, ok, "schema should describe the stage properties")
	for _, key := range []string{"tiles", "entities", "instances", "map", "matrix"} {
		assert.Contains(t, props, key)
	}
	assert.ElementsMatch(t, []any{"tiles", "matrix"}, stage["required"])
}

func TestWriteSchema(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "stage.schema.json")
	require.NoError(t, writeSchema(out, []byte("{}\n")))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(got))

	_, err = os.Stat(out + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `package entities

entity: Person: {
	email: string
	name:  string
	age?:  int
}

entity: Pet: {
	name: string
}
`

func TestSchema_Valid(t *testing.T) {
	dir := testEnv(t, "memory")
	schemaDir := t.TempDir()
	writeFile(t, schemaDir, "entities.cue", testSchema)

	out, err := execute(t, "--config", dir, "schema", schemaDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema valid: 2 kind(s)")
	assert.Contains(t, out, "Person { age?: int, email: string, name: string }")
	assert.Contains(t, out, "Pet { name: string }")
}

func TestSchema_JSON(t *testing.T) {
	dir := testEnv(t, "memory")
	schemaDir := t.TempDir()
	writeFile(t, schemaDir, "entities.cue", testSchema)

	out, err := execute(t, "--config", dir, "--format", "json", "schema", schemaDir)
	require.NoError(t, err)

	var result SchemaResult
	decode(t, out, &result)
	assert.True(t, result.Valid)
	require.Len(t, result.Kinds, 2)
	assert.Equal(t, "Person", result.Kinds[0].Name)
	assert.Equal(t, FieldSummary{Name: "age", Type: "int", Optional: true}, result.Kinds[0].Fields[0])
}

func TestSchema_FromConfig(t *testing.T) {
	dir := testEnv(t, "memory")
	schemaDir := t.TempDir()
	writeFile(t, schemaDir, "entities.cue", testSchema)
	t.Setenv("SCHEMA_DIR", schemaDir)

	out, err := execute(t, "--config", dir, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "2 kind(s)")
}

func TestSchema_Errors(t *testing.T) {
	dir := testEnv(t, "memory")

	floatDir := t.TempDir()
	writeFile(t, floatDir, "entities.cue", "package entities\n\nentity: Item: {\n\tprice: float\n}\n")

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"float field", []string{floatDir}, ErrCodeSchema},
		{"missing dir", []string{dir + "/missing"}, ErrCodeNotFound},
		{"no dir configured", nil, ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--config", dir, "--format", "json", "schema"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			resp := decode(t, out, nil)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

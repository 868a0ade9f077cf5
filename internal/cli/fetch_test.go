package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_Clauses(t *testing.T) {
	dir := testEnv(t, "sqlite")
	seed(t, dir)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"all", []string{"Person"}, []string{"Ann", "Bob"}},
		{"equals", []string{"Person", `name == "Bob"`}, []string{"Bob"}},
		{"clause split across args", []string{"Person", "age", "==", "30"}, []string{"Ann"}},
		{"case insensitive", []string{"Person", `email BEGINSWITH[c] "ANN"`}, []string{"Ann"}},
		{"not", []string{"Person", `NOT name == "Ann"`}, []string{"Bob"}},
		{"in", []string{"Person", `age IN {25, 99}`}, []string{"Bob"}},
		{"missing attribute is null", []string{"Person", `nickname == nil`}, []string{"Ann", "Bob"}},
		{"sort descending", []string{"Person", "--sort", "-age"}, []string{"Ann", "Bob"}},
		{"sort ascending", []string{"Person", "--sort", "age"}, []string{"Bob", "Ann"}},
		{"limit", []string{"Person", "--sort", "name", "--limit", "1"}, []string{"Ann"}},
		{"offset", []string{"Person", "--sort", "name", "--offset", "1"}, []string{"Bob"}},
		{"batch size", []string{"Person", "--batch-size", "1"}, []string{"Ann", "Bob"}},
		{"other entity", []string{"Pet"}, []string{"Rex"}},
		{"no matches", []string{"Person", "FALSEPREDICATE"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(fetchPeople(t, dir, tt.args...)))
		})
	}
}

func TestFetch_Count(t *testing.T) {
	dir := testEnv(t, "sqlite")
	seed(t, dir)

	out, err := execute(t, "--config", dir, "fetch", "Person", "--count")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))
}

func TestFetch_TextOutput(t *testing.T) {
	dir := testEnv(t, "sqlite")
	seed(t, dir)

	out, err := execute(t, "--config", dir, "fetch", "Pet")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "Pet\t"))
	assert.True(t, strings.HasSuffix(lines[0], "\t{\"name\":\"Rex\"}"))
}

func TestFetch_InvalidQuery(t *testing.T) {
	dir := testEnv(t, "memory")

	tests := []struct {
		name string
		args []string
	}{
		{"unparsable clause", []string{"Person", `name ==`}},
		{"bad kind", []string{"not a kind"}},
		{"bad regex", []string{"Person", `name MATCHES "("`}},
		{"negative limit", []string{"Person", "--limit", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--config", dir, "--format", "json", "fetch"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			resp := decode(t, out, nil)
			assert.Equal(t, ErrCodeInvalidQuery, resp.Error.Code)
		})
	}
}

func TestFetch_SchemaMismatch(t *testing.T) {
	dir := testEnv(t, "memory")
	schemaDir := t.TempDir()
	writeFile(t, schemaDir, "entities.cue", "package entities\n\nentity: Person: {\n\tname: string\n\tage?: int\n}\n")
	t.Setenv("SCHEMA_DIR", schemaDir)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown kind", []string{"Robot"}},
		{"unknown attribute", []string{"Person", `email == "x"`}},
		{"wrong literal type", []string{"Person", `age == "old"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--config", dir, "--format", "json", "fetch"}, tt.args...)...)
			require.Error(t, err)
			resp := decode(t, out, nil)
			assert.Equal(t, ErrCodeSchema, resp.Error.Code)
		})
	}

	_, err := execute(t, "--config", dir, "fetch", "Person", `age == 3`)
	assert.NoError(t, err)
}

func TestFetch_MissingSchemaDir(t *testing.T) {
	dir := testEnv(t, "memory")
	t.Setenv("SCHEMA_DIR", dir+"/nope")

	out, err := execute(t, "--config", dir, "--format", "json", "fetch", "Person")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	resp := decode(t, out, nil)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestFetch_VerboseLogsToStderr(t *testing.T) {
	dir := testEnv(t, "memory")

	out, err := execute(t, "--config", dir, "--format", "json", "--verbose", "fetch", "Person", `name MATCHES "A.*"`)
	require.NoError(t, err)
	resp := decode(t, out, nil)
	assert.Equal(t, "ok", resp.Status)
}

func TestBuildRequest(t *testing.T) {
	req, err := BuildRequest("Person", `name == "Ann"`, QueryFlags{
		Sort:  []string{"-age", " name "},
		Limit: 5, Offset: 2, BatchSize: 10,
	})
	require.NoError(t, err)

	q := req.Query()
	assert.Equal(t, "Person", q.Entity)
	require.Len(t, q.Sort, 2)
	assert.Equal(t, "age", q.Sort[0].Field)
	assert.True(t, q.Sort[0].Descending)
	assert.Equal(t, "name", q.Sort[1].Field)
	assert.False(t, q.Sort[1].Descending)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, 2, q.Offset)
	assert.Equal(t, 10, q.BatchSize)
	assert.NotNil(t, q.Filter)

	req, err = BuildRequest("Person", "   ", QueryFlags{})
	require.NoError(t, err)
	assert.Nil(t, req.Predicate())
}

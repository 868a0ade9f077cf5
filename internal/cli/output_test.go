package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/record"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeReadFailure, "fetch failed", "disk on fire")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E301", resp.Error.Code)
	assert.Equal(t, "fetch failed", resp.Error.Message)
	assert.Equal(t, "disk on fire", resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("E001", "something broke", "context"))
			assert.Contains(t, buf.String(), "Error [E001]: something broke")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: context")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_TextSuccessUsesStringer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(VerifyResult{Store: "db"}))
	assert.Equal(t, "✓ All checksums match in db\n", buf.String())
}

func TestOutputFormatter_Records(t *testing.T) {
	ann := record.FromSnapshot(record.Snapshot{
		ID: "u1", Entity: "Person", Seq: 1,
		Attrs: ir.IRObject{"name": ir.IRString("Ann"), "age": ir.IRInt(30)},
	})
	bob := record.FromSnapshot(record.Snapshot{
		ID: "u2", Entity: "Person", Seq: 2,
		Attrs: ir.IRObject{"name": ir.IRString("Bob")},
	})

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		require.NoError(t, formatter.Records([]*record.Record{ann, bob}))
		assert.Equal(t,
			"Person\tu1\t{\"age\":30,\"name\":\"Ann\"}\n"+
				"Person\tu2\t{\"name\":\"Bob\"}\n",
			buf.String())
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, formatter.Records([]*record.Record{ann, bob}))

		var resp struct {
			Status string       `json:"status"`
			Data   []RecordView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, "u1", resp.Data[0].ID)
		assert.Equal(t, "Ann", resp.Data[0].Attrs["name"])
		assert.EqualValues(t, 30, resp.Data[0].Attrs["age"])
		assert.Equal(t, "u2", resp.Data[1].ID)
	})

	t.Run("json empty is an array", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, formatter.Records(nil))
		assert.Contains(t, buf.String(), `"data":[]`)
	})
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := errors.New("boom")
	err := formatter.Fail(ExitFailure, ErrCodeWriteFailure, "commit failed", cause)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitFailure, exitErr.Code)
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "E302", resp.Error.Code)
	assert.Equal(t, "boom", resp.Error.Details)
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Fetching %s", "Person")

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Fetching Person")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("x"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "inner", errors.New("x"))), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "bad flag", NewExitError(ExitCommandError, "bad flag").Error())
	assert.Equal(t, "open: denied", WrapExitError(ExitCommandError, "open", errors.New("denied")).Error())
}

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clipforge/internal/batch"
	"github.com/roach88/clipforge/internal/manifest"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_Success(t *testing.T) {
	t.Run("json carries data and batch id", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Success("batch-1", BatchSummary{ID: "batch-1", Total: 4}, "ignored in json"))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "batch-1", resp.BatchID)
		assert.Nil(t, resp.Error)
		assert.NotContains(t, buf.String(), "ignored")
	})

	t.Run("text prints text with trailing newline", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}

		require.NoError(t, f.Success("", PlanResult{Total: 3}, "3 simple jobs"))
		assert.Equal(t, "3 simple jobs\n", buf.String())
	})

	t.Run("text falls back to data", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}

		require.NoError(t, f.Success("", BatchSummary{ID: "b", Status: batch.StatusCompleted, Total: 1, Completed: 1}, ""))
		assert.Equal(t, "batch b completed: 1/1 rendered, 0 failed\n", buf.String())
	})
}

func TestOutputFormatter_Error(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Error("PRECONDITION", "select a background track", map[string]string{"field": "music"}))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "PRECONDITION", resp.Error.Code)
		assert.Equal(t, "select a background track", resp.Error.Message)
		assert.NotNil(t, resp.Error.Details)
	})

	t.Run("text goes to the error writer", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

		require.NoError(t, f.Error("COMMAND", "boom", map[string]string{"file": "batch.cue"}))
		assert.Empty(t, out.String())
		assert.Equal(t, "Error [COMMAND]: boom\n", errOut.String())
	})

	t.Run("text verbose adds details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

		require.NoError(t, f.Error("INVALID_MANIFEST", "schema violation", "count: invalid value 0"))
		assert.Contains(t, buf.String(), "Error [INVALID_MANIFEST]: schema violation")
		assert.Contains(t, buf.String(), "Details: count: invalid value 0")
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	for _, verbose := range []bool{true, false} {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: &bytes.Buffer{}, ErrWriter: buf, Verbose: verbose}

		f.VerboseLog("discarded interrupted batch %s", "b1")

		if verbose {
			assert.Equal(t, "discarded interrupted batch b1\n", buf.String())
		} else {
			assert.Empty(t, buf.String())
		}
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"batch error", WrapExitError(ExitCommandError, "cannot plan", &batch.Error{Code: batch.ErrCodeOverflow}), "COMBINATION_OVERFLOW"},
		{"manifest error", WrapExitError(ExitCommandError, "load", &manifest.LoadError{File: "x.cue"}), "INVALID_MANIFEST"},
		{"incomplete batch", NewExitError(ExitFailure, "2 failed"), "BATCH_INCOMPLETE"},
		{"other", errors.New("disk full"), "COMMAND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "failed to load manifest", cause)

	assert.Equal(t, "failed to load manifest: no such file", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(cause))
	assert.Equal(t, "batch b cancelled", NewExitError(ExitFailure, "batch b cancelled").Error())
}

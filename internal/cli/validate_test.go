package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	validDecls    = filepath.Join("testdata", "decls", "valid")
	rejectedDecls = filepath.Join("testdata", "decls", "rejected")
	brokenDecls   = filepath.Join("testdata", "decls", "broken")
)

func executeValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidDeclarations(t *testing.T) {
	output, err := executeValidate(t, "text", validDecls)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ All declarations valid (1 type(s), 1 function(s))")
}

func TestValidateValidDeclarationsJSON(t *testing.T) {
	output, err := executeValidate(t, "json", validDecls)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Types)
	assert.Equal(t, 1, resp.Data.Functions)
}

func TestValidateRejectedDeclaration(t *testing.T) {
	output, err := executeValidate(t, "text", rejectedDecls)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, "Ledger.add")
	assert.Contains(t, output, "E203 InvalidOldOperand")
	assert.Contains(t, output, "clause: old(total + 1) == result")
	assert.NotContains(t, output, "Ledger.reset")
}

func TestValidateRejectedDeclarationJSON(t *testing.T) {
	output, err := executeValidate(t, "json", rejectedDecls)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "E203", resp.Data.Errors[0].Code)
	assert.Equal(t, "InvalidOldOperand", resp.Data.Errors[0].Kind)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E203", resp.Error.Code)
}

const multiErrorDecls = `package decls

type: Ledger: {
	fields: total: "int"
	methods: add: {
		params: [{name: "amount", type: "int"}]
		result: "int"
		requires: ["amount >"]
		ensures: ["old(total + 1) == result"]
	}
}

function: {
	scale: {
		public_name: "Scale"
		params: [{name: "x", type: "int"}]
		requires: ["x > 0"]
	}
	resize: {
		public_name: "Scale"
		params: [{name: "x", type: "int"}]
		requires: ["x > 0"]
	}
}
`

func TestValidateAllReportsEveryBrokenRule(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "decls.cue"), []byte(multiErrorDecls), 0644))

	codes := func(args ...string) []string {
		output, err := executeValidate(t, "json", args...)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp struct {
			Data ValidationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(output), &resp))
		var out []string
		for _, e := range resp.Data.Errors {
			out = append(out, e.Callable+" "+e.Code)
		}
		return out
	}

	// generation stops at the first error of Ledger.add
	assert.ElementsMatch(t, []string{"Ledger.add E201", "resize E206"}, codes(dir))
	assert.ElementsMatch(t, []string{"Ledger.add E201", "Ledger.add E203", "resize E206"}, codes(dir, "--all"))
}

func TestValidateAllOnValidDeclarations(t *testing.T) {
	output, err := executeValidate(t, "text", validDecls, "--all")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ All declarations valid")
}

func TestValidateLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"missing_directory", "/nonexistent/directory/path", ErrCodeNotFound},
		{"empty_directory", t.TempDir(), ErrCodeNoFiles},
		{"missing_param_name", brokenDecls, ErrCodeMissingName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := executeValidate(t, "text", tt.dir)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.code)
			assert.Contains(t, output, "Error ["+tt.code+"]")
		})
	}
}

func TestValidateMissingArgs(t *testing.T) {
	_, err := executeValidate(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

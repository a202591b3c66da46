package cli

import (
	"bytes"
	"encoding/json"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeEmit(t *testing.T, format string, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewEmitCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestEmitToStdout(t *testing.T) {
	src, _, err := executeEmit(t, "text", validDecls, "--package", "accounts")
	require.NoError(t, err)

	assert.Contains(t, src, "// Code generated by covenant. DO NOT EDIT.")
	assert.Contains(t, src, "package accounts")
	assert.Contains(t, src, `"github.com/roach88/covenant/internal/enforce"`)
	assert.Contains(t, src, "Deposit(")
	assert.Contains(t, src, "func Clamp(")

	_, err = parser.ParseFile(token.NewFileSet(), "emitted.go", src, parser.AllErrors)
	require.NoError(t, err)
}

func TestEmitToFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "contracts_gen.go")

	output, _, err := executeEmit(t, "text", validDecls, "-p", "accounts", "-o", outFile)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ Wrote 4 wrapper(s) to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "package accounts")
}

func TestEmitCustomRuntimeImport(t *testing.T) {
	src, _, err := executeEmit(t, "text", validDecls, "-p", "accounts", "--runtime-import", "example.com/contracts/runtime")
	require.NoError(t, err)
	assert.Contains(t, src, `enforce "example.com/contracts/runtime"`)
}

func TestEmitJSONIncludesSource(t *testing.T) {
	output, _, err := executeEmit(t, "json", validDecls, "-p", "accounts")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   EmitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "accounts", resp.Data.Package)
	assert.Len(t, resp.Data.Wrappers, 4)
	assert.Contains(t, resp.Data.Source, "package accounts")
}

func TestEmitSkipsRejected(t *testing.T) {
	src, errOut, err := executeEmit(t, "text", rejectedDecls, "-p", "ledger")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, src, "Reset(")
	assert.NotContains(t, src, "Add(")
	assert.Contains(t, errOut, "✗ Rejected 1 declaration(s)")
	assert.Contains(t, errOut, "E203 Ledger.add")
}

func TestEmitRequiresPackage(t *testing.T) {
	_, _, err := executeEmit(t, "text", validDecls)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"package" not set`)
}

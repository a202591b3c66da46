package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/covenant/internal/store"
)

func executeGenerate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewGenerateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestGenerateText(t *testing.T) {
	output, err := executeGenerate(t, "text", validDecls)
	require.NoError(t, err)

	assert.Contains(t, output, "✓ Generated 4 wrapper(s), 1 pass-through")
	assert.Contains(t, output, "  Account.NewAccount\n")
	assert.Contains(t, output, "  Account.Deposit\n")
	assert.Contains(t, output, "  Account.Withdraw\n")
	assert.Contains(t, output, "  Clamp\n")
	assert.NotContains(t, output, "Rejected")
}

func TestGenerateJSON(t *testing.T) {
	output, err := executeGenerate(t, "json", validDecls)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   GenerationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"Account.NewAccount", "Account.Deposit", "Account.Withdraw", "Clamp"}, resp.Data.Wrappers)
	assert.Equal(t, []string{"Account.peek"}, resp.Data.PassThrough)
	assert.Nil(t, resp.Data.Run)
}

func TestGenerateBestEffort(t *testing.T) {
	output, err := executeGenerate(t, "text", rejectedDecls)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, output, "✓ Generated 1 wrapper(s)")
	assert.Contains(t, output, "  Ledger.Reset\n")
	assert.Contains(t, output, "✗ Rejected 1 declaration(s)")
	assert.Contains(t, output, "E203 Ledger.add")
}

func TestGenerateWritesDescriptors(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "descriptors.json")

	output, err := executeGenerate(t, "text", validDecls, "--output", outFile)
	require.NoError(t, err)
	assert.Contains(t, output, "Wrote descriptors to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)

	var file struct {
		GeneratorVersion string `json:"generator_version"`
		Descriptors      []struct {
			PublicName     string `json:"public_name"`
			Implementation string `json:"implementation"`
		} `json:"descriptors"`
	}
	require.NoError(t, json.Unmarshal(data, &file))
	assert.NotEmpty(t, file.GeneratorVersion)
	require.Len(t, file.Descriptors, 4)
	assert.Equal(t, "Withdraw", file.Descriptors[2].PublicName)
	assert.Equal(t, "_withdraw", file.Descriptors[2].Implementation)
}

func TestGenerateLedgerDrift(t *testing.T) {
	db := filepath.Join(t.TempDir(), "covenant.db")

	output, err := executeGenerate(t, "text", validDecls, "--ledger", db)
	require.NoError(t, err)
	assert.Contains(t, output, "Ledger run 1: no previous run")

	output, err = executeGenerate(t, "text", validDecls, "--ledger", db)
	require.NoError(t, err)
	assert.Contains(t, output, "Ledger run 2: no drift since run 1")

	// A different label starts its own history.
	output, err = executeGenerate(t, "json", rejectedDecls, "--ledger", db, "--label", "ledger")
	require.Error(t, err)
	var resp struct {
		Data GenerationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.NotNil(t, resp.Data.Run)
	assert.Equal(t, int64(3), *resp.Data.Run)
	assert.Nil(t, resp.Data.Drift)
}

func TestGenerateJSONCarriesLedgerDeclarationHash(t *testing.T) {
	db := filepath.Join(t.TempDir(), "covenant.db")

	output, err := executeGenerate(t, "json", validDecls, "--ledger", db)
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.NotEmpty(t, resp.Declarations)

	ledger, err := store.Open(db)
	require.NoError(t, err)
	defer ledger.Close()
	run, err := ledger.ReadRun(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, run.DeclarationHash, resp.Declarations)

	// rejected sets hash differently
	output, err = executeGenerate(t, "json", rejectedDecls)
	require.Error(t, err)
	var rejected CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &rejected))
	assert.NotEmpty(t, rejected.Declarations)
	assert.NotEqual(t, resp.Declarations, rejected.Declarations)
}

func TestGenerateLedgerReportsChangedDeclarations(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "covenant.db")
	decls := filepath.Join(dir, "decls")
	require.NoError(t, os.MkdirAll(decls, 0755))

	write := func(src string) {
		require.NoError(t, os.WriteFile(filepath.Join(decls, "fn.cue"), []byte(src), 0644))
	}

	write(`package decls

function: double: {
	params: [{name: "x", type: "int"}]
	result: "int"
	ensures: ["result == x * 2"]
}
`)
	_, err := executeGenerate(t, "text", decls, "--ledger", db)
	require.NoError(t, err)

	write(`package decls

function: double: {
	params: [{name: "x", type: "int"}]
	result: "int"
	ensures: ["result == x + x"]
}

function: half: {
	params: [{name: "x", type: "int"}]
	result: "int"
	requires: ["x % 2 == 0"]
}
`)
	output, err := executeGenerate(t, "text", decls, "--ledger", db)
	require.NoError(t, err)
	assert.Contains(t, output, "Ledger run 2: drift since run 1")
	assert.Contains(t, output, "  declarations changed\n")
	assert.Contains(t, output, "  + Half\n")
	assert.Contains(t, output, "  ~ Double\n")
}

func TestGenerateLoadError(t *testing.T) {
	output, err := executeGenerate(t, "json", "/nonexistent/decls")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "One call to a free function"
declarations: |
  function: twice: {
    params: [{name: "x", type: "int"}]
    result: "int"
    ensures: ["result == x * 2"]
  }
implementations:
  Twice:
    result: "x * 2"
steps:
  - call: Twice
    args: [21]
    expect: { result: 42 }
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "minimal.yaml", minimalScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, "One call to a free function", scenario.Description)
	assert.Contains(t, scenario.Declarations, "function: twice")
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, "Twice", scenario.Steps[0].Call)
	assert.Equal(t, []any{21}, scenario.Steps[0].Args)
	assert.Equal(t, 42, scenario.Steps[0].Expect.Result)
	assert.Equal(t, "x * 2", scenario.Implementations["Twice"].Result)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_ResolvesDeclarationFile(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "decls.cue", `function: f: { result: "int", ensures: ["result > 0"] }`)
	path := writeScenario(t, dir, "s.yaml", `
name: relative
description: "declarations next to the scenario"
declaration_file: decls.cue
steps:
  - call: F
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "decls.cue"), scenario.DeclarationFile)
}

func TestLoadScenario_DeclarationFileNotFound(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", `
name: missing_decls
description: "points at nothing"
declaration_file: nowhere.cue
steps:
  - call: F
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declaration file not found")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "step: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\ndeclarations: x\nsteps: [{call: F}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\ndeclarations: x\nsteps: [{call: F}]",
			wantErr: "description is required",
		},
		{
			name:    "missing declarations",
			yaml:    "name: n\ndescription: d\nsteps: [{call: F}]",
			wantErr: "declarations or declaration_file is required",
		},
		{
			name:    "both declaration sources",
			yaml:    "name: n\ndescription: d\ndeclarations: x\ndeclaration_file: y.cue\nsteps: [{call: F}]",
			wantErr: "mutually exclusive",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\ndeclarations: x",
			wantErr: "steps list is required",
		},
		{
			name:    "step without call",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nsteps: [{on: a}]",
			wantErr: "steps[0]: call is required",
		},
		{
			name:    "violation and error",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nsteps: [{call: F, expect: {violation: PreconditionViolation, error: boom}}]",
			wantErr: "violation and error are mutually exclusive",
		},
		{
			name:    "clause without violation",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nsteps: [{call: F, expect: {clause: x > 0}}]",
			wantErr: "clause requires violation",
		},
		{
			name:    "nested concurrent group",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nsteps: [{concurrent: [{concurrent: [{call: F}]}]}]",
			wantErr: "cannot be nested",
		},
		{
			name:    "bind in concurrent group",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nsteps: [{concurrent: [{call: F, bind: a}]}]",
			wantErr: "bind is not allowed",
		},
		{
			name:    "object without type",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nobjects: {a: {fields: {}}}\nsteps: [{call: F}]",
			wantErr: "objects[a]: type is required",
		},
		{
			name:    "rejection without kind",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nrejections: [{callable: f}]",
			wantErr: "rejections[0]: kind is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nsteps: [{call: F}]\nassertions: [{type: trace_order}]",
			wantErr: `unknown assertion type "trace_order"`,
		},
		{
			name:    "final_state without expect",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nsteps: [{call: F}]\nassertions: [{type: final_state, object: a}]",
			wantErr: "expect is required for final_state",
		},
		{
			name:    "negative count",
			yaml:    "name: n\ndescription: d\ndeclarations: x\nsteps: [{call: F}]\nassertions: [{type: trace_count, call: F, count: -1}]",
			wantErr: "count must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_RejectionsOnly(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: rejections_only
description: "nothing to call"
declarations: x
rejections:
  - kind: DuplicatePublicName
    callable: _add
`))
	require.NoError(t, err)
	assert.Empty(t, scenario.Steps)
	assert.Equal(t, []Rejection{{Kind: "DuplicatePublicName", Callable: "_add"}}, scenario.Rejections)
}

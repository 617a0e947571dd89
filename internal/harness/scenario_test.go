package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
services: [Deep Clean]
setup:
  - op: create
    kind: customer
    as: ann
    fields:
      name: Ann
steps:
  - op: update
    kind: customer
    id: $ann
    fields:
      phone: "555"
  - op: fetch
    kind: customer
    id: missing
    expect:
      error: NOT_FOUND
assertions:
  - type: final_state
    kind: customer
    id: $ann
    expect:
      phone: "555"
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, []string{"Deep Clean"}, scenario.Services)
	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, "ann", scenario.Setup[0].As)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, "$ann", scenario.Steps[0].ID)
	assert.Equal(t, "555", scenario.Steps[0].Fields["phone"])
	require.NotNil(t, scenario.Steps[1].Expect)
	assert.Equal(t, "NOT_FOUND", scenario.Steps[1].Expect.Error)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "misspelled key"
step:
  - op: create
    kind: staff
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{op: create, kind: staff}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{op: create, kind: staff}]",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown op",
			yaml:    "name: n\ndescription: d\nsteps: [{op: upsert, kind: staff}]",
			wantErr: `unknown op "upsert"`,
		},
		{
			name:    "unknown kind",
			yaml:    "name: n\ndescription: d\nsteps: [{op: create, kind: invoice}]",
			wantErr: `unknown record kind "invoice"`,
		},
		{
			name:    "update without id",
			yaml:    "name: n\ndescription: d\nsteps: [{op: update, kind: staff}]",
			wantErr: "id is required for update",
		},
		{
			name:    "create with id",
			yaml:    "name: n\ndescription: d\nsteps: [{op: create, kind: staff, id: x}]",
			wantErr: "id is assigned on create",
		},
		{
			name:    "unknown error code",
			yaml:    "name: n\ndescription: d\nsteps: [{op: create, kind: staff, expect: {error: OOPS}}]",
			wantErr: `unknown error code "OOPS"`,
		},
		{
			name:    "expect in setup",
			yaml:    "name: n\ndescription: d\nsetup: [{op: create, kind: staff, expect: {error: VALIDATION}}]\nsteps: [{op: create, kind: staff}]",
			wantErr: "expect is not allowed in setup",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{op: create, kind: staff}]\nassertions: [{type: vibes}]",
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name:    "projection without state or order",
			yaml:    "name: n\ndescription: d\nsteps: [{op: create, kind: staff}]\nassertions: [{type: projection}]",
			wantErr: "state or order is required",
		},
		{
			name:    "booking without expect",
			yaml:    "name: n\ndescription: d\nsteps: [{op: create, kind: staff}]\nassertions: [{type: booking, id: x}]",
			wantErr: "id and expect are required",
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

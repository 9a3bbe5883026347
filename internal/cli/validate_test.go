package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validateCmd(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidInputs(t *testing.T) {
	out, err := validateCmd(t, &RootOptions{Format: "text"}, ontologyPath("disjoint.yaml"), ontologyPath("*.cue"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 2 file(s), 5 axiom(s), ")
}

func TestValidateValidInputsJSON(t *testing.T) {
	out, err := validateCmd(t, &RootOptions{Format: "json"}, ontologyPath("clash.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Files)
	assert.Equal(t, 3, resp.Data.Axioms)
	assert.Positive(t, resp.Data.Rules)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	dir := t.TempDir()
	rules := writeFile(t, dir, "bad.rules", `COMPLETION "orphan"
IF    { ?x type Class }
INFER { ?x is_a(2) ?x }
`)
	txt := writeFile(t, dir, "notes.txt", "classes: [A]\n")

	out, err := validateCmd(t, &RootOptions{Format: "json", Rules: rules},
		ontologyPath("broken.yaml"), txt, ontologyPath("disjoint.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Files)

	codes := make([]string, len(resp.Data.Errors))
	for i, e := range resp.Data.Errors {
		codes[i] = e.Code
	}
	// Rules first, then inputs in sorted path order.
	assert.Equal(t, []string{"E105", "E203", "E202"}, codes)
	assert.Equal(t, rules, resp.Data.Errors[0].Path)
	assert.Equal(t, txt, resp.Data.Errors[1].Path)
	assert.Equal(t, 2, resp.Data.Errors[2].Line)
}

func TestValidateText(t *testing.T) {
	out, err := validateCmd(t, &RootOptions{Format: "text"}, ontologyPath("broken.yaml"))
	require.Error(t, err)
	assert.Contains(t, out, "✗ 1 error(s)\n")
	assert.Contains(t, out, "broken.yaml:2:")
	assert.Contains(t, out, "[E202]")
}

func TestValidateNoMatch(t *testing.T) {
	out, err := validateCmd(t, &RootOptions{Format: "text"}, ontologyPath("none-*.yaml"))
	require.Error(t, err)
	assert.Contains(t, out, "[E005]")
}

func TestValidationIssueString(t *testing.T) {
	tests := []struct {
		issue ValidationIssue
		want  string
	}{
		{ValidationIssue{Code: "E101", Message: "bad"}, "[E101] bad"},
		{ValidationIssue{Code: "E201", Path: "a.yaml", Message: "bad"}, "a.yaml: [E201] bad"},
		{ValidationIssue{Code: "E202", Path: "a.yaml", Line: 3, Column: 7, Message: "bad"}, "a.yaml:3:7: [E202] bad"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.issue.String())
	}
}

const markRules = `STAGE "main"

COMPLETION RECURSIVE "mark"
IF    { ?x type NamedIndividual }
INFER { ?x concrete }
`

func TestValidateReportsCycleWarnings(t *testing.T) {
	rules := writeFile(t, t.TempDir(), "mark.rules", markRules)

	out, err := validateCmd(t, &RootOptions{Format: "text", Rules: rules}, ontologyPath("clash.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 file(s), 3 axiom(s), ")
	assert.Contains(t, out, "! RECURSIVE rule cannot trigger itself: mark\n")

	out, err = validateCmd(t, &RootOptions{Format: "json", Rules: rules}, ontologyPath("clash.yaml"))
	require.NoError(t, err)

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, []string{"mark"}, resp.Data.Warnings[0].Path)
	assert.Equal(t, "warning", resp.Data.Warnings[0].Level)
}

func TestValidateDefaultRulesHaveNoWarnings(t *testing.T) {
	out, err := validateCmd(t, &RootOptions{Format: "json"}, ontologyPath("clash.yaml"))
	require.NoError(t, err)

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Data.Warnings)
}

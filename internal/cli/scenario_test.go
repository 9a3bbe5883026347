package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios", "*.yaml")

func scenarioCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewScenarioCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestScenarioCommand_Pass(t *testing.T) {
	out, err := scenarioCmd(t, "text", harnessScenarios)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "scenario_pass", []byte(out))
}

func TestScenarioCommand_Fail(t *testing.T) {
	out, err := scenarioCmd(t, "text", filepath.Join("testdata", "scenarios", "*.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	newGoldie(t).Assert(t, "scenario_fail", []byte(out))
}

func TestScenarioCommand_Filter(t *testing.T) {
	out, err := scenarioCmd(t, "json", harnessScenarios, "--filter", "dis*")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   ScenarioResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "disjoint_conjunction", resp.Data.Scenarios[0].Name)
}

func TestScenarioCommand_NoneAfterFilter(t *testing.T) {
	out, err := scenarioCmd(t, "text", harnessScenarios, "--filter", "zzz*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestScenarioCommand_MissingArgs(t *testing.T) {
	_, err := scenarioCmd(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestScenarioCommand_NoMatch(t *testing.T) {
	out, err := scenarioCmd(t, "text", filepath.Join(t.TempDir(), "*.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestFilterScenarios(t *testing.T) {
	paths := []string{"a/chain_200.yaml", "a/disjoint.yaml", "b/dis.yml"}

	got, err := filterScenarios(paths, "dis*")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/disjoint.yaml", "b/dis.yml"}, got)

	got, err = filterScenarios(paths, "")
	require.NoError(t, err)
	assert.Equal(t, paths, got)

	_, err = filterScenarios(paths, "[")
	assert.Error(t, err)
}

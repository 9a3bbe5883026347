package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestExplain_Golden(t *testing.T) {
	path := writeFile(t, t.TempDir(), "small.rules", smallRules)

	buf := &bytes.Buffer{}
	cmd := NewExplainCommand(&RootOptions{Format: "text", Rules: path})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"is_a_transitive"})
	require.NoError(t, cmd.Execute())

	newGoldie(t).Assert(t, "explain_is_a_transitive", buf.Bytes())
}

func TestExplain_AllRulesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewExplainCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string    `json:"status"`
		Data   []RuleSQL `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotEmpty(t, resp.Data)

	byName := map[string]RuleSQL{}
	for _, r := range resp.Data {
		byName[r.Rule] = r
	}
	assert.Equal(t, "flat_and", resp.Data[0].Rule)
	assert.Equal(t, "CreateFlatList", byName["flat_and"].Builtin)
	assert.Empty(t, byName["flat_and"].Full)

	trans := byName["is_a_transitive"]
	assert.Contains(t, trans.Full, "INSERT OR IGNORE INTO is_a")
	assert.Contains(t, trans.Incremental, "rowid>?")
	assert.Contains(t, trans.Watermarks, "is_a")
}

func TestExplain_UnknownRule(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewExplainCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"no_such_rule"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), `unknown rule "no_such_rule"`)
}

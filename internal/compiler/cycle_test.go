package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompileT(t *testing.T, src string) *RuleSet {
	t.Helper()
	rs, err := Compile([]byte(src))
	require.NoError(t, err)
	return rs
}

func TestAnalyzeCycles_Nil(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	rs := mustCompileT(t, `STAGE "m"
COMPLETION "individual_concrete" IF { ?x type NamedIndividual } INFER { ?x concrete }
COMPLETION "inconsistent" IF { Nothing concrete } RAISE "Inconsistent"`)

	assert.Empty(t, AnalyzeCycles(rs))
}

func TestAnalyzeCycles_RecursiveSelfLoop(t *testing.T) {
	rs := mustCompileT(t, `STAGE "m"
COMPLETION RECURSIVE "trans" IF { ?x is_a ?y ?y is_a ?z } INFER { ?x is_a(3) ?z }`)

	warnings := AnalyzeCycles(rs)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"trans", "trans"}, warnings[0].Path)
	assert.Equal(t, "info", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "Recursive rule")
}

func TestAnalyzeCycles_NonRecursiveSelfLoop(t *testing.T) {
	rs := mustCompileT(t, `STAGE "m"
COMPLETION "up" IF { ?x concrete ?x is_a ?y } INFER { ?y concrete }`)

	warnings := AnalyzeCycles(rs)
	require.Len(t, warnings, 1)
	assert.Equal(t, LevelInfo, warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "re-run by the scheduler")
	assert.Empty(t, Warnings(warnings))
}

func TestAnalyzeCycles_RecursiveWithoutSelfLoop(t *testing.T) {
	rs := mustCompileT(t, `STAGE "m"
COMPLETION RECURSIVE "mark" IF { ?x type NamedIndividual } INFER { ?x concrete }`)

	warnings := AnalyzeCycles(rs)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"mark"}, warnings[0].Path)
	assert.Equal(t, LevelWarning, warnings[0].Level)
	assert.Equal(t, warnings, Warnings(warnings))
}

func TestAnalyzeCycles_DefaultShapeHasNoWarnings(t *testing.T) {
	rs := mustCompileT(t, `STAGE "m"
COMPLETION RECURSIVE "trans" IF { ?x is_a ?y ?y is_a ?z } INFER { ?x is_a(3) ?z }
COMPLETION "up" IF { ?x concrete ?x is_a ?y } INFER { ?y concrete }`)

	assert.Empty(t, Warnings(AnalyzeCycles(rs)))
}

func TestAnalyzeCycles_TwoRuleCycle(t *testing.T) {
	rs := mustCompileT(t, `STAGE "m"
COMPLETION "a" IF { ?x type Class } INFER { ?x concrete }
COMPLETION "b" IF { ?x concrete } INFER { ?x type Class }`)

	warnings := AnalyzeCycles(rs)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"a", "b", "a"}, warnings[0].Path)
	assert.Equal(t, "info", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "a → b → a")
}

func TestAnalyzeCycles_StagesAreSeparate(t *testing.T) {
	rs := mustCompileT(t, `
STAGE "one"
COMPLETION "a" IF { ?x type Class } INFER { ?x concrete }
STAGE "two"
COMPLETION "b" IF { ?x concrete } INFER { ?x type Class }`)

	assert.Empty(t, AnalyzeCycles(rs))
}

func TestTarjanSCC_DeterministicOrder(t *testing.T) {
	graph := dependencyGraph{
		"c": {"a"},
		"a": {"b"},
		"b": {"c"},
		"d": {},
	}
	sccs := tarjanSCC(graph)
	require.Len(t, sccs, 2)
	assert.Equal(t, []string{"a", "b", "c"}, sccs[0])
	assert.Equal(t, []string{"d"}, sccs[1])
}

func TestReconstructCyclePath_Empty(t *testing.T) {
	assert.Equal(t, []string{}, reconstructCyclePath(nil, dependencyGraph{}))
}

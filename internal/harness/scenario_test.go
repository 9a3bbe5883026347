package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(`
name: small
description: inline
ontology:
  classes: [A]
  axioms:
    - [A, subclass_of, {some: [p, B]}]
expect:
  entails: [[A, B]]
  parents:
    A: []
`))
	require.NoError(t, err)

	assert.Equal(t, "small", sc.Name)
	assert.Equal(t, DefaultBase, sc.Base)
	assert.Equal(t, OutcomeConsistent, sc.Expect.Outcome)
	require.NotNil(t, sc.Ontology)
	require.Len(t, sc.Ontology.Axioms, 1)
	assert.Equal(t, "some", sc.Ontology.Axioms[0].Object.Op)
	assert.Equal(t, 3, sc.Expect.checks())
	assert.Contains(t, sc.Expect.Parents, "A")
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing name", "chain: {prefix: C, length: 2}\n", "name is required"},
		{"no ontology", "name: x\n", "one of ontology, chain or files"},
		{"unknown field", "name: x\nchains: {prefix: C, length: 2}\n", "field chains not found"},
		{"bad chain", "name: x\nchain: {prefix: C, length: 0}\n", "length must be positive"},
		{"bad outcome", "name: x\nchain: {prefix: C, length: 2}\nexpect: {outcome: maybe}\n", "unknown outcome"},
		{"bad pair", "name: x\nchain: {prefix: C, length: 2}\nexpect: {entails: [[C1]]}\n", "want [sub, super]"},
		{
			"checks on inconsistent",
			"name: x\nchain: {prefix: C, length: 2}\nexpect: {outcome: inconsistent, entails: [[C1, C0]]}\n",
			"no conclusions to check",
		},
		{"unknown operator", "name: x\nontology: {axioms: [[A, subclass_of, {xor: [B]}]]}\n", "unknown operator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: files
files: [onto/a.yaml, /abs/b.yaml]
rules: my.rules
`), 0o644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, path, sc.Path)
	assert.Equal(t, []string{filepath.Join(dir, "onto", "a.yaml"), "/abs/b.yaml"}, sc.Files)
	assert.Equal(t, filepath.Join(dir, "my.rules"), sc.Rules)
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestChainDocument(t *testing.T) {
	doc := (&Chain{Prefix: "C", Length: 3}).document(DefaultBase)

	assert.Equal(t, []string{"C0", "C1", "C2"}, doc.Classes)
	require.Len(t, doc.Axioms, 3)
	assert.Equal(t, "Thing", doc.Axioms[0].Object.Name)
	assert.Equal(t, "C2", doc.Axioms[2].Subject.Name)
	assert.Equal(t, "C1", doc.Axioms[2].Object.Name)
}

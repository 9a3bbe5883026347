package ontology

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

const zooYAML = `
base: http://example.org/zoo#
classes: [Animal, Dog, Cat]
object_properties: [has_part]
individuals: [rex]
axioms:
  - [Dog, subclass_of, Animal]
  - [Dog, disjoint_with, Cat]
  - [Biped, equivalent_class, {exactly: [2, has_part, Leg]}]
  - [rex, type, {and: [Dog, {some: [has_part, Tail]}]}]
disjoint:
  - [Fish, Bird, Mammal]
`

func TestParseYAML(t *testing.T) {
	doc, err := ParseYAML("zoo.yaml", []byte(zooYAML))
	require.NoError(t, err)

	assert.Equal(t, "zoo.yaml", doc.Name)
	assert.Equal(t, []string{"Animal", "Dog", "Cat"}, doc.Classes)
	require.Len(t, doc.Axioms, 4)

	want := Axiom{
		Subject:   Expr{Name: "rex"},
		Predicate: "type",
		Object: Expr{Op: "and", Args: []Expr{
			{Name: "Dog"},
			{Op: "some", Args: []Expr{{Name: "has_part"}, {Name: "Tail"}}},
		}},
	}
	ignoreLines := cmpopts.IgnoreFields(Expr{}, "Line")
	if diff := cmp.Diff(want, doc.Axioms[3], ignoreLines, cmpopts.IgnoreFields(Axiom{}, "Line")); diff != "" {
		t.Errorf("axiom mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(2), doc.Axioms[2].Object.Card)
	assert.Equal(t, "{exactly: [2, has_part, Leg]}", doc.Axioms[2].Object.String())
}

func TestParseYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		line int
	}{
		{"unknown field", "clases: [A]\n", ErrCodeParse, 0},
		{"short axiom", "axioms:\n  - [A, subclass_of]\n", ErrCodeSchema, 2},
		{"unknown operator", "axioms:\n  - [A, subclass_of, {xor: [B, C]}]\n", ErrCodeSchema, 2},
		{"restriction arity", "axioms:\n  - [A, subclass_of, {some: [p]}]\n", ErrCodeSchema, 2},
		{"bad cardinality", "axioms:\n  - [A, subclass_of, {exactly: [two, p, B]}]\n", ErrCodeSchema, 2},
		{"property first", "axioms:\n  - [A, subclass_of, {only: [{and: [B]}, C]}]\n", ErrCodeSchema, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML("bad.yaml", []byte(tt.src))
			require.Error(t, err)
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %T", err)
			assert.Equal(t, tt.code, le.Code)
			assert.Equal(t, "bad.yaml", le.Path)
			if tt.line > 0 {
				assert.Equal(t, tt.line, le.Line)
			}
		})
	}
}

func TestParseCUE(t *testing.T) {
	src := `
let animal = "Animal"
base: "http://example.org/zoo#"
classes: [animal, "Dog"]
axioms: [
	["Dog", "subclass_of", animal],
	["Walker", "equivalent_class", {some: ["has_part", "Leg"]}],
]
disjoint: [["Dog", "Cat"]]
`
	doc, err := ParseCUE("zoo.cue", []byte(src))
	require.NoError(t, err)
	require.Len(t, doc.Axioms, 2)
	assert.Equal(t, "some", doc.Axioms[1].Object.Op)
	assert.Equal(t, [][]string{{"Dog", "Cat"}}, doc.Disjoint)
}

func TestParseCUE_NotConcrete(t *testing.T) {
	_, err := ParseCUE("open.cue", []byte(`base: string`))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeSchema, le.Code)
}

func TestParse_Extension(t *testing.T) {
	_, err := Parse("zoo.owl", []byte(zooYAML))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeUnsupported, le.Code)

	doc, err := Parse("zoo.YML", []byte(zooYAML))
	require.NoError(t, err)
	assert.Len(t, doc.Axioms, 4)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func term(t *testing.T, s *store.Store, name string) ir.Term {
	t.Helper()
	id, err := s.Abbreviate(context.Background(), "http://example.org/zoo#"+name)
	require.NoError(t, err)
	return id
}

func hasTriple(t *testing.T, s *store.Store, sub, p, o ir.Term) bool {
	t.Helper()
	var n int
	err := s.DB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM objs WHERE s=? AND p=? AND o=?`, int64(sub), int64(p), int64(o)).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestWrite(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	doc, err := ParseYAML("zoo.yaml", []byte(zooYAML))
	require.NoError(t, err)

	stats, err := WriteAll(ctx, s, []*Document{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Positive(t, stats.Triples)

	dog, animal, cat := term(t, s, "Dog"), term(t, s, "Animal"), term(t, s, "Cat")
	assert.True(t, hasTriple(t, s, dog, ir.SubclassOf, animal))
	assert.True(t, hasTriple(t, s, dog, ir.DisjointWith, cat))
	assert.True(t, hasTriple(t, s, dog, ir.Type, ir.Class))
	assert.True(t, hasTriple(t, s, term(t, s, "rex"), ir.Type, ir.NamedIndividual))
	assert.True(t, hasTriple(t, s, term(t, s, "has_part"), ir.Type, ir.ObjectProperty))
	// Undeclared names get the kind of their position.
	assert.True(t, hasTriple(t, s, term(t, s, "Leg"), ir.Type, ir.Class))

	var exactly, groups int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objs WHERE s<0 AND p=? AND o=2`, int64(ir.Exactly)).Scan(&exactly))
	assert.Equal(t, 1, exactly)
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objs WHERE s<0 AND p=?`, int64(ir.Members)).Scan(&groups))
	assert.Equal(t, 3, groups)
}

func TestWrite_PropertyAssertion(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	doc, err := ParseYAML("a.yaml", []byte(`
base: http://example.org/zoo#
axioms:
  - [rex, owns, bone]
  - [{some: [owns, Bone]}, subclass_of, Owner]
`))
	require.NoError(t, err)
	_, err = WriteAll(ctx, s, []*Document{doc})
	require.NoError(t, err)

	owns := term(t, s, "owns")
	assert.True(t, hasTriple(t, s, term(t, s, "rex"), owns, term(t, s, "bone")))
	assert.True(t, hasTriple(t, s, owns, ir.Type, ir.ObjectProperty))
	assert.True(t, hasTriple(t, s, term(t, s, "bone"), ir.Type, ir.NamedIndividual))
}

func TestWrite_RejectsConstructSubjectOfType(t *testing.T) {
	s := openStore(t)
	doc, err := ParseYAML("a.yaml", []byte("axioms:\n  - [{not: [A]}, type, B]\n"))
	require.NoError(t, err)
	_, err = WriteAll(context.Background(), s, []*Document{doc})
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeSchema, le.Code)
	assert.Equal(t, 2, le.Line)
}

func TestLoad_GlobsInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	files := map[string]string{
		"b.yaml":        "base: http://example.org/zoo#\nclasses: [B]\n",
		"a.yaml":        "base: http://example.org/zoo#\nclasses: [A]\n",
		"nested/c.cue":  `base: "http://example.org/zoo#", classes: ["C"]`,
		"nested/skip.t": "not an ontology",
	}
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}

	paths, err := Expand([]string{filepath.Join(dir, "**", "*.yaml"), filepath.Join(dir, "**", "*.cue")})
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "a.yaml"), paths[0])

	s := openStore(t)
	stats, err := Load(context.Background(), s, []string{filepath.Join(dir, "**", "*.yaml"), filepath.Join(dir, "**", "*.cue")})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	// Documents are written in path order, so ids follow it.
	assert.Less(t, term(t, s, "A"), term(t, s, "B"))
	assert.Less(t, term(t, s, "B"), term(t, s, "C"))
}

func TestExpand_NoMatch(t *testing.T) {
	_, err := Expand([]string{filepath.Join(t.TempDir(), "*.yaml")})
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

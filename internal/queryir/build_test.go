package queryir

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
)

func compileRule(t *testing.T, body string) *compiler.Rule {
	t.Helper()
	rs, err := compiler.Compile([]byte("STAGE \"main\"\n" + body))
	require.NoError(t, err)
	rules := rs.Rules()
	require.Len(t, rules, 1)
	return rules[0]
}

func buildRule(t *testing.T, body string) *Plan {
	t.Helper()
	p, err := Build(compileRule(t, body))
	require.NoError(t, err)
	require.NotNil(t, p)
	res := Validate(p)
	require.True(t, res.Valid, "plan problems: %v", res.Problems)
	return p
}

func ref(from int, col string) ColRef { return ColRef{From: from, Col: col} }

func fromTables(b *Branch) []string {
	var names []string
	for _, f := range b.Froms {
		names = append(names, f.Table.Name)
	}
	return names
}

func TestBuild_Transitivity(t *testing.T) {
	p := buildRule(t, `
COMPLETION RECURSIVE "is_a_transitive"
IF    { ?x is_a ?y
        ?y is_a ?z }
INFER { ?x is_a(3) ?z }`)

	assert.Same(t, ir.TableIsA, p.Insert)
	require.Len(t, p.Branches, 1)
	b := p.Branches[0]
	assert.Equal(t, []string{"is_a", "is_a"}, fromTables(b))

	want := []Predicate{ColEq{Left: ref(2, "s"), Right: ref(1, "o")}}
	if diff := cmp.Diff(want, b.Predicates); diff != "" {
		t.Errorf("predicates mismatch (-want +got):\n%s", diff)
	}
	wantSelect := []Operand{ref(1, "s"), ref(2, "o"), Literal{Atom: compiler.Int(3)}}
	if diff := cmp.Diff(wantSelect, b.Select); diff != "" {
		t.Errorf("select mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, b.Groups)
}

func TestBuild_ConstantsBecomeFilters(t *testing.T) {
	p := buildRule(t, `
COMPLETION "class_thing"
IF    { ?x type Class }
INFER { ?x is_a(2) Thing }`)

	b := p.Branches[0]
	want := []Predicate{ColConst{Ref: ref(1, "o"), Op: "=", Value: compiler.Const(ir.Class)}}
	if diff := cmp.Diff(want, b.Predicates); diff != "" {
		t.Errorf("predicates mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "q1.s", b.Select[0].String())
	assert.Equal(t, "1", b.Select[1].String())
	assert.Equal(t, "2", b.Select[2].String())
}

func TestBuild_UnorderedPairSwaps(t *testing.T) {
	p := buildRule(t, `
COMPLETION "and_compose"
IF    { ?x is_a ?a
        ?x is_a ?b
        ?l = ?a and ?b }
INFER { ?x is_a(3) ?l }`)

	require.Len(t, p.Branches, 2)

	straight := p.Branches[0]
	assert.Equal(t, []string{"is_a", "is_a", "linked_lists_and"}, fromTables(straight))
	assert.Contains(t, straight.Predicates, Predicate(ColEq{Left: ref(3, "o1"), Right: ref(1, "o")}))
	assert.Contains(t, straight.Predicates, Predicate(ColEq{Left: ref(3, "o2"), Right: ref(2, "o")}))
	assert.Equal(t, []JoinGroup{{Froms: []int{1, 3, 2}, Priority: -1}}, straight.Groups)

	swapped := p.Branches[1]
	assert.Contains(t, swapped.Predicates, Predicate(ColEq{Left: ref(3, "o1"), Right: ref(2, "o")}))
	assert.Contains(t, swapped.Predicates, Predicate(ColEq{Left: ref(3, "o2"), Right: ref(1, "o")}))
	assert.Equal(t, []JoinGroup{{Froms: []int{2, 3, 1}, Priority: -1}}, swapped.Groups)

	// The selected subject and construct do not depend on the orientation.
	assert.Equal(t, straight.Select, swapped.Select)
}

func TestBuild_TwoUnorderedPairsGiveFourBranches(t *testing.T) {
	p := buildRule(t, `
COMPLETION "pairs"
IF    { ?l = ?a and ?b
        ?m = ?c or ?d }
INFER { ?l is_a(3) ?m }`)

	assert.Len(t, p.Branches, 4)
}

func TestBuild_OrderedPairDoesNotSwap(t *testing.T) {
	p := buildRule(t, `
COMPLETION "ordered"
IF    { ?l = ?a and ?b
        ?a < ?b }
INFER { ?l is_a(3) ?a }`)

	require.Len(t, p.Branches, 1)
}

func TestBuild_FiltersFollowTablePredicates(t *testing.T) {
	p := buildRule(t, `
COMPLETION "disjoint"
IF    { ?d pairwise_disjoint ?a
        ?d pairwise_disjoint ?b
        ?a != ?b
        ?x is_a ?a
        ?x is_a ?b
        ?x NOT_is_a Nothing }
INFER { ?x is_a(3) Nothing }`)

	b := p.Branches[0]
	n := len(b.Predicates)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, ColCompare{Left: ref(1, "o"), Op: "!=", Right: ref(2, "o")}, b.Predicates[n-2])
	assert.Equal(t, NotExists{S: ref(3, "s"), O: Literal{Atom: compiler.Const(ir.Nothing)}}, b.Predicates[n-1])
	for _, pred := range b.Predicates[:n-2] {
		assert.IsType(t, ColEq{}, pred)
	}
}

func TestBuild_Raise(t *testing.T) {
	p := buildRule(t, `
COMPLETION HIGHEST_PRIORITY "inconsistent"
IF    { Nothing concrete }
RAISE "InconsistentOntology"`)

	assert.Nil(t, p.Insert)
	b := p.Branches[0]
	assert.Equal(t, []string{"concrete"}, fromTables(b))
	assert.Equal(t, []Operand{Literal{Atom: compiler.Int(1)}}, b.Select)
	assert.Equal(t, []Predicate{ColConst{Ref: ref(1, "s"), Op: "=", Value: compiler.Const(ir.Nothing)}}, b.Predicates)
}

func TestBuild_OrBlocksBecomeBranches(t *testing.T) {
	p := buildRule(t, `
COMPLETION "either"
IF    { ?x is_a ?y }
OR    { ?x subproperty_of ?y }
INFER { ?x concrete }`)

	require.Len(t, p.Branches, 2)
	assert.Equal(t, []string{"is_a"}, fromTables(p.Branches[0]))
	assert.Equal(t, []string{"prop_is_a"}, fromTables(p.Branches[1]))
}

func TestBuild_MultiRowSelectsConclusionVars(t *testing.T) {
	p := buildRule(t, `
COMPLETION "some_only"
IF    { ?x is_a ?r1
        ?r1 = ?p some ?a
        ?p subproperty_of ?q
        ?x is_a ?r2
        ?r2 = ?q only ?b }
INFER { ?x is_a(3) (?p some (?a and ?b)) }`)

	assert.Nil(t, p.Insert)
	assert.Equal(t, []string{"?a", "?b", "?p", "?x"}, p.Vars)
	b := p.Branches[0]
	assert.Len(t, b.Select, 4)

	// some.prop = prop_is_a.s, only.prop = prop_is_a.o and both is_a
	// instances point at the restrictions.
	require.Len(t, b.Groups, 2)
	assert.Equal(t, JoinGroup{Froms: []int{2, 3, 5}, Priority: -2}, b.Groups[0])
	assert.Equal(t, JoinGroup{Froms: []int{1, 4}, Priority: 2}, b.Groups[1])
}

func TestBuild_ClauseSources(t *testing.T) {
	p := buildRule(t, `
COMPLETION "or_drop_nothing"
IF    { ?x is_a (?a or ?...)
        ?a is_a Nothing }
INFER { ?x is_a(3) (?... or) }`)

	require.Len(t, p.ClauseSources, 1)
	cs := p.ClauseSources[0]
	assert.Same(t, ir.ListTable(ir.Flat, ir.ListOr), cs.Table)
	assert.Equal(t, "?_clause_s_"+strconv.Itoa(cs.FromID), cs.SVar)
	assert.Equal(t, p.Vars[len(p.Vars)-2:], []string{cs.SVar, cs.OVar})

	b := p.Branches[0]
	n := len(b.Select)
	assert.Equal(t, ref(cs.FromID, "s"), b.Select[n-2])
	assert.Equal(t, ref(cs.FromID, "o"), b.Select[n-1])
}

func TestBuild_BuiltinHasNoPlan(t *testing.T) {
	rs, err := compiler.Compile([]byte(`STAGE "n"
PREPROCESS "flat_and" BUILTIN "CreateFlatList" { and }`))
	require.NoError(t, err)
	p, err := Build(rs.Rules()[0])
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestJoinOrder(t *testing.T) {
	b := &Branch{
		Froms: []*From{
			{ID: 1, Table: ir.TableIsA}, {ID: 2, Table: ir.TableSome},
			{ID: 3, Table: ir.TablePropIsA}, {ID: 4, Table: ir.TableIsA},
		},
		Groups: []JoinGroup{
			{Froms: []int{1, 4}, Priority: 2},
			{Froms: []int{2, 3}, Priority: -2},
		},
	}
	b.Froms = append(b.Froms, &From{ID: 5, Table: ir.TableTypes})

	groups, pinned := b.JoinOrder()
	assert.Equal(t, []JoinGroup{
		{Froms: []int{2, 3}, Priority: -2},
		{Froms: []int{5}},
		{Froms: []int{1, 4}, Priority: 2},
	}, groups)
	assert.Equal(t, []bool{true, false, true}, pinned)
}

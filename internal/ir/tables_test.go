package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTableNames(t *testing.T) {
	assert.Equal(t, "flat_lists_and", ListTable(Flat, ListAnd).Name)
	assert.Equal(t, "linked_lists_or", ListTable(Linked, ListOr).Name)
	assert.Equal(t, "key_lists_disjoint", ListTable(Key, ListDisjoint).Name)
	assert.Equal(t, "flat_lists_andor", ListTable(Flat, ListAndOr).Name)
	assert.Equal(t, []string{"s", "o1", "o2"}, ListTable(Linked, ListAnd).Columns)

	assert.Panics(t, func() { ListTable(Linked, ListAndOr) })
}

func TestLookupTable(t *testing.T) {
	tbl, ok := LookupTable("is_a")
	require.True(t, ok)
	assert.Same(t, TableIsA, tbl)
	assert.Equal(t, []string{"s", "o", "level"}, tbl.Columns)

	tbl, ok = LookupTable("linked_lists_and")
	require.True(t, ok)
	assert.True(t, tbl.IsList())
	assert.Equal(t, Linked, tbl.Kind)

	_, ok = LookupTable("quads")
	assert.False(t, ok)
}

func TestPredicateTable(t *testing.T) {
	assert.Same(t, TableTypes, PredicateTable(Type))
	assert.Same(t, TableIsA, PredicateTable(SubclassOf))
	assert.Same(t, TableValue, PredicateTable(Value))
	assert.Same(t, TableObjs, PredicateTable(Domain))
	assert.Same(t, TableObjs, PredicateTable(EquivalentClass))
}

func TestTablesForPredicate(t *testing.T) {
	assert.Equal(t, []*Table{TableIsA}, TablesForPredicate(SubclassOf))
	assert.Empty(t, TablesForPredicate(Domain))
	assert.Equal(t,
		[]*Table{ListTable(Flat, ListOr), ListTable(Linked, ListOr)},
		TablesForPredicate(UnionOf))
}

func TestParseOperator(t *testing.T) {
	op, ok := ParseOperator("pairwise_disjoint")
	require.True(t, ok)
	assert.Equal(t, ListDisjoint, op)
	assert.Equal(t, Members, op.Predicate())

	op, ok = ParseOperator("and/or")
	require.True(t, ok)
	assert.Equal(t, ListAndOr, op)

	_, ok = ParseOperator("xor")
	assert.False(t, ok)

	assert.True(t, ListNot.Unary())
	assert.False(t, ListAnd.Unary())
}

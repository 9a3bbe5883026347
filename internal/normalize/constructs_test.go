package normalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

func addTriples(t *testing.T, tx *store.Tx, triples ...[3]ir.Term) {
	t.Helper()
	for _, tr := range triples {
		require.NoError(t, tx.AddTriple(context.Background(), tr[0], tr[1], tr[2]))
	}
}

func TestConstructs(t *testing.T) {
	n, tx := newTestNormalizer(t)
	ctx := context.Background()

	addTriples(t, tx,
		// -5 and -6 are both (100 and 101).
		[3]ir.Term{-5, ir.IntersectionOf, 100},
		[3]ir.Term{-5, ir.IntersectionOf, 101},
		[3]ir.Term{-6, ir.IntersectionOf, 100},
		[3]ir.Term{-6, ir.IntersectionOf, 101},
		// 102 is equivalent to (200 some 101).
		[3]ir.Term{-7, ir.Some, 101},
		[3]ir.Term{-7, ir.OnProperty, 200},
		[3]ir.Term{102, ir.EquivalentClass, -7},
		// -8 is a union of one member.
		[3]ir.Term{-8, ir.UnionOf, 103},
		[3]ir.Term{100, ir.DisjointWith, 101},
	)
	exec(t, tx, `INSERT INTO is_a VALUES (104, -8, 1), (105, -6, 1)`)

	added, err := n.Constructs(ctx)
	require.NoError(t, err)
	assert.Positive(t, added)

	assert.Equal(t, [][]int64{{-5, 100}, {-5, 101}}, rowsOf(t, tx, `SELECT s, o FROM flat_lists_and ORDER BY s, o`))
	assert.Equal(t, [][]int64{{102, 200, 101}}, rowsOf(t, tx, `SELECT s, prop, value FROM some`))
	assert.Equal(t, [][]int64{{104, 103, 1}, {105, -5, 1}}, rowsOf(t, tx, `SELECT s, o, level FROM is_a ORDER BY s`))
	assert.Empty(t, rowsOf(t, tx, `SELECT s, o FROM flat_lists_or`))

	groups := rowsOf(t, tx, `SELECT s, o FROM flat_lists_disjoint ORDER BY o`)
	require.Len(t, groups, 2)
	assert.Equal(t, groups[0][0], groups[1][0])
	assert.Equal(t, []int64{100, 101}, []int64{groups[0][1], groups[1][1]})

	assert.Equal(t, [][]int64{{-5}, {102}}, rowsOf(t, tx, `SELECT s FROM types WHERE o=? ORDER BY s`, int64(ir.Class)))

	events := n.Events()
	assert.Equal(t, 1, events[EventDuplicateMerge])
	assert.Equal(t, 1, events[EventEquivalentMerge])
	assert.Equal(t, 1, events[EventSingleElement])

	// The staging table does not outlive the builtin.
	assert.Zero(t, count(t, tx, `SELECT COUNT(*) FROM sqlite_temp_master WHERE name='construct_defs'`))
}

func TestConstructs_MergeCascadesToParents(t *testing.T) {
	n, tx := newTestNormalizer(t)

	addTriples(t, tx,
		[3]ir.Term{-1, ir.IntersectionOf, 100},
		[3]ir.Term{-1, ir.IntersectionOf, 101},
		[3]ir.Term{-2, ir.IntersectionOf, 101},
		[3]ir.Term{-2, ir.IntersectionOf, 100},
		// (200 some -1) and (200 some -2) become equal once -2 is merged.
		[3]ir.Term{-3, ir.Some, -1},
		[3]ir.Term{-3, ir.OnProperty, 200},
		[3]ir.Term{-4, ir.Some, -2},
		[3]ir.Term{-4, ir.OnProperty, 200},
	)

	_, err := n.Constructs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][]int64{{-3, 200, -1}}, rowsOf(t, tx, `SELECT s, prop, value FROM some`))
	assert.Equal(t, 2, n.Events()[EventDuplicateMerge])
}

func TestConstructs_ExactlyDefaultsToThing(t *testing.T) {
	n, tx := newTestNormalizer(t)

	addTriples(t, tx,
		[3]ir.Term{-1, ir.Exactly, 2},
		[3]ir.Term{-1, ir.OnProperty, 200},
		[3]ir.Term{-2, ir.Exactly, 1},
		[3]ir.Term{-2, ir.OnProperty, 200},
		[3]ir.Term{-2, ir.OnClass, 100},
	)

	_, err := n.Constructs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]int64{
		{-2, 1, 200, 100},
		{-1, 2, 200, int64(ir.Thing)},
	}, rowsOf(t, tx, `SELECT s, card, prop, value FROM exactly ORDER BY s`))
}

func TestConstructs_NamedEquivalentsOfOneConstruct(t *testing.T) {
	n, tx := newTestNormalizer(t)

	addTriples(t, tx,
		[3]ir.Term{-1, ir.UnionOf, 100},
		[3]ir.Term{-1, ir.UnionOf, 101},
		[3]ir.Term{102, ir.EquivalentClass, -1},
		[3]ir.Term{103, ir.EquivalentClass, -1},
	)

	_, err := n.Constructs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][]int64{{102, 100}, {102, 101}}, rowsOf(t, tx, `SELECT s, o FROM flat_lists_or ORDER BY o`))
	assert.Equal(t, [][]int64{{102, 103}, {103, 102}}, rowsOf(t, tx, `SELECT s, o FROM is_a ORDER BY s`))
}

func TestBuildKeys(t *testing.T) {
	n, tx := newTestNormalizer(t)
	exec(t, tx, `INSERT INTO flat_lists_and VALUES (-5, 101), (-5, 100), (-5, -3), (-6, 100), (-6, 102)`)

	added, err := n.BuildKeys(context.Background(), ir.ListAnd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	var k string
	require.NoError(t, tx.DB().QueryRowContext(context.Background(), `SELECT k FROM key_lists_and WHERE s=-5`).Scan(&k))
	assert.Equal(t, Key([]ir.Term{101, 100, -3}), k)

	got, err := n.Add(context.Background(), ir.ListAnd, []ir.Term{102, 100})
	require.NoError(t, err)
	assert.Equal(t, ir.Term(-6), got)
}

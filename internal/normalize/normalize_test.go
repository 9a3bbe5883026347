package normalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsume/internal/ir"
)

func TestAdd_Identities(t *testing.T) {
	tests := []struct {
		name    string
		op      ir.ListOp
		members []ir.Term
		want    ir.Term
	}{
		{"and drops Thing", ir.ListAnd, []ir.Term{100, ir.Thing}, 100},
		{"and with Nothing", ir.ListAnd, []ir.Term{100, ir.Nothing}, ir.Nothing},
		{"or drops Nothing", ir.ListOr, []ir.Term{100, ir.Nothing}, 100},
		{"or with Thing", ir.ListOr, []ir.Term{100, ir.Thing}, ir.Thing},
		{"empty and", ir.ListAnd, []ir.Term{ir.Thing}, ir.Thing},
		{"empty or", ir.ListOr, []ir.Term{ir.Nothing}, ir.Nothing},
		{"not Thing", ir.ListNot, []ir.Term{ir.Thing}, ir.Nothing},
		{"not Nothing", ir.ListNot, []ir.Term{ir.Nothing}, ir.Thing},
		{"empty disjointness group", ir.ListDisjoint, nil, 0},
		{"duplicate members", ir.ListAnd, []ir.Term{100, 100}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, tx := newTestNormalizer(t)
			got, err := n.Add(context.Background(), tt.op, tt.members)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, count(t, tx, `SELECT COUNT(*) FROM flat_lists_`+tt.op.Label()))
		})
	}
}

func TestAdd_CanonicalConstruct(t *testing.T) {
	n, tx := newTestNormalizer(t)
	ctx := context.Background()

	first, err := n.Add(ctx, ir.ListAnd, []ir.Term{101, 100})
	require.NoError(t, err)
	assert.True(t, first.IsConstruct())

	again, err := n.Add(ctx, ir.ListAnd, []ir.Term{100, 101, 100})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, n.Cache().Hits())

	// A normalizer with an empty cache finds the construct by its key.
	fresh := New(tx.Queries, testEncodings)
	found, err := fresh.Add(ctx, ir.ListAnd, []ir.Term{100, 101})
	require.NoError(t, err)
	assert.Equal(t, first, found)

	s := int64(first)
	assert.Equal(t, [][]int64{{s, 100}, {s, 101}}, rowsOf(t, tx, `SELECT s, o FROM flat_lists_and ORDER BY o`))
	assert.Equal(t, [][]int64{{s, 100, 101}}, rowsOf(t, tx, `SELECT s, o1, o2 FROM linked_lists_and`))
	assert.Equal(t, int64(1), count(t, tx, `SELECT COUNT(*) FROM key_lists_and WHERE s=? AND k='100,101'`, s))
	assert.Equal(t, int64(1), count(t, tx, `SELECT COUNT(*) FROM types WHERE s=? AND o=?`, s, int64(ir.Class)))
	assert.Equal(t, int64(1), count(t, tx, `SELECT COUNT(*) FROM infer_ancestors WHERE s=?`, s))

	added := n.TakeAdded()
	assert.Equal(t, int64(2), added[ir.ListTable(ir.Flat, ir.ListAnd)])
	assert.Equal(t, int64(1), added[ir.ListTable(ir.Linked, ir.ListAnd)])
	assert.Empty(t, n.TakeAdded())
}

func TestAdd_DifferentOperatorsDoNotCollide(t *testing.T) {
	n, _ := newTestNormalizer(t)
	ctx := context.Background()

	and, err := n.Add(ctx, ir.ListAnd, []ir.Term{100, 101})
	require.NoError(t, err)
	or, err := n.Add(ctx, ir.ListOr, []ir.Term{100, 101})
	require.NoError(t, err)
	assert.NotEqual(t, and, or)
}

func TestAdd_DropsSubsumedMembers(t *testing.T) {
	n, tx := newTestNormalizer(t)
	ctx := context.Background()
	exec(t, tx, `INSERT INTO is_a VALUES (100, 101, 1)`)

	and, err := n.Add(ctx, ir.ListAnd, []ir.Term{100, 101})
	require.NoError(t, err)
	assert.Equal(t, ir.Term(100), and, "and keeps the more specific member")

	or, err := n.Add(ctx, ir.ListOr, []ir.Term{100, 101})
	require.NoError(t, err)
	assert.Equal(t, ir.Term(101), or, "or keeps the more general member")

	events := n.Events()
	assert.Equal(t, 1, events[EventAndSubsumed])
	assert.Equal(t, 1, events[EventOrSubsumed])
}

func TestAdd_AbsorbsSiblingList(t *testing.T) {
	n, tx := newTestNormalizer(t)
	ctx := context.Background()

	inner, err := n.Add(ctx, ir.ListAnd, []ir.Term{100, 101})
	require.NoError(t, err)

	got, err := n.Add(ctx, ir.ListAnd, []ir.Term{inner, 100})
	require.NoError(t, err)
	assert.Equal(t, inner, got)
	assert.Equal(t, 1, n.Events()[EventAbsorbed])
	assert.Equal(t, int64(2), count(t, tx, `SELECT COUNT(*) FROM flat_lists_and`))
}

func TestAdd_SingleElementList(t *testing.T) {
	n, tx := newTestNormalizer(t)
	ctx := context.Background()

	not, err := n.Add(ctx, ir.ListNot, []ir.Term{100})
	require.NoError(t, err)
	assert.True(t, not.IsConstruct())

	fresh := New(tx.Queries, testEncodings)
	again, err := fresh.Add(ctx, ir.ListNot, []ir.Term{100})
	require.NoError(t, err)
	assert.Equal(t, not, again)
	assert.Equal(t, [][]int64{{int64(not), 100}}, rowsOf(t, tx, `SELECT s, o FROM flat_lists_not`))
}

func TestAdd_SingleConstructMemberIsTypedAsClass(t *testing.T) {
	n, tx := newTestNormalizer(t)
	exec(t, tx, `INSERT INTO some VALUES (-50, 200, 100)`)

	got, err := n.Add(context.Background(), ir.ListAnd, []ir.Term{-50, ir.Thing})
	require.NoError(t, err)
	assert.Equal(t, ir.Term(-50), got)
	assert.Equal(t, int64(1), count(t, tx, `SELECT COUNT(*) FROM types WHERE s=-50 AND o=?`, int64(ir.Class)))
}

func TestAdd_OrSeesThroughIntermediateNodes(t *testing.T) {
	n, tx := newTestNormalizer(t)
	ctx := context.Background()

	top, err := n.Add(ctx, ir.ListAnd, []ir.Term{100, 101, 102})
	require.NoError(t, err)
	pair := rowsOf(t, tx, `SELECT o2 FROM linked_lists_and WHERE s=?`, int64(top))
	require.Len(t, pair, 1)
	mid := ir.Term(pair[0][0])
	require.True(t, mid.IsConstruct(), "(101 and 102) is an intermediate node")
	assert.Zero(t, count(t, tx, `SELECT COUNT(*) FROM flat_lists_and WHERE s=?`, int64(mid)))

	// mid is 101 and 102, hence a subclass of 101.
	got, err := n.Add(ctx, ir.ListOr, []ir.Term{mid, 101})
	require.NoError(t, err)
	assert.Equal(t, ir.Term(101), got)
}

func TestAdd_UnionPromotesIntermediateNode(t *testing.T) {
	n, tx := newTestNormalizer(t)
	ctx := context.Background()

	top, err := n.Add(ctx, ir.ListAnd, []ir.Term{100, 101, 102})
	require.NoError(t, err)
	mid := ir.Term(rowsOf(t, tx, `SELECT o2 FROM linked_lists_and WHERE s=?`, int64(top))[0][0])

	or, err := n.Add(ctx, ir.ListOr, []ir.Term{mid, 103})
	require.NoError(t, err)
	assert.True(t, or.IsConstruct())

	m := int64(mid)
	assert.Equal(t, [][]int64{{m, 101}, {m, 102}}, rowsOf(t, tx, `SELECT s, o FROM flat_lists_and WHERE s=? ORDER BY o`, m))
	assert.Equal(t, [][]int64{{m, 3}, {int64(ir.Thing), 2}},
		rowsOf(t, tx, `SELECT o, level FROM is_a WHERE s=? ORDER BY level DESC`, m))
	assert.Equal(t, 1, n.Events()[EventPromoted])
}

func TestKey(t *testing.T) {
	assert.Equal(t, "-3,100,101", Key([]ir.Term{101, -3, 100, 101}))
	assert.Equal(t, "", Key(nil))

	got, err := ParseKey("-3,100,101")
	require.NoError(t, err)
	assert.Equal(t, []ir.Term{-3, 100, 101}, got)

	_, err = ParseKey("1,x")
	assert.Error(t, err)
}

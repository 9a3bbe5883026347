package normalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsume/internal/ir"
)

func TestBuildLinked_ReusesShorterLists(t *testing.T) {
	n, tx := newTestNormalizer(t)
	exec(t, tx, `INSERT INTO flat_lists_or VALUES (-10, 100), (-10, 101), (-11, 100), (-11, 101), (-11, 102), (-11, 103)`)

	added, err := n.BuildLinked(context.Background(), ir.ListOr)
	require.NoError(t, err)
	assert.Equal(t, int64(3), added)

	// (100 or 101) is reused as a subtree of the longer list; (102 or 103)
	// gets a fresh intermediate node.
	assert.Equal(t, [][]int64{
		{-11, -10, -1},
		{-10, 100, 101},
		{-1, 102, 103},
	}, rowsOf(t, tx, `SELECT s, o1, o2 FROM linked_lists_or ORDER BY s`))
}

func TestBuildLinked_GroupsUniversalRestrictions(t *testing.T) {
	n, tx := newTestNormalizer(t)
	exec(t, tx, `INSERT INTO only VALUES (-20, 200, 100)`)
	exec(t, tx, `INSERT INTO flat_lists_and VALUES (-12, 100), (-12, 101), (-12, -20)`)

	_, err := n.BuildLinked(context.Background(), ir.ListAnd)
	require.NoError(t, err)

	// The restriction sits at the end of the chain, paired with the last
	// plain member.
	assert.Equal(t, [][]int64{
		{-12, 100, -1},
		{-1, 101, -20},
	}, rowsOf(t, tx, `SELECT s, o1, o2 FROM linked_lists_and ORDER BY s`))
}

func TestBuildLinked_BalancesLongLists(t *testing.T) {
	n, tx := newTestNormalizer(t)
	for _, m := range []int64{100, 101, 102, 103, 104} {
		exec(t, tx, `INSERT INTO flat_lists_or VALUES (-30, ?)`, m)
	}

	_, err := n.BuildLinked(context.Background(), ir.ListOr)
	require.NoError(t, err)

	// Five members split 2 + 3; the three chain their last two.
	assert.Equal(t, [][]int64{
		{-30, -1, -2},
		{-1, 100, 101},
		{-2, 102, -3},
		{-3, 103, 104},
	}, rowsOf(t, tx, `SELECT s, o1, o2 FROM linked_lists_or ORDER BY s = -30 DESC, s DESC`))
}

func TestDecomposer_AddReturnsExistingNode(t *testing.T) {
	n, tx := newTestNormalizer(t)
	ctx := context.Background()
	exec(t, tx, `INSERT INTO flat_lists_or VALUES (-10, 100), (-10, 101)`)
	_, err := n.BuildLinked(ctx, ir.ListOr)
	require.NoError(t, err)

	d := n.linked[ir.ListOr]
	got, err := d.Add(ctx, 0, []ir.Term{101, 100})
	require.NoError(t, err)
	assert.Equal(t, ir.Term(-10), got)
}

func TestDecomposer_HeuristicKeepsFrequentMembers(t *testing.T) {
	n, _ := newTestNormalizer(t)
	d := newDecomposer(n, ir.ListOr)

	members := make([]ir.Term, 0, 15)
	for i := ir.Term(100); i < 115; i++ {
		members = append(members, i)
		d.occurrences[i] = 5
	}
	d.occurrences[107] = 1
	d.occurrences[103] = 2

	order, err := d.order(members, MaxExhaustive)
	require.NoError(t, err)
	require.Len(t, order, 15)
	// The two rarest members stay out of the exhaustive search and come first.
	assert.Equal(t, []ir.Term{107, 103}, order[:2])
}

func TestDecomposer_ExhaustivePicksDisjointSubsets(t *testing.T) {
	n, _ := newTestNormalizer(t)
	d := newDecomposer(n, ir.ListOr)
	d.bySet["100,101,102"] = -5
	d.bySet["102,103"] = -6
	d.bySet["103,104"] = -7

	got := d.exhaustive([]ir.Term{100, 101, 102, 103, 104})
	assert.Equal(t, []ir.Term{-5, -7}, got)

	d.bySet["100,101,102,103,104"] = -8
	assert.Equal(t, []ir.Term{-8}, d.exhaustive([]ir.Term{100, 101, 102, 103, 104}))
}

func terms(from ir.Term, n int) []ir.Term {
	out := make([]ir.Term, n)
	for i := range out {
		out[i] = from + ir.Term(i)
	}
	return out
}

func TestDecomposer_OrderAroundPriorityBound(t *testing.T) {
	tests := []struct {
		name    string
		members int
		// searched is how many members go through the exhaustive search.
		searched int
	}{
		{"at bound", MaxExhaustivePriority, MaxExhaustivePriority},
		{"one over bound", 12, 12},
		{"at search limit", 13, 13},
		{"past search limit", 15, MaxExhaustive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := newTestNormalizer(t)
			d := newDecomposer(n, ir.ListAnd)
			members := terms(100, tt.members)
			// The last member of each search set is already built with the
			// first, so the search visibly replaces them.
			d.bySet[Key([]ir.Term{members[len(members)-tt.searched], members[len(members)-1]})] = -50

			order, err := d.order(members, MaxExhaustivePriority)
			require.NoError(t, err)
			assert.Len(t, order, tt.members-1)
			assert.Contains(t, order, ir.Term(-50))
		})
	}
}

func TestNormalizer_AddTwelveMemberConjunction(t *testing.T) {
	for _, size := range []int{12, 13} {
		n, tx := newTestNormalizer(t)
		s, err := n.Add(context.Background(), ir.ListAnd, terms(100, size))
		require.NoError(t, err, "size %d", size)
		require.True(t, s.IsConstruct())

		assert.Equal(t, int64(size), count(t, tx, `SELECT COUNT(*) FROM flat_lists_and WHERE s=?`, int64(s)))
		// A balanced pair tree over n leaves has n-1 nodes.
		assert.Equal(t, int64(size-1), count(t, tx, `SELECT COUNT(*) FROM linked_lists_and`))
	}
}

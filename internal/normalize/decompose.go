package normalize

import (
	"cmp"
	"context"
	"fmt"
	"math/bits"
	"slices"

	"github.com/roach88/subsume/internal/ir"
)

// MaxExhaustive bounds the exhaustive subset search of a decomposition.
// Longer lists keep their MaxExhaustive most frequent members for the
// search and chain the rest.
const MaxExhaustive = 13

// MaxExhaustivePriority is the bound for each priority class of a
// conjunction.
const MaxExhaustivePriority = 11

// Decomposer builds the balanced linked-pair trees of one list operator.
// Subtrees are shared: a member set already built (as a list root or an
// intermediate node) is reused instead of rebuilt.
type Decomposer struct {
	n  *Normalizer
	op ir.ListOp
	// priority splits conjunctions so universal restrictions sit together
	// in their own subtree.
	priority bool

	occurrences map[ir.Term]int
	bySet       map[string]ir.Term
	sets        map[ir.Term][]ir.Term
}

func newDecomposer(n *Normalizer, op ir.ListOp) *Decomposer {
	return &Decomposer{
		n:           n,
		op:          op,
		priority:    op == ir.ListAnd,
		occurrences: map[ir.Term]int{},
		bySet:       map[string]ir.Term{},
		sets:        map[ir.Term][]ir.Term{},
	}
}

type flatList struct {
	s       ir.Term
	members []ir.Term
}

// BuildLinked decomposes every flat list of op into linked pairs. It is
// the CreateLinkedList builtin.
func (n *Normalizer) BuildLinked(ctx context.Context, op ir.ListOp) (int64, error) {
	d := newDecomposer(n, op)
	n.linked[op] = d

	flat := ir.ListTable(ir.Flat, op).Name
	rows, err := n.db().QueryContext(ctx, `SELECT s, o FROM `+flat+` ORDER BY s DESC, o`)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", flat, err)
	}
	var lists []flatList
	for rows.Next() {
		var s, o int64
		if err := rows.Scan(&s, &o); err != nil {
			rows.Close()
			return 0, err
		}
		d.occurrences[ir.Term(o)]++
		if len(lists) == 0 || lists[len(lists)-1].s != ir.Term(s) {
			lists = append(lists, flatList{s: ir.Term(s)})
		}
		last := &lists[len(lists)-1]
		last.members = append(last.members, ir.Term(o))
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// Shorter lists first, so longer ones can reuse them as subtrees.
	slices.SortStableFunc(lists, func(a, b flatList) int { return cmp.Compare(len(a.members), len(b.members)) })

	before := n.added[ir.ListTable(ir.Linked, op)]
	for _, l := range lists {
		if len(l.members) < 2 {
			continue
		}
		if _, err := d.Add(ctx, l.s, l.members); err != nil {
			return 0, err
		}
	}
	return n.added[ir.ListTable(ir.Linked, op)] - before, nil
}

// Add decomposes members into linked pairs rooted at s and returns the
// root. A zero s allocates a fresh root unless the member set was already
// built, in which case the existing node is returned.
func (d *Decomposer) Add(ctx context.Context, s ir.Term, members []ir.Term) (ir.Term, error) {
	members = uniqueSorted(members)
	if !d.priority {
		order, err := d.order(members, MaxExhaustive)
		if err != nil {
			return 0, err
		}
		return d.balanced(ctx, order, s)
	}

	var plain, only []ir.Term
	for _, m := range members {
		isOnly := false
		if m.IsConstruct() {
			var err error
			if isOnly, err = d.n.isOnly(ctx, m); err != nil {
				return 0, err
			}
		}
		if isOnly {
			only = append(only, m)
		} else {
			plain = append(plain, m)
		}
	}
	var classes [][]ir.Term
	for _, c := range [][]ir.Term{plain, only} {
		if len(c) > 0 {
			classes = append(classes, c)
		}
	}

	var root ir.Term
	for i := len(classes) - 1; i >= 0; i-- {
		order, err := d.order(classes[i], MaxExhaustivePriority)
		if err != nil {
			return 0, err
		}
		if root != 0 {
			order = append(order, root)
		}
		switch {
		case i == 0:
			root, err = d.balanced(ctx, order, s)
		case len(order) == 1:
			root = order[0]
		default:
			root, err = d.balanced(ctx, order, 0)
		}
		if err != nil {
			return 0, err
		}
	}
	return root, nil
}

// order lays members out for the balanced tree: reusable subtrees first,
// then the remaining members. Lists longer than bound keep their
// MaxExhaustive most frequent members for the search; a priority class
// of 12 or 13 members is therefore searched whole.
func (d *Decomposer) order(members []ir.Term, bound int) ([]ir.Term, error) {
	if len(members) <= bound {
		return d.exhaustive(members), nil
	}
	sorted := slices.Clone(members)
	slices.SortStableFunc(sorted, func(a, b ir.Term) int {
		if c := cmp.Compare(d.occurrences[a], d.occurrences[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	cut := max(len(sorted)-MaxExhaustive, 0)
	return append(sorted[:cut:cut], d.exhaustive(sorted[cut:])...), nil
}

// exhaustive tries every subset of members, largest first, and picks the
// already built ones that do not overlap.
func (d *Decomposer) exhaustive(members []ir.Term) []ir.Term {
	if len(members) > 20 {
		panic(fmt.Sprintf("normalize: exhaustive search over %d members", len(members)))
	}
	full := uint32(1)<<len(members) - 1
	masks := make([]uint32, 0, full)
	for m := uint32(1); m <= full; m++ {
		if bits.OnesCount32(m) >= 2 {
			masks = append(masks, m)
		}
	}
	slices.SortStableFunc(masks, func(a, b uint32) int {
		return cmp.Compare(bits.OnesCount32(b), bits.OnesCount32(a))
	})

	var (
		found []ir.Term
		taken uint32
	)
	for _, m := range masks {
		if m&taken != 0 {
			continue
		}
		node, ok := d.bySet[Key(subset(members, m))]
		if !ok {
			continue
		}
		if m == full {
			return []ir.Term{node}
		}
		found = append(found, node)
		taken |= m
	}
	if len(found) == 0 {
		return slices.Clone(members)
	}
	for i, m := range members {
		if taken&(1<<i) == 0 {
			found = append(found, m)
		}
	}
	return found
}

func subset(members []ir.Term, mask uint32) []ir.Term {
	out := make([]ir.Term, 0, bits.OnesCount32(mask))
	for i, m := range members {
		if mask&(1<<i) != 0 {
			out = append(out, m)
		}
	}
	return out
}

// balanced builds the pair tree over l, splitting in halves. Lists of
// three chain the last two members.
func (d *Decomposer) balanced(ctx context.Context, l []ir.Term, s ir.Term) (ir.Term, error) {
	var set []ir.Term
	for _, x := range l {
		if sub, ok := d.sets[x]; ok {
			set = append(set, sub...)
		} else {
			set = append(set, x)
		}
	}
	key := Key(set)
	if node, ok := d.bySet[key]; ok {
		return node, nil
	}
	node := s
	if node == 0 {
		var err error
		if node, err = d.n.q.FreshBlank(ctx); err != nil {
			return 0, err
		}
	}
	d.bySet[key] = node
	d.sets[node] = uniqueSorted(set)

	var o1, o2 ir.Term
	var err error
	switch {
	case len(l) <= 2:
		o1, o2 = l[0], l[len(l)-1]
	case len(l) == 3:
		o1 = l[0]
		o2, err = d.balanced(ctx, l[1:], 0)
	default:
		half := len(l) / 2
		if o1, err = d.balanced(ctx, l[:half], 0); err == nil {
			o2, err = d.balanced(ctx, l[half:], 0)
		}
	}
	if err != nil {
		return 0, err
	}
	if err := d.n.insert(ctx, ir.ListTable(ir.Linked, d.op), int64(node), int64(o1), int64(o2)); err != nil {
		return 0, err
	}
	return node, nil
}

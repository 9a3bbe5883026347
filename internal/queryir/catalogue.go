package queryir

import "github.com/roach88/subsume/internal/ir"

// Join shapes the default rule set produces. SQLite's planner picks poor
// orders for most of them once is_a grows, so matching instances are pinned
// with CROSS JOIN in the listed order.
var (
	pairOfSubclasses = MustParsePattern(
		"linked_lists.o1 = is_a_1.o, linked_lists.o2 = is_a_2.o, is_a_1.s = is_a_2.s")
	orOverIsA = MustParsePattern(
		"flat_lists_or_1.s = is_a.o")
	typedPropertyPair = MustParsePattern(
		"prop_is_a_1.o = types.s, prop_is_a_2.o = types.s, some_1.prop = prop_is_a_1.s, some_2.prop = prop_is_a_2.s")
	concreteIsA = MustParsePattern(
		"concrete.s = is_a.s")
	someOnlyShared = MustParsePattern(
		"some.prop = prop_is_a.s, only.prop = prop_is_a.o, is_a_1.o = some.s, is_a_2.o = only.s")

	someChainWithValues = MustParsePattern(
		"some_1.prop = prop_is_a.s, some_1.value = is_a.s, some_2.prop = prop_is_a.o, some_2.value = is_a.o")
	someChain = MustParsePattern(
		"some_1.prop = prop_is_a.s, some_2.prop = prop_is_a.o")

	onlyChainIntoAnd1 = MustParsePattern(
		"only_1.prop = prop_is_a.s, only_2.prop = prop_is_a.o, is_a.s = only_1.value, is_a.o = linked_lists_and_1.o1")
	onlyChainIntoAnd2 = MustParsePattern(
		"only_1.prop = prop_is_a.s, only_2.prop = prop_is_a.o, is_a.s = only_1.value, is_a.o = linked_lists_and_1.o2")
	onlyChainDisjoint = MustParsePattern(
		"only_1.prop = prop_is_a.s, only_2.prop = prop_is_a.o, is_a_1.s = only_1.value, is_a_1.o = flat_lists_disjoint_1.o, " +
			"is_a_2.s = only_2.value, is_a_2.o = flat_lists_disjoint_2.o")
	onlyChainSharedSub = MustParsePattern(
		"only_1.prop = prop_is_a.s, only_2.prop = prop_is_a.o, is_a_1.o = only_1.s, is_a_2.o = only_2.s, is_a_1.s = is_a_2.s")
	onlyChainInverse = MustParsePattern(
		"only_1.prop = prop_is_a.o, only_1.value = is_a.s, only_2.prop = prop_is_a.s, only_2.value = is_a.o")
	onlyChain = MustParsePattern(
		"only_1.prop = prop_is_a.s, only_2.prop = prop_is_a.o")
)

// applyCatalogue pins the join order of known shapes in b.
func applyCatalogue(b *Branch) {
	if len(b.Froms) == 3 {
		if m := FindPattern(b, pairOfSubclasses); m != nil {
			pin(b, -1, m.IDs("is_a_1", "linked_lists", "is_a_2"))
		}
	}
	if hasList(b, ir.ListOr) && (hasList(b, ir.ListAnd) || hasList(b, ir.ListDisjoint)) {
		if m := FindPattern(b, orOverIsA); m != nil {
			pin(b, -1, m.IDs("flat_lists_or_1", "is_a"))
		}
	}
	if m := FindPattern(b, typedPropertyPair); m != nil {
		pin(b, -5, m.IDs("types", "prop_is_a_1", "some_1", "prop_is_a_2", "some_2"))
	}
	if m := FindPattern(b, concreteIsA); m != nil {
		pin(b, -5, m.IDs("concrete", "is_a"))
	}

	if m := FindPattern(b, someOnlyShared); m != nil {
		pin(b, -2, m.IDs("some", "prop_is_a", "only"))
		pin(b, 2, m.IDs("is_a_1", "is_a_2"))
		return
	}

	if m := FindPattern(b, someChainWithValues); m != nil {
		pin(b, -2, m.IDs("some_1", "prop_is_a", "is_a", "some_2"))
	} else if m := FindPattern(b, someChain); m != nil {
		pin(b, -2, m.IDs("some_2", "prop_is_a", "some_1"))
	}

	switch {
	case pinFirst(b, -2, []string{"only_1", "prop_is_a", "is_a", "linked_lists_and_1", "only_2"},
		onlyChainIntoAnd1, onlyChainIntoAnd2):
	case pinFirst(b, -2, []string{"only_1", "prop_is_a", "is_a_1", "flat_lists_disjoint_1", "flat_lists_disjoint_2", "is_a_2", "only_2"},
		onlyChainDisjoint):
	default:
		if m := FindPattern(b, onlyChainSharedSub); m != nil {
			pin(b, -2, m.IDs("only_2", "prop_is_a", "only_1"))
			pin(b, 2, m.IDs("is_a_1", "is_a_2"))
		} else if m := FindPattern(b, onlyChainInverse); m != nil {
			pin(b, -2, m.IDs("only_1", "prop_is_a", "is_a", "only_2"))
		} else if m := FindPattern(b, onlyChain); m != nil {
			pin(b, -2, m.IDs("only_2", "prop_is_a", "only_1"))
		}
	}
}

// pinFirst pins order for the first of patterns that occurs in b.
func pinFirst(b *Branch, priority int, order []string, patterns ...*Pattern) bool {
	for _, p := range patterns {
		if m := FindPattern(b, p); m != nil {
			pin(b, priority, m.IDs(order...))
			return true
		}
	}
	return false
}

// pin adds a join group unless one of its instances is already pinned.
func pin(b *Branch, priority int, ids []int) {
	if len(ids) == 0 {
		return
	}
	for _, g := range b.Groups {
		for _, id := range g.Froms {
			for _, x := range ids {
				if x == id {
					return
				}
			}
		}
	}
	b.Groups = append(b.Groups, JoinGroup{Froms: ids, Priority: priority})
}

func hasList(b *Branch, op ir.ListOp) bool {
	for _, f := range b.Froms {
		if f.Table.List == op {
			return true
		}
	}
	return false
}

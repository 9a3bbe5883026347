// Package normalize canonicalizes compound class expressions.
//
// Every construct (conjunction, disjunction, complement, disjointness group,
// restriction) is identified by one negative term. Structurally equal
// constructs resolve to the same term within a run:
//
//	(B and A and Thing)  ⇒  -7     (and B A)
//	(A and B)            ⇒  -7     cache hit
//	(A or Nothing)       ⇒  A      single member
//
// Lists are stored three ways: flat rows (one per member), a key row
// (the sorted member ids joined by commas) and a balanced tree of linked
// pairs that shares subtrees between lists. The linked tree is what the
// completion rules join on; intermediate tree nodes have no flat rows
// until a union promotes them.
//
// Constructs loads the constructs of the base facts into the run tables,
// merging constructs that are declared equivalent to a named entity and
// deduplicating structurally equal ones.
package normalize

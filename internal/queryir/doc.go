// Package queryir plans compiled rules as relational queries.
//
// A Plan is the UNION ALL of Branches. Each branch is one OR block of the
// rule with every unordered linked pair oriented one way or the other:
//
//	?x = ?a and ?b        ⇒  linked_lists_and q1  with (o1,o2) = (a,b)
//	                      ⇒  linked_lists_and q1  with (o1,o2) = (b,a)
//
// Variables bind to the first column that mentions them; later mentions
// become ColEq predicates. Constants become ColConst filters and filter
// rows (comparisons, NOT_is_a) are appended after the table predicates.
//
// JOIN ORDER
//
// FindPattern looks for join subgraphs in a branch. The catalogue in this
// package pins the shapes the default rule set produces so the backend can
// emit them as CROSS JOIN chains. Unpinned instances keep the planner's
// freedom.
//
// The IR is backend neutral. querysql lowers it to SQLite.
package queryir

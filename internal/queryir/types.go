package queryir

import (
	"fmt"
	"sort"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
)

// Plan is the query plan of one rule: the UNION ALL of its branches.
//
// A plan is built once per compiled rule and never mutated afterwards.
type Plan struct {
	Rule     *compiler.Rule
	Branches []*Branch

	// Insert is the table a single-row rule writes with one bulk statement.
	// It is nil for multi-row, raise and builtin rules.
	Insert *ir.Table

	// Vars names the selected columns of a multi-row rule, in order. Every
	// branch selects the same variables.
	Vars []string

	// ClauseSources lists, for multi-row rules with a condition clause, the
	// selected columns holding each clause instance's subject and matched
	// member. The rest of a clause is read per tuple from Table.
	ClauseSources []ClauseSource
}

// ClauseSource locates one instance of the condition clause list in the
// selected row.
type ClauseSource struct {
	Table  *ir.Table
	SVar   string
	OVar   string
	FromID int
}

// Branch is one SELECT of a plan: an OR block of the rule, possibly with
// unordered pairs swapped.
type Branch struct {
	Froms      []*From
	Predicates []Predicate
	Select     []Operand

	// Groups are the pinned join groups found by the structural catalogue.
	Groups []JoinGroup
}

// From is one table instance of a branch, rendered "table qN".
type From struct {
	ID    int // 1-based
	Table *ir.Table
	Row   compiler.Row
}

// Alias returns the SQL alias of f.
func (f *From) Alias() string { return fmt.Sprintf("q%d", f.ID) }

// JoinGroup is a set of instances joined left to right with CROSS JOIN.
// Groups are ordered by ascending Priority; unpinned instances form one
// implicit group at priority 0.
type JoinGroup struct {
	Froms    []int
	Priority int
}

// Operand is a column reference or a literal. The set of implementations is
// closed: ColRef and Literal.
type Operand interface {
	operandNode()
	String() string
}

// ColRef names a column of a branch instance.
type ColRef struct {
	From int
	Col  string
}

func (ColRef) operandNode()     {}
func (c ColRef) String() string { return fmt.Sprintf("q%d.%s", c.From, c.Col) }

// Literal is a constant operand.
type Literal struct {
	Atom compiler.Atom
}

func (Literal) operandNode()     {}
func (l Literal) String() string { return l.Atom.SQL() }

// Predicate filters a branch. The set of implementations is closed:
// ColEq, ColConst, ColCompare and NotExists.
type Predicate interface {
	predicateNode()
}

// ColEq is a join equality between two instances' columns. Right is the
// reference that first bound the shared variable.
type ColEq struct {
	Left  ColRef
	Right ColRef
}

// ColConst filters a column against a constant, e.g. q1.level<3.
type ColConst struct {
	Ref   ColRef
	Op    string
	Value compiler.Atom
}

// ColCompare is a comparison between bound variables or literals.
type ColCompare struct {
	Left  Operand
	Op    string
	Right Operand
}

// NotExists rejects rows where S is_a O already holds.
type NotExists struct {
	S Operand
	O Operand
}

func (ColEq) predicateNode()      {}
func (ColConst) predicateNode()   {}
func (ColCompare) predicateNode() {}
func (NotExists) predicateNode()  {}

// FromByID returns the instance with the given id.
func (b *Branch) FromByID(id int) *From {
	if id < 1 || id > len(b.Froms) {
		return nil
	}
	return b.Froms[id-1]
}

// JoinOrder returns the branch's instances grouped for rendering: pinned
// groups plus the unpinned remainder at priority 0, stably sorted by
// priority. The second result marks which groups are pinned.
func (b *Branch) JoinOrder() ([]JoinGroup, []bool) {
	pinned := map[int]bool{}
	for _, g := range b.Groups {
		for _, id := range g.Froms {
			pinned[id] = true
		}
	}
	type entry struct {
		g      JoinGroup
		pinned bool
	}
	var entries []entry
	for _, g := range b.Groups {
		entries = append(entries, entry{g, true})
	}
	var rest []int
	for _, f := range b.Froms {
		if !pinned[f.ID] {
			rest = append(rest, f.ID)
		}
	}
	if len(rest) > 0 {
		entries = append(entries, entry{JoinGroup{Froms: rest}, false})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].g.Priority < entries[j].g.Priority
	})
	groups := make([]JoinGroup, len(entries))
	flags := make([]bool, len(entries))
	for i, e := range entries {
		groups[i], flags[i] = e.g, e.pinned
	}
	return groups, flags
}

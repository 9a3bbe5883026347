package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/subsume/internal/ir"
)

// AtomKind identifies what an Atom holds.
type AtomKind int

const (
	AtomVar AtomKind = iota
	// AtomRest is the clause rest capture "?...".
	AtomRest
	AtomTerm
	AtomInt
	AtomFloat
	AtomString
	AtomBool
)

// RestVar is the spelling of the clause rest capture.
const RestVar = "?..."

// Atom is a leaf of a row: a variable or a constant.
//
// Op is only set on constants used as column filters, e.g. the level of
// "is_a(<3)" carries Op "<" and Int 3.
type Atom struct {
	Kind  AtomKind
	Name  string // variable name including the leading '?'
	Term  ir.Term
	Int   int64
	Float float64
	Str   string
	Bool  bool
	Op    string
}

// Var returns a variable atom.
func Var(name string) Atom {
	if name == RestVar {
		return Atom{Kind: AtomRest, Name: name}
	}
	return Atom{Kind: AtomVar, Name: name}
}

// Const returns a term constant.
func Const(t ir.Term) Atom { return Atom{Kind: AtomTerm, Term: t} }

// Int returns an integer constant.
func Int(n int64) Atom { return Atom{Kind: AtomInt, Int: n} }

// IsVar reports whether a is a named variable (not the rest capture).
func (a Atom) IsVar() bool { return a.Kind == AtomVar }

// IsRest reports whether a is "?...".
func (a Atom) IsRest() bool { return a.Kind == AtomRest }

// IsConst reports whether a is a literal or term constant.
func (a Atom) IsConst() bool { return a.Kind != AtomVar && a.Kind != AtomRest }

// Operator returns the comparison operator of a constant filter, "=" by default.
func (a Atom) Operator() string {
	if a.Op == "" {
		return "="
	}
	return a.Op
}

// SQL renders a constant as an SQL literal.
func (a Atom) SQL() string {
	switch a.Kind {
	case AtomTerm:
		return strconv.FormatInt(int64(a.Term), 10)
	case AtomInt:
		return strconv.FormatInt(a.Int, 10)
	case AtomFloat:
		return strconv.FormatFloat(a.Float, 'g', -1, 64)
	case AtomString:
		return "'" + strings.ReplaceAll(a.Str, "'", "''") + "'"
	case AtomBool:
		if a.Bool {
			return "1"
		}
		return "0"
	}
	return a.Name
}

func (a Atom) String() string {
	switch a.Kind {
	case AtomVar, AtomRest:
		return a.Name
	case AtomTerm:
		return ir.ShortName(a.Term)
	case AtomString:
		return strconv.Quote(a.Str)
	}
	if a.Op != "" && a.Op != "=" {
		return a.Op + a.SQL()
	}
	return a.SQL()
}

// Row is one condition or conclusion pattern. The set of implementations is
// closed: TableRow, RestrictionRow, FlatListRow, LinkedListRow, ClauseListRow,
// CompareRow, NotIsARow, FlagRow and NewNodeRow.
type Row interface {
	rowNode()
	// Atoms returns the row's atoms in column order.
	Atoms() []Atom
}

// TableRow matches or writes one row of a fact table. Args line up with
// Table.Columns.
type TableRow struct {
	Table     *ir.Table
	Predicate ir.Term
	Args      []Atom
}

// RestrictionRow is a some/only/value/exactly construct. S is the construct,
// Card is only meaningful for exactly.
type RestrictionRow struct {
	Table *ir.Table
	S     Atom
	Card  Atom
	Prop  Atom
	Value Atom
}

// FlatListRow is a single membership (S has member Member) of a list.
type FlatListRow struct {
	Op     ir.ListOp
	S      Atom
	Member Atom
}

// LinkedListRow is a pair node S = O1 op O2 of a decomposed list.
// Unordered pairs match in either column order.
type LinkedListRow struct {
	Op      ir.ListOp
	S       Atom
	O1      Atom
	O2      Atom
	Ordered bool
}

// ClauseListRow is a list with explicit Members plus the rest capture.
// In conditions it matches any list holding the members; the rest is bound
// to the other members at execution time. In conclusions the rest expands
// into the new list's members.
type ClauseListRow struct {
	Op      ir.ListOp
	S       Atom
	Members []Atom
	// Pattern, when set, is applied to each rest member with PatternVar
	// bound to it; the resulting construct replaces the member.
	Pattern    Row
	PatternVar string
}

// CompareRow filters bindings with = != < > <= >=.
type CompareRow struct {
	Left  Atom
	Op    string
	Right Atom
}

// NotIsARow rejects bindings where S is_a O holds.
type NotIsARow struct {
	S Atom
	O Atom
}

// FlagRow matches or sets a per-entity flag (concrete, infer_ancestors,
// infer_descendants).
type FlagRow struct {
	Table *ir.Table
	S     Atom
}

// NewNodeRow allocates a blank construct for Var.
type NewNodeRow struct {
	Var string
}

func (*TableRow) rowNode()       {}
func (*RestrictionRow) rowNode() {}
func (*FlatListRow) rowNode()    {}
func (*LinkedListRow) rowNode()  {}
func (*ClauseListRow) rowNode()  {}
func (*CompareRow) rowNode()     {}
func (*NotIsARow) rowNode()      {}
func (*FlagRow) rowNode()        {}
func (*NewNodeRow) rowNode()     {}

func (r *TableRow) Atoms() []Atom { return r.Args }

func (r *RestrictionRow) Atoms() []Atom {
	if r.Table == ir.TableExactly {
		return []Atom{r.S, r.Card, r.Prop, r.Value}
	}
	return []Atom{r.S, r.Prop, r.Value}
}

func (r *FlatListRow) Atoms() []Atom   { return []Atom{r.S, r.Member} }
func (r *LinkedListRow) Atoms() []Atom { return []Atom{r.S, r.O1, r.O2} }

func (r *ClauseListRow) Atoms() []Atom {
	return append([]Atom{r.S}, r.Members...)
}

func (r *CompareRow) Atoms() []Atom { return []Atom{r.Left, r.Right} }
func (r *NotIsARow) Atoms() []Atom  { return []Atom{r.S, r.O} }
func (r *FlagRow) Atoms() []Atom    { return []Atom{r.S} }
func (r *NewNodeRow) Atoms() []Atom { return []Atom{Var(r.Var)} }

// RowTable returns the fact table a row reads or writes, or nil for rows
// that only filter (CompareRow, NotIsARow) or allocate (NewNodeRow).
func RowTable(r Row) *ir.Table {
	switch r := r.(type) {
	case *TableRow:
		return r.Table
	case *RestrictionRow:
		return r.Table
	case *FlagRow:
		return r.Table
	case *FlatListRow:
		return ir.ListTable(ir.Flat, r.Op)
	case *ClauseListRow:
		return ir.ListTable(ir.Flat, r.Op)
	case *LinkedListRow:
		return ir.ListTable(ir.Linked, r.Op)
	}
	return nil
}

// RowPredicates returns the predicates a row reads (in conditions) or
// writes (in conclusions).
func RowPredicates(r Row) []ir.Term {
	switch r := r.(type) {
	case *TableRow:
		return []ir.Term{r.Predicate}
	case *RestrictionRow:
		return []ir.Term{r.Table.Predicate}
	case *FlagRow:
		return []ir.Term{r.Table.Predicate}
	case *FlatListRow:
		return listPredicates(r.Op)
	case *ClauseListRow:
		return listPredicates(r.Op)
	case *LinkedListRow:
		return listPredicates(r.Op)
	}
	return nil
}

func listPredicates(op ir.ListOp) []ir.Term {
	if op == ir.ListAndOr {
		return []ir.Term{ir.IntersectionOf, ir.UnionOf}
	}
	return []ir.Term{op.Predicate()}
}

// IsListRow reports whether r stores list members.
func IsListRow(r Row) bool {
	switch r.(type) {
	case *FlatListRow, *LinkedListRow, *ClauseListRow:
		return true
	}
	return false
}

// FormatRow renders a row in rule-language syntax.
func FormatRow(r Row) string {
	switch r := r.(type) {
	case *TableRow:
		args := r.Args
		pred := ir.ShortName(r.Predicate)
		if r.Table == ir.TableObjs {
			args = []Atom{r.Args[0], r.Args[2]}
		}
		if r.Table == ir.TableIsA {
			pred = "is_a"
			if len(r.Args) > 2 {
				pred = fmt.Sprintf("is_a(%s)", r.Args[2])
			}
		}
		return fmt.Sprintf("%s %s %s", args[0], pred, args[1])
	case *RestrictionRow:
		if r.Table == ir.TableExactly {
			return fmt.Sprintf("%s = %s exactly %s %s", r.S, r.Prop, r.Card, r.Value)
		}
		return fmt.Sprintf("%s = %s %s %s", r.S, r.Prop, r.Table.Name, r.Value)
	case *FlatListRow:
		return fmt.Sprintf("%s %s %s", r.S, r.Op, r.Member)
	case *LinkedListRow:
		return fmt.Sprintf("%s = %s %s %s", r.S, r.O1, r.Op, r.O2)
	case *ClauseListRow:
		parts := make([]string, 0, len(r.Members)+1)
		for _, m := range r.Members {
			parts = append(parts, m.String())
		}
		parts = append(parts, RestVar)
		return fmt.Sprintf("%s = %s", r.S, strings.Join(parts, " "+r.Op.String()+" "))
	case *CompareRow:
		return fmt.Sprintf("%s %s %s", r.Left, r.Op, r.Right)
	case *NotIsARow:
		return fmt.Sprintf("%s NOT_is_a %s", r.S, r.O)
	case *FlagRow:
		return fmt.Sprintf("%s %s", r.S, r.Table.Name)
	case *NewNodeRow:
		return "new " + r.Var
	}
	return fmt.Sprintf("%T", r)
}

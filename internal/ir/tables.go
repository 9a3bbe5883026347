package ir

import (
	"fmt"
	"sort"
)

// ListOp is an n-ary (or unary) constructor whose members are stored as lists.
type ListOp int

const (
	ListNone ListOp = iota
	ListAnd
	ListOr
	ListNot
	ListInverse
	ListDisjoint
	// ListAndOr is the read-only union of the and/or lists.
	ListAndOr
)

var listLabels = map[ListOp]string{
	ListAnd:      "and",
	ListOr:       "or",
	ListNot:      "not",
	ListInverse:  "inverse",
	ListDisjoint: "disjoint",
	ListAndOr:    "andor",
}

var listPredicates = map[ListOp]Term{
	ListAnd:      IntersectionOf,
	ListOr:       UnionOf,
	ListNot:      ComplementOf,
	ListInverse:  InverseOf,
	ListDisjoint: Members,
	ListAndOr:    AndOr,
}

// Label is the suffix used in list table names.
func (op ListOp) Label() string { return listLabels[op] }

func (op ListOp) String() string {
	if l, ok := listLabels[op]; ok {
		return l
	}
	return "none"
}

// Predicate is the term whose objs rows carry this list's members.
func (op ListOp) Predicate() Term { return listPredicates[op] }

// Unary reports whether lists of this kind always hold one member.
func (op ListOp) Unary() bool { return op == ListNot || op == ListInverse }

// ParseOperator maps a DSL operator keyword to its list kind.
func ParseOperator(word string) (ListOp, bool) {
	switch word {
	case "and":
		return ListAnd, true
	case "or":
		return ListOr, true
	case "and/or":
		return ListAndOr, true
	case "not":
		return ListNot, true
	case "inverse":
		return ListInverse, true
	case "pairwise_disjoint":
		return ListDisjoint, true
	}
	return ListNone, false
}

// ListOpForPredicate returns the list kind stored under predicate p.
func ListOpForPredicate(p Term) (ListOp, bool) {
	for op, pred := range listPredicates {
		if pred == p {
			return op, true
		}
	}
	return ListNone, false
}

// ListKind distinguishes the three physical encodings of a list.
type ListKind int

const (
	Flat ListKind = iota
	Linked
	Key
)

func (k ListKind) prefix() string {
	switch k {
	case Linked:
		return "linked_lists_"
	case Key:
		return "key_lists_"
	}
	return "flat_lists_"
}

// Table describes one fact table of the fixed schema.
type Table struct {
	Name    string
	Columns []string
	// Predicate is the relation the table materializes; zero for objs.
	Predicate Term
	// List and Kind are set for list tables only.
	List ListOp
	Kind ListKind
	// Restriction marks some/only/exactly, whose inserts are depth-checked.
	Restriction bool
	// Base tables are never written during a run.
	Base bool
}

func (t *Table) String() string { return t.Name }

// IsList reports whether t stores list members or pairs.
func (t *Table) IsList() bool { return t.List != ListNone }

// Base fact tables. List tables are created through ListTable.
var (
	TableObjs             = &Table{Name: "objs", Columns: []string{"s", "p", "o"}, Base: true}
	TableTypes            = &Table{Name: "types", Columns: []string{"s", "o"}, Predicate: Type}
	TableIsA              = &Table{Name: "is_a", Columns: []string{"s", "o", "level"}, Predicate: SubclassOf}
	TablePropIsA          = &Table{Name: "prop_is_a", Columns: []string{"s", "o"}, Predicate: SubpropertyOf}
	TableSome             = &Table{Name: "some", Columns: []string{"s", "prop", "value"}, Predicate: Some, Restriction: true}
	TableOnly             = &Table{Name: "only", Columns: []string{"s", "prop", "value"}, Predicate: Only, Restriction: true}
	TableValue            = &Table{Name: "value", Columns: []string{"s", "prop", "value"}, Predicate: Value, Restriction: true}
	TableExactly          = &Table{Name: "exactly", Columns: []string{"s", "card", "prop", "value"}, Predicate: Exactly, Restriction: true}
	TableConcrete         = &Table{Name: "concrete", Columns: []string{"s"}, Predicate: Concrete}
	TableInferAncestors   = &Table{Name: "infer_ancestors", Columns: []string{"s"}, Predicate: InferAncestors}
	TableInferDescendants = &Table{Name: "infer_descendants", Columns: []string{"s"}, Predicate: InferDescendants}
)

var (
	tablesByName = map[string]*Table{}
	listTables   = map[ListKind]map[ListOp]*Table{}
)

func register(t *Table) *Table {
	tablesByName[t.Name] = t
	return t
}

func init() {
	for _, t := range []*Table{
		TableObjs, TableTypes, TableIsA, TablePropIsA, TableSome, TableOnly,
		TableValue, TableExactly, TableConcrete, TableInferAncestors, TableInferDescendants,
	} {
		register(t)
	}
	for _, kind := range []ListKind{Flat, Linked, Key} {
		listTables[kind] = map[ListOp]*Table{}
		for op := range listLabels {
			if kind != Flat && op == ListAndOr {
				continue
			}
			var cols []string
			switch kind {
			case Flat:
				cols = []string{"s", "o"}
			case Linked:
				cols = []string{"s", "o1", "o2"}
			case Key:
				cols = []string{"s", "k"}
			}
			listTables[kind][op] = register(&Table{
				Name:      kind.prefix() + op.Label(),
				Columns:   cols,
				Predicate: op.Predicate(),
				List:      op,
				Kind:      kind,
			})
		}
	}
}

// LookupTable returns the table with the given name.
func LookupTable(name string) (*Table, bool) {
	t, ok := tablesByName[name]
	return t, ok
}

// ListTable returns the table of the given encoding for a list kind.
func ListTable(kind ListKind, op ListOp) *Table {
	t, ok := listTables[kind][op]
	if !ok {
		panic(fmt.Sprintf("ir: no %v table for list %v", kind, op))
	}
	return t
}

// LookupListTable is ListTable for encodings that may not exist, such as
// the linked form of a unary list.
func LookupListTable(kind ListKind, op ListOp) (*Table, bool) {
	t, ok := listTables[kind][op]
	return t, ok
}

// RestrictionTables returns the tables whose rows define restriction constructs.
func RestrictionTables() []*Table {
	return []*Table{TableSome, TableOnly, TableValue, TableExactly}
}

// PredicateTable maps a fact-pattern predicate to the table holding it.
// Predicates without a dedicated table live in objs.
func PredicateTable(p Term) *Table {
	switch p {
	case Type:
		return TableTypes
	case SubclassOf:
		return TableIsA
	case SubpropertyOf:
		return TablePropIsA
	case Concrete:
		return TableConcrete
	case InferAncestors:
		return TableInferAncestors
	case InferDescendants:
		return TableInferDescendants
	case Some:
		return TableSome
	case Value:
		return TableValue
	case Only:
		return TableOnly
	case Exactly:
		return TableExactly
	}
	return TableObjs
}

// TablesForPredicate lists the tables a rule writes when it creates p.
func TablesForPredicate(p Term) []*Table {
	if op, ok := ListOpForPredicate(p); ok {
		var out []*Table
		for _, kind := range []ListKind{Flat, Linked} {
			if t, ok := listTables[kind][op]; ok {
				out = append(out, t)
			}
		}
		return out
	}
	t := PredicateTable(p)
	if t.Base {
		return nil
	}
	return []*Table{t}
}

// AllTables returns every table of the schema sorted by name.
func AllTables() []*Table {
	out := make([]*Table, 0, len(tablesByName))
	for _, t := range tablesByName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package compiler

import (
	"slices"

	"github.com/roach88/subsume/internal/ir"
)

// Kind says when a rule runs within its stage.
type Kind int

const (
	// Preprocess rules run once, in declaration order, before completion.
	Preprocess Kind = iota
	// Completion rules run repeatedly until the stage reaches a fixed point.
	Completion
)

func (k Kind) String() string {
	if k == Preprocess {
		return "preprocess"
	}
	return "completion"
}

// Action is what a rule does with its matches.
type Action int

const (
	ActionInfer Action = iota
	ActionRaise
	ActionBuiltin
)

func (a Action) String() string {
	switch a {
	case ActionRaise:
		return "raise"
	case ActionBuiltin:
		return "builtin"
	}
	return "infer"
}

// DefaultPriority is the priority of a rule without a priority option.
const DefaultPriority = 1

// Builtin names a preprocess step implemented by the engine.
type Builtin struct {
	Type string
	Ops  []ir.ListOp
}

// Known builtin types.
const (
	BuiltinCreateFlatList              = "CreateFlatList"
	BuiltinCreateSingleElementFlatList = "CreateSingleElementFlatList"
	BuiltinCreateKeyList               = "CreateKeyList"
	BuiltinCreateLinkedList            = "CreateLinkedList"
	BuiltinNormalizeConstructs         = "NormalizeConstructs"
	BuiltinRemoveSingleParentClass     = "RemoveSingleParentClass"
)

var builtinArity = map[string]bool{
	BuiltinCreateFlatList:              true,
	BuiltinCreateSingleElementFlatList: true,
	BuiltinCreateKeyList:               true,
	BuiltinCreateLinkedList:            true,
	BuiltinNormalizeConstructs:         false,
	BuiltinRemoveSingleParentClass:     false,
}

// Rule is a compiled rule descriptor. Rules are immutable once compiled.
type Rule struct {
	Name      string
	Stage     string
	Kind      Kind
	Action    Action
	Priority  int
	Recursive bool

	// Conditions holds one block per OR branch.
	Conditions  [][]Row
	Conclusions []Row
	// NewVars are the variables declared with "new".
	NewVars []string
	// Raise is the error name of a RAISE rule.
	Raise   string
	Builtin *Builtin

	// Depends holds, per OR branch, the predicates the branch reads.
	Depends [][]ir.Term
	// Creates lists the predicates the conclusions write.
	Creates []ir.Term
	// MultiRow rules apply their conclusions tuple by tuple.
	MultiRow   bool
	Complexity int

	// Offset is the source offset of the rule's declaration.
	Offset int
	Line   int
}

// IsBuiltin reports whether r is implemented by the engine.
func (r *Rule) IsBuiltin() bool { return r.Action == ActionBuiltin }

// DependsMatched reports whether some branch of r has all its depends in
// present. A rule without depends is always matched.
func (r *Rule) DependsMatched(present func(ir.Term) bool) bool {
	if len(r.Depends) == 0 {
		return true
	}
	for _, branch := range r.Depends {
		ok := true
		for _, p := range branch {
			if !present(p) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// AllDepends returns the union of every branch's depends.
func (r *Rule) AllDepends() []ir.Term {
	var out []ir.Term
	for _, branch := range r.Depends {
		for _, p := range branch {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// ConditionVars returns the set of variables bound by the condition rows.
func (r *Rule) ConditionVars() map[string]bool {
	vars := map[string]bool{}
	for _, block := range r.Conditions {
		for _, row := range block {
			for _, a := range row.Atoms() {
				if a.IsVar() {
					vars[a.Name] = true
				}
			}
		}
	}
	return vars
}

// ConditionClause returns the clause list row of the (single) condition
// block, if any.
func (r *Rule) ConditionClause() *ClauseListRow {
	for _, block := range r.Conditions {
		for _, row := range block {
			if c, ok := row.(*ClauseListRow); ok {
				return c
			}
		}
	}
	return nil
}

// Stage groups the rules that run together.
type Stage struct {
	Name        string
	Preprocess  []*Rule
	Completions []*Rule
}

// Rules returns the stage's rules, preprocess first.
func (s *Stage) Rules() []*Rule {
	return append(slices.Clone(s.Preprocess), s.Completions...)
}

// RuleSet is a compiled rule source.
type RuleSet struct {
	Stages []*Stage
	// Hash identifies the source the set was compiled from.
	Hash string

	byName map[string]*Rule
	order  []*Rule
}

// Rules returns every rule in declaration order.
func (rs *RuleSet) Rules() []*Rule { return slices.Clone(rs.order) }

// Rule looks a rule up by name.
func (rs *RuleSet) Rule(name string) (*Rule, bool) {
	r, ok := rs.byName[name]
	return r, ok
}

// ListBuiltins reports, per operator, which list encodings the rule set
// creates with builtins.
func (rs *RuleSet) ListBuiltins() map[ir.ListOp]ListEncodings {
	out := map[ir.ListOp]ListEncodings{}
	for _, r := range rs.order {
		if r.Builtin == nil {
			continue
		}
		for _, op := range r.Builtin.Ops {
			enc := out[op]
			switch r.Builtin.Type {
			case BuiltinCreateFlatList:
				enc.Flat = true
			case BuiltinCreateSingleElementFlatList:
				enc.Flat = true
				enc.SingleElement = true
			case BuiltinCreateKeyList:
				enc.Key = true
			case BuiltinCreateLinkedList:
				enc.Linked = true
			}
			out[op] = enc
		}
	}
	return out
}

// ListEncodings are the physical encodings declared for one list operator.
type ListEncodings struct {
	Flat bool
	// SingleElement flat lists are looked up by their only member.
	SingleElement bool
	Key           bool
	Linked        bool
}

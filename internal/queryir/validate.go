package queryir

import (
	"fmt"
	"slices"
)

// ValidationResult lists the problems found in a plan. A plan with no
// problems lowers to valid SQL.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

// Validate checks that every reference in p names an instance and column
// of its branch, that join groups partition pinned instances, and that all
// branches select the same number of columns.
//
// Validate is a pure function with no side effects.
func Validate(p *Plan) ValidationResult {
	v := &validator{problems: []string{}}
	v.validatePlan(p)
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validatePlan(p *Plan) {
	if p == nil {
		v.addProblem("nil plan")
		return
	}
	if len(p.Branches) == 0 {
		v.addProblem("plan %s has no branches", p.Rule.Name)
		return
	}
	width := len(p.Branches[0].Select)
	for i, b := range p.Branches {
		if len(b.Select) != width {
			v.addProblem("branch %d selects %d columns, branch 0 selects %d", i, len(b.Select), width)
		}
		if p.Insert != nil && len(b.Select) != len(p.Insert.Columns) {
			v.addProblem("branch %d selects %d columns for %s(%d)", i, len(b.Select), p.Insert, len(p.Insert.Columns))
		}
		v.validateBranch(i, b)
	}
	if len(p.Vars) > 0 && len(p.Vars) != width {
		v.addProblem("plan names %d variables for %d columns", len(p.Vars), width)
	}
}

func (v *validator) validateBranch(i int, b *Branch) {
	for _, op := range b.Select {
		v.validateOperand(i, b, op)
	}
	for _, pred := range b.Predicates {
		switch pred := pred.(type) {
		case ColEq:
			v.validateOperand(i, b, pred.Left)
			v.validateOperand(i, b, pred.Right)
		case ColConst:
			v.validateOperand(i, b, pred.Ref)
		case ColCompare:
			v.validateOperand(i, b, pred.Left)
			v.validateOperand(i, b, pred.Right)
		case NotExists:
			v.validateOperand(i, b, pred.S)
			v.validateOperand(i, b, pred.O)
		default:
			v.addProblem("branch %d: unknown predicate %T", i, pred)
		}
	}
	seen := map[int]bool{}
	for _, g := range b.Groups {
		for _, id := range g.Froms {
			if b.FromByID(id) == nil {
				v.addProblem("branch %d: join group names missing instance q%d", i, id)
			}
			if seen[id] {
				v.addProblem("branch %d: q%d is pinned twice", i, id)
			}
			seen[id] = true
		}
	}
}

func (v *validator) validateOperand(i int, b *Branch, op Operand) {
	ref, ok := op.(ColRef)
	if !ok {
		return
	}
	f := b.FromByID(ref.From)
	if f == nil {
		v.addProblem("branch %d: %s references a missing instance", i, ref)
		return
	}
	if !slices.Contains(f.Table.Columns, ref.Col) {
		v.addProblem("branch %d: %s has no column %q", i, f.Table, ref.Col)
	}
}

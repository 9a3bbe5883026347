package compiler

import (
	"github.com/roach88/subsume/internal/ir"
)

// validateRule checks the shape constraints that only make sense once the
// whole rule is parsed. Errors point at the rule declaration.
func validateRule(r *Rule, decl token) error {
	fail := func(code, format string, args ...any) error {
		p := &parser{rule: r}
		return p.errorAt(decl, code, format, args...)
	}

	for _, block := range r.Conditions {
		bound := patternVars(block)
		for _, row := range block {
			switch row.(type) {
			case *CompareRow, *NotIsARow:
				for _, a := range row.Atoms() {
					if a.IsVar() && !bound[a.Name] {
						return fail(ErrUnboundVariable, "%s is only used in a filter", a.Name)
					}
				}
			case *NewNodeRow:
				return fail(ErrSyntax, "'new' is only allowed in conclusions")
			}
		}
	}

	hasClause := r.ConditionClause() != nil
	for _, row := range r.Conclusions {
		switch row := row.(type) {
		case *CompareRow, *NotIsARow:
			return fail(ErrSyntax, "%s cannot be a conclusion", FormatRow(row))
		case *ClauseListRow:
			if !hasClause {
				return fail(ErrRestOutsideClause, "%s needs a list with %s in the conditions", RestVar, RestVar)
			}
		}
	}

	multi := isMultiRow(r)
	if multi && len(r.Conditions) > 1 {
		return fail(ErrMultiRowBranches, "a multi-row rule cannot have OR blocks")
	}
	if r.Recursive && (multi || r.Action != ActionInfer) {
		return fail(ErrRecursiveShape, "RECURSIVE needs a single-row INFER rule")
	}
	return nil
}

// patternVars returns the variables bound by the table-backed rows of a
// condition block.
func patternVars(block []Row) map[string]bool {
	bound := map[string]bool{}
	for _, row := range block {
		if RowTable(row) == nil {
			continue
		}
		for _, a := range row.Atoms() {
			if a.IsVar() {
				bound[a.Name] = true
			}
		}
	}
	return bound
}

// isMultiRow reports whether r's conclusions must be applied tuple by tuple:
// more than one write, any list write, any new node, or a conclusion
// variable the conditions do not bind.
func isMultiRow(r *Rule) bool {
	if r.Action != ActionInfer {
		return false
	}
	writes := 0
	for _, row := range r.Conclusions {
		switch row.(type) {
		case *NewNodeRow:
			return true
		case *FlatListRow, *LinkedListRow, *ClauseListRow:
			return true
		}
		writes++
	}
	if writes > 1 {
		return true
	}
	bound := r.ConditionVars()
	for _, row := range r.Conclusions {
		for _, a := range row.Atoms() {
			if a.IsVar() && !bound[a.Name] {
				return true
			}
		}
	}
	return false
}

// classify computes depends, creates, the multi-row flag, priority and
// complexity.
func classify(r *Rule) {
	for _, block := range r.Conditions {
		var deps []ir.Term
		for _, row := range block {
			r.Complexity += countFrom(row)
			for _, p := range RowPredicates(row) {
				if !containsTerm(deps, p) {
					deps = append(deps, p)
				}
			}
		}
		r.Depends = append(r.Depends, deps)
	}

	writesOr := false
	for _, row := range r.Conclusions {
		for _, p := range RowPredicates(row) {
			if !containsTerm(r.Creates, p) {
				r.Creates = append(r.Creates, p)
			}
		}
		if IsListRow(row) && listOp(row) == ir.ListOr {
			writesOr = true
		}
	}
	if writesOr {
		r.Priority += 10
	}

	r.MultiRow = isMultiRow(r)
	if r.MultiRow {
		r.Priority++
		r.Complexity += 1000
	}
}

func countFrom(row Row) int {
	if RowTable(row) != nil {
		return 1
	}
	return 0
}

func listOp(row Row) ir.ListOp {
	switch row := row.(type) {
	case *FlatListRow:
		return row.Op
	case *LinkedListRow:
		return row.Op
	case *ClauseListRow:
		return row.Op
	}
	return ir.ListNone
}

func containsTerm(ts []ir.Term, t ir.Term) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

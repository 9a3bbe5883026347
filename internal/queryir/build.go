package queryir

import (
	"fmt"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
)

// Build plans a compiled rule. Builtins have no plan and return nil.
//
// Each condition block becomes one branch per combination of its unordered
// linked pairs: a pair (s, a, b) also matches stored (s, b, a), so every
// unordered pair doubles the branches, with the swap applied to every
// predicate and selected column that the pair's members bind.
func Build(rule *compiler.Rule) (*Plan, error) {
	if rule.IsBuiltin() {
		return nil, nil
	}
	p := &Plan{Rule: rule}
	blocks := rule.Conditions
	if len(blocks) == 0 {
		blocks = [][]compiler.Row{nil}
	}

	if rule.Action == compiler.ActionInfer && !rule.MultiRow {
		p.Insert = compiler.RowTable(singleConclusion(rule))
		if p.Insert == nil {
			return nil, fmt.Errorf("plan %s: conclusion has no table", rule.Name)
		}
	}
	if rule.MultiRow {
		p.Vars = selectVars(rule)
	}

	for _, block := range blocks {
		var unordered []*compiler.LinkedListRow
		for _, row := range block {
			if l, ok := row.(*compiler.LinkedListRow); ok && !l.Ordered {
				unordered = append(unordered, l)
			}
		}
		for mask := 0; mask < 1<<len(unordered); mask++ {
			swapped := map[*compiler.LinkedListRow]bool{}
			for i, l := range unordered {
				if mask&(1<<i) != 0 {
					swapped[l] = true
				}
			}
			b, err := buildBranch(p, block, swapped)
			if err != nil {
				return nil, fmt.Errorf("plan %s: %w", rule.Name, err)
			}
			applyCatalogue(b)
			p.Branches = append(p.Branches, b)
		}
	}

	if rule.MultiRow {
		if clause := rule.ConditionClause(); clause != nil {
			p.ClauseSources = clauseSources(p.Branches[0], clause.Op)
			for _, b := range p.Branches {
				for _, cs := range clauseSources(b, clause.Op) {
					b.Select = append(b.Select,
						ColRef{From: cs.FromID, Col: "s"},
						ColRef{From: cs.FromID, Col: "o"})
				}
			}
			for _, cs := range p.ClauseSources {
				p.Vars = append(p.Vars, cs.SVar, cs.OVar)
			}
		}
	}
	return p, nil
}

func singleConclusion(rule *compiler.Rule) compiler.Row {
	for _, row := range rule.Conclusions {
		if _, ok := row.(*compiler.NewNodeRow); !ok {
			return row
		}
	}
	return nil
}

// selectVars lists the condition variables a multi-row rule's conclusions
// use, in order of first use.
func selectVars(rule *compiler.Rule) []string {
	bound := rule.ConditionVars()
	seen := map[string]bool{}
	var vars []string
	for _, row := range rule.Conclusions {
		atoms := row.Atoms()
		if c, ok := row.(*compiler.ClauseListRow); ok && c.PatternVar != "" {
			atoms = append(atoms, compiler.Var(c.PatternVar))
		}
		for _, a := range atoms {
			if a.IsVar() && bound[a.Name] && !seen[a.Name] {
				seen[a.Name] = true
				vars = append(vars, a.Name)
			}
		}
	}
	return vars
}

func clauseSources(b *Branch, op ir.ListOp) []ClauseSource {
	table := ir.ListTable(ir.Flat, op)
	var out []ClauseSource
	for _, f := range b.Froms {
		if f.Table == table {
			out = append(out, ClauseSource{
				Table:  table,
				SVar:   fmt.Sprintf("?_clause_s_%d", f.ID),
				OVar:   fmt.Sprintf("?_clause_o_%d", f.ID),
				FromID: f.ID,
			})
		}
	}
	return out
}

// rowColumns pairs a row's atoms with the columns they bind.
func rowColumns(row compiler.Row, swapped bool) ([]string, []compiler.Atom, error) {
	table := compiler.RowTable(row)
	switch r := row.(type) {
	case *compiler.LinkedListRow:
		if swapped {
			return table.Columns, []compiler.Atom{r.S, r.O2, r.O1}, nil
		}
		return table.Columns, r.Atoms(), nil
	case *compiler.ClauseListRow:
		if len(r.Members) > 1 {
			return nil, nil, fmt.Errorf("clause %s has more than one explicit member", compiler.FormatRow(r))
		}
		return table.Columns[:1+len(r.Members)], r.Atoms(), nil
	}
	atoms := row.Atoms()
	if len(atoms) > len(table.Columns) {
		return nil, nil, fmt.Errorf("row %s has more terms than %s has columns", compiler.FormatRow(row), table)
	}
	return table.Columns[:len(atoms)], atoms, nil
}

func buildBranch(p *Plan, block []compiler.Row, swapped map[*compiler.LinkedListRow]bool) (*Branch, error) {
	b := &Branch{}
	bindings := map[string]ColRef{}
	var filters []compiler.Row

	for _, row := range block {
		table := compiler.RowTable(row)
		if table == nil {
			filters = append(filters, row)
			continue
		}
		f := &From{ID: len(b.Froms) + 1, Table: table, Row: row}
		b.Froms = append(b.Froms, f)

		l, _ := row.(*compiler.LinkedListRow)
		cols, atoms, err := rowColumns(row, l != nil && swapped[l])
		if err != nil {
			return nil, err
		}
		for i, a := range atoms {
			ref := ColRef{From: f.ID, Col: cols[i]}
			switch {
			case a.IsRest():
			case a.IsVar():
				if first, ok := bindings[a.Name]; ok {
					b.Predicates = append(b.Predicates, ColEq{Left: ref, Right: first})
				} else {
					bindings[a.Name] = ref
				}
			default:
				b.Predicates = append(b.Predicates, ColConst{Ref: ref, Op: a.Operator(), Value: a})
			}
		}
	}

	operand := func(a compiler.Atom) (Operand, error) {
		if a.IsVar() {
			ref, ok := bindings[a.Name]
			if !ok {
				return nil, fmt.Errorf("variable %s is not bound", a.Name)
			}
			return ref, nil
		}
		return Literal{Atom: a}, nil
	}

	for _, row := range filters {
		switch r := row.(type) {
		case *compiler.CompareRow:
			l, err := operand(r.Left)
			if err != nil {
				return nil, err
			}
			rr, err := operand(r.Right)
			if err != nil {
				return nil, err
			}
			b.Predicates = append(b.Predicates, ColCompare{Left: l, Op: r.Op, Right: rr})
		case *compiler.NotIsARow:
			s, err := operand(r.S)
			if err != nil {
				return nil, err
			}
			o, err := operand(r.O)
			if err != nil {
				return nil, err
			}
			b.Predicates = append(b.Predicates, NotExists{S: s, O: o})
		}
	}

	switch {
	case p.Rule.Action == compiler.ActionRaise:
		b.Select = []Operand{Literal{Atom: compiler.Int(1)}}
	case p.Insert != nil:
		for _, a := range singleConclusion(p.Rule).Atoms() {
			op, err := operand(a)
			if err != nil {
				return nil, err
			}
			b.Select = append(b.Select, op)
		}
	case len(p.Vars) == 0:
		// A multi-row rule whose conclusions use no condition variable
		// still fires once per match.
		b.Select = []Operand{Literal{Atom: compiler.Int(1)}}
	default:
		for _, v := range p.Vars {
			op, err := operand(compiler.Var(v))
			if err != nil {
				return nil, err
			}
			b.Select = append(b.Select, op)
		}
	}
	return b, nil
}

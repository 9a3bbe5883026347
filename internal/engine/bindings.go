package engine

import (
	"context"
	"fmt"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

// bindings maps variable names to the terms bound to them while one
// selected tuple's conclusions are applied.
type bindings map[string]ir.Term

// bind builds the bindings of a selected tuple. vars and values line up.
func bind(vars []string, values []int64) bindings {
	b := make(bindings, len(vars))
	for i, v := range vars {
		b[v] = ir.Term(values[i])
	}
	return b
}

func (b bindings) clone() bindings {
	out := make(bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// term resolves an atom that stands for a term: a bound variable, a term
// constant or an integer literal.
func (b bindings) term(a compiler.Atom) (ir.Term, bool) {
	switch a.Kind {
	case compiler.AtomVar:
		t, ok := b[a.Name]
		return t, ok
	case compiler.AtomTerm:
		return a.Term, true
	case compiler.AtomInt:
		return ir.Term(a.Int), true
	}
	return 0, false
}

// value resolves an atom to an SQL argument.
func (b bindings) value(a compiler.Atom) (any, bool) {
	switch a.Kind {
	case compiler.AtomVar:
		t, ok := b[a.Name]
		return int64(t), ok
	case compiler.AtomTerm:
		return int64(a.Term), true
	case compiler.AtomInt:
		return a.Int, true
	case compiler.AtomFloat:
		return a.Float, true
	case compiler.AtomString:
		return a.Str, true
	case compiler.AtomBool:
		return a.Bool, true
	}
	return nil, false
}

// selectTuples runs a multi-row rule's SELECT and returns every tuple.
// The result is read fully before any conclusion is applied: the rows of
// a statement must not change while it is being stepped.
func selectTuples(ctx context.Context, db store.DBTX, query string, width int, params []any) ([][]int64, error) {
	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]int64
	for rows.Next() {
		vals := make([]int64, width)
		ptrs := make([]any, width)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan tuple: %w", err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

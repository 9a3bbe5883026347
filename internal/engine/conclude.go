package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/queryir"
)

// concluder applies the conclusions of one multi-row rule, one selected
// tuple at a time.
type concluder struct {
	run  *run
	rule *compiler.Rule
	plan *queryir.Plan

	// patterns are conclusion rows applied per clause member instead of
	// once per tuple.
	patterns map[compiler.Row]bool

	added map[*ir.Table]int64
}

func newConcluder(r *run, rule *compiler.Rule, plan *queryir.Plan) *concluder {
	c := &concluder{
		run:      r,
		rule:     rule,
		plan:     plan,
		patterns: map[compiler.Row]bool{},
		added:    map[*ir.Table]int64{},
	}
	for _, row := range rule.Conclusions {
		if cl, ok := row.(*compiler.ClauseListRow); ok && cl.Pattern != nil {
			c.patterns[cl.Pattern] = true
		}
	}
	return c
}

// apply applies every conclusion to one tuple. It reports false when the
// tuple was dropped part way, by the restriction depth guard or because
// a list collapsed to nothing.
func (c *concluder) apply(ctx context.Context, b bindings) (bool, error) {
	for _, v := range c.rule.NewVars {
		if _, ok := b[v]; ok {
			continue
		}
		blank, err := c.run.q.FreshBlank(ctx)
		if err != nil {
			return false, err
		}
		b[v] = blank
	}
	for i, row := range c.rule.Conclusions {
		if c.patterns[row] {
			continue
		}
		ok, err := c.applyRow(ctx, b, row, i)
		if err != nil {
			return false, fmt.Errorf("%s: %w", compiler.FormatRow(row), err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// applyRow applies one conclusion row. i is the row's index among the
// conclusions, or -1 for a clause pattern.
func (c *concluder) applyRow(ctx context.Context, b bindings, row compiler.Row, i int) (bool, error) {
	switch r := row.(type) {
	case *compiler.NewNodeRow:
		if _, ok := b[r.Var]; ok {
			return true, nil
		}
		blank, err := c.run.q.FreshBlank(ctx)
		if err != nil {
			return false, err
		}
		b[r.Var] = blank
		return true, nil
	case *compiler.TableRow:
		return c.addRow(ctx, b, r.Table, r.Args, nil)
	case *compiler.FlagRow:
		return c.addRow(ctx, b, r.Table, []compiler.Atom{r.S}, nil)
	case *compiler.RestrictionRow:
		return c.addRestriction(ctx, b, r)
	case *compiler.FlatListRow:
		return c.addList(ctx, b, r.Op, r.S, []compiler.Atom{r.Member}, nil, i)
	case *compiler.LinkedListRow:
		return c.addList(ctx, b, r.Op, r.S, []compiler.Atom{r.O1, r.O2}, nil, i)
	case *compiler.ClauseListRow:
		rest, ok, err := c.clauseRest(ctx, b, r)
		if err != nil || !ok {
			return ok, err
		}
		return c.addList(ctx, b, r.Op, r.S, r.Members, rest, i)
	}
	// Filters have no effect in conclusions.
	return true, nil
}

// addRow inserts one row of t. Variables the tuple does not bind are
// first looked up among the existing rows matching the bound columns;
// only when none matches are they given fresh blank nodes. check, when
// set, may veto the insert of a new row.
func (c *concluder) addRow(ctx context.Context, b bindings, t *ir.Table, args []compiler.Atom, check func() (bool, error)) (bool, error) {
	vals := make([]any, len(args))
	var unbound []int
	for i, a := range args {
		v, ok := b.value(a)
		if !ok {
			if !a.IsVar() {
				return false, fmt.Errorf("cannot write %s into %s", a, t)
			}
			unbound = append(unbound, i)
			continue
		}
		vals[i] = v
	}

	if len(unbound) > 0 {
		found, err := c.lookup(ctx, b, t, args, vals, unbound)
		if err != nil || found {
			return found, err
		}
	}
	if check != nil {
		ok, err := check()
		if err != nil || !ok {
			return false, err
		}
	}
	for _, i := range unbound {
		name := args[i].Name
		if _, ok := b[name]; !ok {
			blank, err := c.run.q.FreshBlank(ctx)
			if err != nil {
				return false, err
			}
			b[name] = blank
		}
		vals[i] = int64(b[name])
	}
	return true, c.insert(ctx, t, vals)
}

// lookup binds the unbound columns of args from an existing row of t.
func (c *concluder) lookup(ctx context.Context, b bindings, t *ir.Table, args []compiler.Atom, vals []any, unbound []int) (bool, error) {
	var sel, where []string
	var params []any
	for i, col := range t.Columns[:len(args)] {
		if slices.Contains(unbound, i) {
			sel = append(sel, col)
			continue
		}
		where = append(where, col+"=?")
		params = append(params, vals[i])
	}
	query := "SELECT " + strings.Join(sel, ", ") + " FROM " + t.Name
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " LIMIT 1"

	found := make([]int64, len(sel))
	ptrs := make([]any, len(sel))
	for i := range found {
		ptrs[i] = &found[i]
	}
	err := c.run.q.DB().QueryRowContext(ctx, query, params...).Scan(ptrs...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up %s: %w", t, err)
	}
	for j, i := range unbound {
		b[args[i].Name] = ir.Term(found[j])
	}
	return true, nil
}

func (c *concluder) insert(ctx context.Context, t *ir.Table, vals []any) error {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
	query := "INSERT OR IGNORE INTO " + t.Name + " (" + strings.Join(t.Columns[:len(vals)], ", ") + ") VALUES (" + marks + ")"
	res, err := c.run.q.DB().ExecContext(ctx, query, vals...)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t, err)
	}
	c.added[t] += n
	return nil
}

// addRestriction creates or finds a restriction. A new restriction must
// pass the depth guard and is marked for ancestor inference.
func (c *concluder) addRestriction(ctx context.Context, b bindings, r *compiler.RestrictionRow) (bool, error) {
	check := func() (bool, error) {
		value, ok := b.term(r.Value)
		if !ok {
			return false, fmt.Errorf("restriction value %s is unbound", r.Value)
		}
		depth, err := c.run.depth.Depth(ctx, value)
		if err != nil {
			return false, err
		}
		ok, err = c.run.depth.Allow(ctx, depth, c.run.global[ir.TableIsA])
		if err == nil && !ok {
			c.run.logger.Debug("restriction dropped by depth guard",
				"rule", c.rule.Name, "depth", depth, "max", c.run.depth.Max())
		}
		return ok, err
	}
	ok, err := c.addRow(ctx, b, r.Table, r.Atoms(), check)
	if err != nil || !ok {
		return ok, err
	}
	s, _ := b.term(r.S)
	return true, c.insert(ctx, ir.TableInferAncestors, []any{int64(s)})
}

// clauseRest returns the members of the matched condition clause list
// other than the matched one, mapped through the clause pattern when the
// conclusion has one.
func (c *concluder) clauseRest(ctx context.Context, b bindings, r *compiler.ClauseListRow) ([]ir.Term, bool, error) {
	var rest []ir.Term
	for _, cs := range c.plan.ClauseSources {
		s, o := b[cs.SVar], b[cs.OVar]
		rows, err := c.run.q.DB().QueryContext(ctx,
			`SELECT o FROM `+cs.Table.Name+` WHERE s=? AND o!=? ORDER BY o`, int64(s), int64(o))
		if err != nil {
			return nil, false, fmt.Errorf("read clause rest: %w", err)
		}
		for rows.Next() {
			var m int64
			if err := rows.Scan(&m); err != nil {
				rows.Close()
				return nil, false, err
			}
			rest = append(rest, ir.Term(m))
		}
		if err := rows.Close(); err != nil {
			return nil, false, err
		}
	}
	if r.Pattern == nil {
		return rest, true, nil
	}

	target := r.Pattern.Atoms()[0]
	mapped := make([]ir.Term, 0, len(rest))
	for _, m := range rest {
		pb := b.clone()
		pb[r.PatternVar] = m
		ok, err := c.applyRow(ctx, pb, r.Pattern, -1)
		if err != nil || !ok {
			return nil, ok, err
		}
		t, ok := pb.term(target)
		if !ok {
			return nil, false, fmt.Errorf("clause pattern %s bound nothing", compiler.FormatRow(r.Pattern))
		}
		mapped = append(mapped, t)
	}
	return mapped, true, nil
}

// addList resolves a list conclusion through the normalizer and binds its
// subject. A union that would contain the subject of the is_a row written
// right after it is dropped: x is_a (x or ...) says nothing.
func (c *concluder) addList(ctx context.Context, b bindings, op ir.ListOp, s compiler.Atom, atoms []compiler.Atom, extra []ir.Term, i int) (bool, error) {
	members := make([]ir.Term, 0, len(atoms)+len(extra))
	for _, a := range atoms {
		t, ok := b.term(a)
		if !ok {
			return false, fmt.Errorf("list member %s is unbound", a)
		}
		members = append(members, t)
	}
	members = append(members, extra...)

	if op == ir.ListOr && i >= 0 && i+1 < len(c.rule.Conclusions) {
		if next, ok := c.rule.Conclusions[i+1].(*compiler.TableRow); ok && next.Table == ir.TableIsA {
			if child, ok := b.term(next.Args[0]); ok && slices.Contains(members, child) {
				return false, nil
			}
		}
	}

	t, err := c.run.norm.Add(ctx, op, members)
	if err != nil {
		return false, err
	}
	if t == 0 {
		return false, nil
	}
	if s.IsVar() {
		b[s.Name] = t
	}
	return true, nil
}

// takeAdded returns the rows inserted since the last call, the
// normalizer's included, and resets the counts.
func (c *concluder) takeAdded() map[*ir.Table]int64 {
	out := c.added
	for t, n := range c.run.norm.TakeAdded() {
		out[t] += n
	}
	c.added = map[*ir.Table]int64{}
	return out
}

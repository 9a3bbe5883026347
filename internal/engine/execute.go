package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/querysql"
)

// execution is the outcome of one pass of a rule.
type execution struct {
	added   map[*ir.Table]int64
	hits    int64
	matches int64
}

// executeRule runs a rule to completion, looping recursive rules until a
// pass adds nothing, and advances the global watermarks. When stage is
// set, the rule's dependents are enqueued with the watermarks from before
// the execution.
func (r *run) executeRule(ctx context.Context, stage *tailoredStage, c *candidate) (int64, error) {
	rule := c.rule
	cr := r.prog.Rule(rule.Name)
	if cr == nil {
		return 0, fmt.Errorf("rule %s is not compiled", rule.Name)
	}

	before := r.global.Clone()
	start := time.Now()
	snapshot := c.snapshot
	total := map[*ir.Table]int64{}
	var hits, matches int64
	passes := 0
	for {
		mark := r.global.Clone()
		ex, err := r.executeOnce(ctx, cr, snapshot)
		if err != nil {
			if IsInconsistency(err) {
				r.usage.record(rule.Name, hits, matches+ex.matches, time.Since(start))
			}
			return 0, err
		}
		passes++
		hits += ex.hits
		matches += ex.matches
		for t, n := range ex.added {
			total[t] += n
		}
		r.global.Advance(ex.added)
		if !rule.Recursive || totalAdded(ex.added) == 0 {
			break
		}
		snapshot = mark
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	elapsed := time.Since(start)
	added := totalAdded(total)

	r.usage.record(rule.Name, hits, matches, elapsed)
	r.metrics.ObserveRule(rule.Name, hits, elapsed)
	r.logger.Debug("rule executed",
		"rule", rule.Name,
		"added", added,
		"hits", hits,
		"passes", passes,
		"incremental", c.snapshot != nil,
		"elapsed", elapsed)

	if r.debug {
		if err := r.checkWatermarks(ctx, rule.Name); err != nil {
			return 0, err
		}
	}

	if stage != nil && added > 0 {
		for _, p := range createdPredicates(rule, total) {
			for _, dep := range stage.dependents[p] {
				r.queue.Push(dep, before)
			}
		}
	}
	if stage != nil && rule.Recursive {
		r.queue.Remove(rule.Name)
	}
	return added, nil
}

// createdPredicates are the predicates a rule wrote, declared or written
// on its behalf by the normalizer.
func createdPredicates(rule *compiler.Rule, added map[*ir.Table]int64) []ir.Term {
	seen := map[ir.Term]bool{}
	var out []ir.Term
	add := func(p ir.Term) {
		if p != 0 && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range rule.Creates {
		add(p)
	}
	for _, t := range sortedTables(added) {
		if added[t] > 0 {
			add(t.Predicate)
		}
	}
	return out
}

func sortedTables(m map[*ir.Table]int64) []*ir.Table {
	return Watermarks(m).Tables()
}

// statement picks the statement for a pass: the incremental one when the
// snapshot has seen part of the tables it gates on, the full one
// otherwise.
func statement(cr *querysql.CompiledRule, snapshot Watermarks) (querysql.Statement, []any) {
	inc := cr.Incremental
	if snapshot != nil && inc.Incremental() && snapshot.Seen(inc.WatermarkTables) {
		return inc, inc.Params(snapshot)
	}
	return cr.Full, cr.Full.Params(nil)
}

// executeOnce runs a single pass of a rule.
func (r *run) executeOnce(ctx context.Context, cr *querysql.CompiledRule, snapshot Watermarks) (execution, error) {
	rule := cr.Rule
	stmt, params := statement(cr, snapshot)
	ex := execution{added: map[*ir.Table]int64{}}

	if r.debug {
		var n int64
		query := "SELECT COUNT(*) FROM (" + stmt.Select + ")"
		if err := r.q.DB().QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
			return ex, fmt.Errorf("count matches of %s: %w", rule.Name, err)
		}
		ex.matches = n
	}

	switch {
	case rule.Action == compiler.ActionRaise:
		return ex, r.raise(ctx, rule, stmt, params)

	case cr.Plan.Insert != nil:
		res, err := r.q.DB().ExecContext(ctx, stmt.SQL, params...)
		if err != nil {
			return ex, fmt.Errorf("execute %s: %w", rule.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return ex, fmt.Errorf("execute %s: %w", rule.Name, err)
		}
		ex.added[cr.Plan.Insert] = n
		ex.hits = n
		return ex, nil
	}

	width := max(len(cr.Plan.Vars), 1)
	tuples, err := selectTuples(ctx, r.q.DB(), stmt.SQL, width, params)
	if err != nil {
		return ex, fmt.Errorf("execute %s: %w", rule.Name, err)
	}
	c := newConcluder(r, rule, cr.Plan)
	for _, tuple := range tuples {
		if err := ctx.Err(); err != nil {
			return ex, err
		}
		if !r.seen.Add(rule.Name, tuple) {
			continue
		}
		if _, err := c.apply(ctx, bind(cr.Plan.Vars, tuple)); err != nil {
			return ex, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		added := c.takeAdded()
		if totalAdded(added) > 0 {
			ex.hits++
		}
		for t, n := range added {
			ex.added[t] += n
		}
	}
	return ex, nil
}

// raise fails the run when the rule's condition has any match.
func (r *run) raise(ctx context.Context, rule *compiler.Rule, stmt querysql.Statement, params []any) error {
	rows, err := r.q.DB().QueryContext(ctx, stmt.SQL+"\nLIMIT 1", params...)
	if err != nil {
		return fmt.Errorf("execute %s: %w", rule.Name, err)
	}
	found := rows.Next()
	if err := rows.Close(); err != nil {
		return fmt.Errorf("execute %s: %w", rule.Name, err)
	}
	if !found {
		return nil
	}
	return &InconsistencyError{Rule: rule.Name, Raise: rule.Raise, RunID: r.runID}
}

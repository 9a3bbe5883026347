package engine

import (
	"context"
	"fmt"

	"github.com/roach88/subsume/internal/compiler"
)

// checkWatermarks compares every global watermark with the table it
// tracks. Every insert of the run is counted, so a mismatch means a
// write escaped the accounting.
func (r *run) checkWatermarks(ctx context.Context, after string) error {
	for _, t := range r.global.Tables() {
		actual, err := r.q.MaxRowID(ctx, t)
		if err != nil {
			return err
		}
		if actual != r.global[t] {
			return &WatermarkIntegrityError{Table: t, Watermark: r.global[t], Actual: actual, Rule: after}
		}
	}
	return nil
}

// verifyFixpoint re-runs the full statement of every single-row
// completion rule of a finished stage inside a savepoint and fails if any
// of them would still insert a row.
//
// Multi-row rules are left out: the normalizer simplifies lists against
// the current hierarchy, so re-applying an old tuple may legitimately
// build a different construct.
func (r *run) verifyFixpoint(ctx context.Context, stage *tailoredStage) error {
	for _, rule := range stage.completions {
		cr := r.prog.Rule(rule.Name)
		if cr == nil || cr.Plan == nil || cr.Plan.Insert == nil || rule.Action != compiler.ActionInfer {
			continue
		}
		n, err := r.dryRun(ctx, cr.Full.SQL)
		if err != nil {
			return fmt.Errorf("verify %s: %w", rule.Name, err)
		}
		if n > 0 {
			return &FixpointError{Stage: stage.name, Rule: rule.Name, Added: n}
		}
	}
	return nil
}

// dryRun executes an insert and undoes it, returning the rows it would
// have added.
func (r *run) dryRun(ctx context.Context, query string) (int64, error) {
	db := r.q.DB()
	if _, err := db.ExecContext(ctx, "SAVEPOINT fixpoint_check"); err != nil {
		return 0, err
	}
	res, execErr := db.ExecContext(ctx, query)
	var n int64
	if execErr == nil {
		n, execErr = res.RowsAffected()
	}
	if _, err := db.ExecContext(ctx, "ROLLBACK TO fixpoint_check"); err != nil {
		return 0, err
	}
	if _, err := db.ExecContext(ctx, "RELEASE fixpoint_check"); err != nil {
		return 0, err
	}
	return n, execErr
}

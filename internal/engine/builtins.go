package engine

import (
	"context"
	"fmt"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
)

// removeSingleParentSQL deletes the is_a edge of entities left with
// exactly one. The newest row of the table is set aside before counting
// and never deleted, so the is_a watermark stays valid; an entity whose
// other edge is that newest row loses its remaining one.
const removeSingleParentSQL = `
DELETE FROM is_a WHERE rowid IN (
  SELECT MIN(rowid) FROM is_a
  WHERE s > 0 AND rowid != (SELECT MAX(rowid) FROM is_a)
  GROUP BY s HAVING COUNT(o) = 1
)`

// runBuiltin executes a preprocess builtin and returns the rows it added.
//
// Flat-list builtins only declare an encoding: flat rows are materialized
// by NormalizeConstructs after equivalent constructs have been merged.
func (r *run) runBuiltin(ctx context.Context, rule *compiler.Rule) (int64, error) {
	b := rule.Builtin
	var added int64
	switch b.Type {
	case compiler.BuiltinCreateFlatList, compiler.BuiltinCreateSingleElementFlatList:
	case compiler.BuiltinNormalizeConstructs:
		n, err := r.norm.Constructs(ctx)
		if err != nil {
			return 0, err
		}
		added = n
	case compiler.BuiltinCreateKeyList:
		for _, op := range b.Ops {
			n, err := r.norm.BuildKeys(ctx, op)
			if err != nil {
				return 0, err
			}
			added += n
		}
	case compiler.BuiltinCreateLinkedList:
		for _, op := range b.Ops {
			if _, ok := ir.LookupListTable(ir.Linked, op); !ok {
				return 0, fmt.Errorf("builtin %s: %v lists have no linked form", rule.Name, op)
			}
			n, err := r.norm.BuildLinked(ctx, op)
			if err != nil {
				return 0, err
			}
			added += n
		}
	case compiler.BuiltinRemoveSingleParentClass:
		res, err := r.q.DB().ExecContext(ctx, removeSingleParentSQL)
		if err != nil {
			return 0, fmt.Errorf("builtin %s: %w", rule.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("builtin %s: %w", rule.Name, err)
		}
		r.logger.Debug("removed single parent edges", "rows", n)
	default:
		return 0, fmt.Errorf("builtin %s: unknown type %q", rule.Name, b.Type)
	}

	// Counts are resynced from the tables instead.
	r.norm.TakeAdded()
	if err := r.global.Resync(ctx, r.q); err != nil {
		return 0, err
	}
	return added, nil
}

package engine

import (
	"context"
	"fmt"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

// restrictionDepthSQL counts the restrictions reachable from a term
// through restriction values, the term included when it is one.
const restrictionDepthSQL = `
WITH RECURSIVE interm(s) AS (
  SELECT ?
  UNION
  SELECT r.value FROM interm, restriction r WHERE interm.s = r.s
)
SELECT COUNT(*) FROM interm WHERE s IN (SELECT s FROM restriction)`

// maxRestrictionDepthSQL is the deepest restriction nesting in the run
// tables. Only restriction values that are restrictions themselves are
// followed, not is_a edges.
const maxRestrictionDepthSQL = `
WITH depth(n) AS (
  SELECT (
    WITH RECURSIVE interm(s) AS (
      SELECT restriction.s
      UNION
      SELECT r.value FROM interm, restriction r
      WHERE r.s = interm.s AND r.value IN (SELECT s FROM restriction)
    )
    SELECT COUNT(*) FROM interm
  )
  FROM restriction
)
SELECT COALESCE(MAX(n), 0) FROM depth`

// depthGuard bounds the nesting of restrictions created during a run.
//
// Rules such as some_only build (p some (a and b)) out of existing
// restrictions; without a bound, cyclic ontologies nest them forever. A
// new restriction may be at most slack levels deeper than the deepest
// one already present. The maximum starts at 1 and is recomputed lazily,
// only when is_a has grown since the last computation.
type depthGuard struct {
	q     *store.Queries
	slack int64

	max        int64
	lastUpdate int64
	dropped    int
}

func newDepthGuard(q *store.Queries, slack int) *depthGuard {
	return &depthGuard{q: q, slack: int64(slack), max: 1}
}

// Depth returns the depth a new restriction over value would have.
func (g *depthGuard) Depth(ctx context.Context, value ir.Term) (int64, error) {
	var n int64
	if err := g.q.DB().QueryRowContext(ctx, restrictionDepthSQL, int64(value)).Scan(&n); err != nil {
		return 0, fmt.Errorf("restriction depth of %d: %w", value, err)
	}
	return n + 1, nil
}

// Allow reports whether a restriction of the given depth may be created.
// isA is the current global watermark of is_a.
func (g *depthGuard) Allow(ctx context.Context, depth, isA int64) (bool, error) {
	if depth <= g.max+g.slack {
		return true, nil
	}
	if g.lastUpdate < isA {
		var n int64
		if err := g.q.DB().QueryRowContext(ctx, maxRestrictionDepthSQL).Scan(&n); err != nil {
			return false, fmt.Errorf("max restriction depth: %w", err)
		}
		g.max = max(n, 1)
		g.lastUpdate = isA
		if depth <= g.max+g.slack {
			return true, nil
		}
	}
	g.dropped++
	return false, nil
}

// Max returns the current maximum depth.
func (g *depthGuard) Max() int64 { return g.max }

// Dropped returns how many restrictions the guard refused.
func (g *depthGuard) Dropped() int { return g.dropped }

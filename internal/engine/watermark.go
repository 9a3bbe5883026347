package engine

import (
	"context"
	"sort"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

// Watermarks maps each table a run can grow to a rowid.
//
// The run's global watermarks track MAX(rowid) of every inferrable table.
// A rule's snapshot is a copy of the global watermarks taken when the rule
// was enqueued: its incremental statement only matches tuples with at
// least one row above the snapshot.
type Watermarks map[*ir.Table]int64

// Clone returns an independent copy.
func (w Watermarks) Clone() Watermarks {
	out := make(Watermarks, len(w))
	for t, n := range w {
		out[t] = n
	}
	return out
}

// Advance adds inserted row counts to the tracked tables. Counts for
// tables w does not track are ignored.
func (w Watermarks) Advance(added map[*ir.Table]int64) {
	for t, n := range added {
		if _, ok := w[t]; ok {
			w[t] += n
		}
	}
}

// Tables returns the tracked tables sorted by name.
func (w Watermarks) Tables() []*ir.Table {
	out := make([]*ir.Table, 0, len(w))
	for t := range w {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Seen reports whether any of tables has a nonzero watermark. A snapshot
// that has seen nothing of a statement's gated tables is no better than a
// full evaluation.
func (w Watermarks) Seen(tables []*ir.Table) bool {
	for _, t := range tables {
		if w[t] > 0 {
			return true
		}
	}
	return false
}

// Resync reads MAX(rowid) of every tracked table. Builtins rewrite tables
// in bulk, so the run resyncs after each of them instead of counting.
func (w Watermarks) Resync(ctx context.Context, q *store.Queries) error {
	for t := range w {
		n, err := q.MaxRowID(ctx, t)
		if err != nil {
			return err
		}
		w[t] = n
	}
	return nil
}

// newWatermarks returns zero watermarks over the given tables. Views and
// base tables have no run rowids and are never tracked.
func newWatermarks(tables map[*ir.Table]bool) Watermarks {
	w := make(Watermarks, len(tables))
	for t, ok := range tables {
		if ok && !t.Base && t.List != ir.ListAndOr {
			w[t] = 0
		}
	}
	return w
}

func totalAdded(added map[*ir.Table]int64) int64 {
	var n int64
	for _, c := range added {
		n += c
	}
	return n
}

package engine

import (
	"context"
	"fmt"

	"github.com/roach88/subsume/internal/ir"
)

// kindTerms are the types copied from objs into the types table.
var kindTerms = []ir.Term{
	ir.Class, ir.ObjectProperty, ir.DataProperty, ir.NamedIndividual,
	ir.FunctionalProperty, ir.TransitiveProperty,
}

func kindList() string { return termList(kindTerms) }

func termList(ts []ir.Term) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprint(int64(t))
	}
	return s
}

// seedStatements import the asserted facts of objs into the run tables.
//
// An individual's class assertions become level 1 is_a edges, like
// subclass assertions. Equivalences between two named entities become
// mutual edges; equivalences with a construct are left to the
// normalizer, which folds the construct into its name.
var seedStatements = []struct {
	table *ir.Table
	sql   string
	args  []any
}{
	{
		ir.TableTypes,
		`INSERT OR IGNORE INTO types (s, o)
		 SELECT s, o FROM objs WHERE p=? AND o IN (` + kindList() + `)`,
		[]any{int64(ir.Type)},
	},
	{
		ir.TableIsA,
		`INSERT OR IGNORE INTO is_a (s, o, level)
		 SELECT q1.s, q1.o, 1 FROM objs q1, objs q2
		 WHERE q1.p=? AND q2.s=q1.s AND q2.p=? AND q2.o=? AND q1.o NOT IN (` + kindList() + `)`,
		[]any{int64(ir.Type), int64(ir.Type), int64(ir.NamedIndividual)},
	},
	{
		ir.TableIsA,
		`INSERT OR IGNORE INTO is_a (s, o, level) SELECT s, o, 1 FROM objs WHERE p=?`,
		[]any{int64(ir.SubclassOf)},
	},
	{
		ir.TablePropIsA,
		`INSERT OR IGNORE INTO prop_is_a (s, o) SELECT s, o FROM objs WHERE p=?`,
		[]any{int64(ir.SubpropertyOf)},
	},
	{
		ir.TableIsA,
		`INSERT OR IGNORE INTO is_a (s, o, level)
		 SELECT s, o, 1 FROM objs WHERE p IN (?,?) AND s>0 AND o>0
		 UNION ALL
		 SELECT o, s, 1 FROM objs WHERE p IN (?,?) AND s>0 AND o>0`,
		[]any{
			int64(ir.EquivalentClass), int64(ir.EquivalentIndividual),
			int64(ir.EquivalentClass), int64(ir.EquivalentIndividual),
		},
	},
	{
		ir.TablePropIsA,
		`INSERT OR IGNORE INTO prop_is_a (s, o)
		 SELECT s, o FROM objs WHERE p=? AND s>0 AND o>0
		 UNION ALL
		 SELECT o, s FROM objs WHERE p=? AND s>0 AND o>0`,
		[]any{int64(ir.EquivalentProperty), int64(ir.EquivalentProperty)},
	},
}

// seed fills the run tables from objs and returns the rows added.
func (r *run) seed(ctx context.Context) (int64, error) {
	var total int64
	for _, st := range seedStatements {
		res, err := r.q.DB().ExecContext(ctx, st.sql, st.args...)
		if err != nil {
			return 0, fmt.Errorf("seed %s: %w", st.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("seed %s: %w", st.table, err)
		}
		total += n
	}
	return total, nil
}

// presentPredicates returns the predicates stage tailoring starts from:
// those with an objs row plus the ones every store has.
func (r *run) presentPredicates(ctx context.Context) (map[ir.Term]bool, error) {
	present, err := r.q.Predicates(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range []ir.Term{ir.Type, ir.SubclassOf, ir.SubpropertyOf} {
		present[p] = true
	}
	// Pairwise disjointness is loaded as two-member disjointness groups.
	if present[ir.DisjointWith] {
		present[ir.Members] = true
	}
	return present, nil
}

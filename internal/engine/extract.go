package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

// Kind classifies an entity of the result.
type Kind string

const (
	KindClass      Kind = "class"
	KindProperty   Kind = "property"
	KindIndividual Kind = "individual"
)

// Result is what a consistent run inferred.
type Result struct {
	RunID string
	// Parents maps an entity to its new parents, sorted.
	Parents map[ir.Term][]ir.Term
	// Equivalents maps each member of an equivalence to the others, sorted.
	Equivalents map[ir.Term][]ir.Term
	// Kinds has an entry for every key of Parents and Equivalents.
	Kinds map[ir.Term]Kind
	// Ancestors maps every named entity to all its named ancestors other
	// than itself and Thing. Only filled when WithAncestors is set.
	Ancestors map[ir.Term][]ir.Term
	// Concrete lists the named entities known to have an instance.
	Concrete []ir.Term
	Usage    []store.RuleUsage
	// Added counts the rows the run wrote, seeding included.
	Added int64
	// DepthDropped counts the restrictions refused by the depth guard.
	DepthDropped int
}

// equivSQL are the mutual is_a pairs between two distinct named entities.
const equivSQL = `
SELECT DISTINCT q1.s, q2.s
FROM is_a q1, is_a q2
WHERE q1.s=q2.o AND q2.s=q1.o AND q1.s!=q2.s AND q1.s>0 AND q2.s>0`

// parentsSQL lists the derived edges that are not trivial. An edge is
// trivial when it was asserted, when it follows from one asserted step
// and one more is_a step, or when it is an equivalence.
const parentsSQL = `
WITH equiv(s, o) AS (` + equivSQL + `),
trivial(s, o) AS (
  SELECT q1.s, q2.o
  FROM is_a q1, is_a q2
  WHERE q1.level=1 AND q2.s=q1.o AND q1.s>0 AND q2.s>0 AND q2.o>0 AND q1.s!=q1.o AND q2.s!=q2.o
  UNION ALL
  SELECT s, o FROM objs WHERE p IN (?, ?)
  UNION ALL
  SELECT s, o FROM equiv
)
SELECT s, o FROM is_a
WHERE s>0 AND o>0 AND s!=o AND s!=? AND o!=?
EXCEPT
SELECT s, o FROM trivial
ORDER BY 1, 2`

const ancestorsSQL = `
SELECT s, o FROM is_a
WHERE s>0 AND o>0 AND s!=o AND o!=?
ORDER BY 1, 2`

var kindOf = map[ir.Term]Kind{
	ir.Class:           KindClass,
	ir.ObjectProperty:  KindProperty,
	ir.DataProperty:    KindProperty,
	ir.NamedIndividual: KindIndividual,
}

// extract reads the result of a finished run.
func (r *run) extract(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:       r.runID,
		Parents:     map[ir.Term][]ir.Term{},
		Equivalents: map[ir.Term][]ir.Term{},
		Kinds:       map[ir.Term]Kind{},
	}
	db := r.q.DB()

	pairs, err := termPairs(ctx, db, parentsSQL,
		int64(ir.SubclassOf), int64(ir.Type), int64(ir.Nothing), int64(ir.Thing))
	if err != nil {
		return nil, fmt.Errorf("extract parents: %w", err)
	}
	for _, p := range pairs {
		res.Parents[p[0]] = append(res.Parents[p[0]], p[1])
	}

	pairs, err = termPairs(ctx, db, equivSQL+"\nORDER BY 1, 2")
	if err != nil {
		return nil, fmt.Errorf("extract equivalents: %w", err)
	}
	for _, p := range pairs {
		if p[0] < p[1] {
			res.Equivalents[p[0]] = append(res.Equivalents[p[0]], p[1])
			res.Equivalents[p[1]] = append(res.Equivalents[p[1]], p[0])
		}
	}
	for _, eq := range res.Equivalents {
		slices.Sort(eq)
	}

	entities := map[ir.Term]bool{}
	for s := range res.Parents {
		entities[s] = true
	}
	for s := range res.Equivalents {
		entities[s] = true
	}
	for s := range entities {
		k, err := r.kind(ctx, s)
		if err != nil {
			return nil, err
		}
		res.Kinds[s] = k
	}

	if r.ancestors {
		pairs, err = termPairs(ctx, db, ancestorsSQL, int64(ir.Thing))
		if err != nil {
			return nil, fmt.Errorf("extract ancestors: %w", err)
		}
		res.Ancestors = map[ir.Term][]ir.Term{}
		for _, p := range pairs {
			res.Ancestors[p[0]] = append(res.Ancestors[p[0]], p[1])
		}
	}

	rows, err := db.QueryContext(ctx, `SELECT s FROM concrete WHERE s>0 ORDER BY s`)
	if err != nil {
		return nil, fmt.Errorf("extract concrete: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s int64
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		res.Concrete = append(res.Concrete, ir.Term(s))
	}
	return res, rows.Err()
}

// kind returns the kind of an entity from its first typed row, class by
// default.
func (r *run) kind(ctx context.Context, s ir.Term) (Kind, error) {
	rows, err := r.q.DB().QueryContext(ctx, `SELECT o FROM types WHERE s=? ORDER BY rowid`, int64(s))
	if err != nil {
		return "", fmt.Errorf("kind of %d: %w", s, err)
	}
	defer rows.Close()
	for rows.Next() {
		var o int64
		if err := rows.Scan(&o); err != nil {
			return "", err
		}
		if k, ok := kindOf[ir.Term(o)]; ok {
			return k, nil
		}
	}
	return KindClass, rows.Err()
}

func termPairs(ctx context.Context, db store.DBTX, query string, args ...any) ([][2]ir.Term, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]ir.Term
	for rows.Next() {
		var s, o int64
		if err := rows.Scan(&s, &o); err != nil {
			return nil, err
		}
		out = append(out, [2]ir.Term{ir.Term(s), ir.Term(o)})
	}
	return out, rows.Err()
}

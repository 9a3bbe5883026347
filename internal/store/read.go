package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/subsume/internal/ir"
)

// Unabbreviate returns the IRI of a term. Constructs have no IRI and are
// rendered as blank node labels.
func (q *Queries) Unabbreviate(ctx context.Context, t ir.Term) (string, error) {
	if t.IsConstruct() {
		return fmt.Sprintf("_:c%d", -int64(t)), nil
	}
	if iri, ok := ir.IRIOf(t); ok {
		return iri, nil
	}
	var iri string
	err := q.db.QueryRowContext(ctx, `SELECT iri FROM resources WHERE storid = ?`, int64(t)).Scan(&iri)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("unabbreviate %d: unknown term", t)
	}
	if err != nil {
		return "", fmt.Errorf("unabbreviate %d: %w", t, err)
	}
	return iri, nil
}

// Triple is one objs row.
type Triple struct {
	S, P, O ir.Term
}

// Triples returns every asserted triple ordered by (s, p, o).
//
// Returns an empty slice (not nil) for an empty store.
func (q *Queries) Triples(ctx context.Context) ([]Triple, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT s, p, o FROM objs ORDER BY s, p, o`)
	if err != nil {
		return nil, fmt.Errorf("query triples: %w", err)
	}
	defer rows.Close()

	triples := []Triple{}
	for rows.Next() {
		var s, p, o int64
		if err := rows.Scan(&s, &p, &o); err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}
		triples = append(triples, Triple{ir.Term(s), ir.Term(p), ir.Term(o)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triples: %w", err)
	}
	return triples, nil
}

// Predicates returns the set of predicates with at least one objs row.
func (q *Queries) Predicates(ctx context.Context) (map[ir.Term]bool, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT DISTINCT p FROM objs`)
	if err != nil {
		return nil, fmt.Errorf("query predicates: %w", err)
	}
	defer rows.Close()

	out := map[ir.Term]bool{}
	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan predicate: %w", err)
		}
		out[ir.Term(p)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predicates: %w", err)
	}
	return out, nil
}

// MaxRowID returns the largest rowid of a run table, 0 when it is empty.
func (q *Queries) MaxRowID(ctx context.Context, t *ir.Table) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(rowid), 0) FROM `+t.Name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max rowid of %s: %w", t, err)
	}
	return n, nil
}

// Count returns the number of rows of a table or view.
func (q *Queries) Count(ctx context.Context, t *ir.Table) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.Name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t, err)
	}
	return n, nil
}

// Runs returns the recorded runs, oldest first.
func (q *Queries) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT run_id, rules_hash, outcome, added, usage, seq
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var (
			r     RunRecord
			usage string
		)
		if err := rows.Scan(&r.RunID, &r.RulesHash, &r.Outcome, &r.Added, &usage, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.Usage, err = unmarshalUsage(usage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/subsume/internal/ir"
)

// Abbreviate returns the term of an IRI, allocating one for names the
// store has not seen. Well-known IRIs map to their fixed terms.
func (q *Queries) Abbreviate(ctx context.Context, iri string) (ir.Term, error) {
	iri = ir.NormalizeName(iri)
	if iri == "" {
		return 0, fmt.Errorf("abbreviate: empty IRI")
	}
	if t, ok := ir.LookupIRI(iri); ok {
		return t, nil
	}

	var id int64
	err := q.db.QueryRowContext(ctx, `SELECT storid FROM resources WHERE iri = ?`, iri).Scan(&id)
	if err == nil {
		return ir.Term(id), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("abbreviate %q: %w", iri, err)
	}

	err = q.db.QueryRowContext(ctx, `
		INSERT INTO resources (storid, iri)
		SELECT MAX(COALESCE(MAX(storid) + 1, ?), ?), ? FROM resources
		RETURNING storid
	`, int64(ir.FirstUserTerm), int64(ir.FirstUserTerm), iri).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("abbreviate %q: %w", iri, err)
	}
	return ir.Term(id), nil
}

// FreshBlank allocates the next construct id. Construct ids are negative
// and never reused, even across runs.
func (q *Queries) FreshBlank(ctx context.Context) (ir.Term, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		UPDATE store SET current_blank = current_blank - 1 WHERE id = 1
		RETURNING current_blank
	`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("fresh blank: %w", err)
	}
	return ir.Term(id), nil
}

// AddTriple asserts s p o. Duplicate triples are silently ignored.
func (q *Queries) AddTriple(ctx context.Context, s, p, o ir.Term) error {
	_, err := q.db.ExecContext(ctx, `INSERT OR IGNORE INTO objs (s, p, o) VALUES (?, ?, ?)`,
		int64(s), int64(p), int64(o))
	if err != nil {
		return fmt.Errorf("add triple (%d %d %d): %w", s, p, o, err)
	}
	return nil
}

// RecordRun stores the summary of a finished run. Runs are ordered by the
// order they were recorded in.
func (q *Queries) RecordRun(ctx context.Context, run RunRecord) error {
	usage, err := marshalUsage(run.Usage)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, rules_hash, outcome, added, usage, seq)
		SELECT ?, ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1 FROM runs WHERE true
		ON CONFLICT(run_id) DO NOTHING
	`, run.RunID, run.RulesHash, run.Outcome, run.Added, usage)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

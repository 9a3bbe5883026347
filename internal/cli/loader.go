package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/engine"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/ontology"
	"github.com/roach88/subsume/internal/store"
)

// CLI error codes. Rule compile errors (E1xx) and ontology load errors
// (E005, E2xx) keep the codes their packages assign.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNoInput      = "E002" // Neither inputs nor a database given
	ErrCodeInconsistent = "E301" // The ontology has no model
	ErrCodeStore        = "E401" // Fact store could not be opened
)

// errorCode picks the code reported for err.
func errorCode(err error) string {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var le *ontology.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	if engine.IsInconsistency(err) {
		return ErrCodeInconsistent
	}
	return ErrCodeGeneric
}

// workspace is an open fact store with the ontology inputs asserted.
// Without a database path the store lives in a temporary directory that
// Close removes.
type workspace struct {
	store *store.Store
	stats ontology.Stats
	tmp   string
}

func openWorkspace(ctx context.Context, db string, patterns []string) (*workspace, error) {
	w := &workspace{}
	path := db
	if path == "" {
		dir, err := os.MkdirTemp("", "subsume-")
		if err != nil {
			return nil, err
		}
		w.tmp = dir
		path = filepath.Join(dir, "facts.db")
	}

	st, err := store.Open(path)
	if err != nil {
		_ = w.Close()
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	w.store = st

	if len(patterns) > 0 {
		stats, err := ontology.Load(ctx, st, patterns)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		w.stats = stats
	}
	return w, nil
}

func (w *workspace) Close() error {
	var err error
	if w.store != nil {
		err = w.store.Close()
	}
	if w.tmp != "" {
		err = errors.Join(err, os.RemoveAll(w.tmp))
	}
	return err
}

// iri renders a term for output.
func (w *workspace) iri(ctx context.Context, t ir.Term) (string, error) {
	return w.store.Unabbreviate(ctx, t)
}

// iris renders terms for output, sorted.
func (w *workspace) iris(ctx context.Context, terms []ir.Term) ([]string, error) {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		s, err := w.iri(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("render result: %w", err)
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return out, nil
}

// termMap renders a result map keyed by IRI.
func (w *workspace) termMap(ctx context.Context, m map[ir.Term][]ir.Term) (map[string][]string, error) {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		key, err := w.iri(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("render result: %w", err)
		}
		if out[key], err = w.iris(ctx, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

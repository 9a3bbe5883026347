package ontology

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/subsume/internal/store"
)

// Stats summarizes a load.
type Stats struct {
	Files   int
	Triples int
}

// Expand resolves glob patterns ("onto/**/*.yaml") to a sorted,
// deduplicated list of files. A pattern that matches nothing is an error.
func Expand(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: p, Message: "bad pattern", Err: err}
		}
		if len(matches) == 0 {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: p, Message: "no such file"}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

// ReadAll reads and parses the files concurrently. Documents are returned
// in the order of paths; the first failure cancels the rest.
func ReadAll(ctx context.Context, paths []string) ([]*Document, error) {
	docs := make([]*Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return &LoadError{Code: ErrCodeNotFound, Path: path, Message: err.Error(), Err: err}
			}
			doc, err := Parse(path, data)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// WriteAll asserts the documents into the store in one transaction, in
// order, so term ids do not depend on parse timing.
func WriteAll(ctx context.Context, s *store.Store, docs []*Document) (Stats, error) {
	stats := Stats{Files: len(docs)}
	tx, err := s.Begin(ctx)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	for _, doc := range docs {
		n, err := doc.Write(ctx, tx.Queries)
		if err != nil {
			return stats, err
		}
		stats.Triples += n
	}
	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("load ontology: %w", err)
	}
	return stats, nil
}

// Load expands the patterns, parses every file and writes them into s.
func Load(ctx context.Context, s *store.Store, patterns []string) (Stats, error) {
	paths, err := Expand(patterns)
	if err != nil {
		return Stats{}, err
	}
	docs, err := ReadAll(ctx, paths)
	if err != nil {
		return Stats{}, err
	}
	return WriteAll(ctx, s, docs)
}

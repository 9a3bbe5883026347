// Package testutil provides fixtures shared by the package tests: a fresh
// fact store per test and small YAML ontologies loaded into it.
package testutil

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/ontology"
	"github.com/roach88/subsume/internal/store"
)

// Base is the namespace of fixture ontologies that declare none.
const Base = "http://example.org/test#"

// OpenStore opens an empty store in the test's temp directory and closes
// it when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "facts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// LoadYAML parses src as an ontology document and writes it into s.
// A document without a base gets Base.
func LoadYAML(t testing.TB, s *store.Store, src string) ontology.Stats {
	t.Helper()
	doc, err := ontology.ParseYAML("fixture.yaml", []byte(src))
	require.NoError(t, err)
	if doc.Base == "" {
		doc.Base = Base
	}
	stats, err := ontology.WriteAll(context.Background(), s, []*ontology.Document{doc})
	require.NoError(t, err)
	return stats
}

// Term returns the id of a fixture name. Well-known short names such as
// Nothing resolve to their fixed ids.
func Term(t testing.TB, s *store.Store, name string) ir.Term {
	t.Helper()
	if id, ok := ir.LookupShort(name); ok {
		return id
	}
	id, err := s.Abbreviate(context.Background(), ir.QualifyName(Base, name))
	require.NoError(t, err)
	return id
}

// Names maps terms back to their local names, sorted.
func Names(t testing.TB, s *store.Store, terms []ir.Term) []string {
	t.Helper()
	out := make([]string, 0, len(terms))
	for _, id := range terms {
		if _, ok := ir.IRIOf(id); ok {
			out = append(out, ir.ShortName(id))
			continue
		}
		iri, err := s.Unabbreviate(context.Background(), id)
		require.NoError(t, err)
		out = append(out, ir.LocalName(iri))
	}
	slices.Sort(out)
	return out
}

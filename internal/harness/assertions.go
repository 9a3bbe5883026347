package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/subsume/internal/engine"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

// checker evaluates the expectations of one scenario against a result.
type checker struct {
	ctx    context.Context
	q      *store.Queries
	base   string
	res    *engine.Result
	report *Report
}

func (c *checker) check(e Expect) error {
	for _, pair := range e.Entails {
		sub, sup, err := c.pair(pair)
		if err != nil {
			return err
		}
		if !slices.Contains(c.res.Ancestors[sub], sup) {
			c.report.fail("entails: %s is not a %s", pair[0], pair[1])
		}
	}
	for _, pair := range e.NotEntails {
		sub, sup, err := c.pair(pair)
		if err != nil {
			return err
		}
		if slices.Contains(c.res.Ancestors[sub], sup) {
			c.report.fail("not_entails: %s is a %s", pair[0], pair[1])
		}
	}
	if err := c.exact("parents", e.Parents, c.res.Parents); err != nil {
		return err
	}
	if err := c.exact("equivalents", e.Equivalents, c.res.Equivalents); err != nil {
		return err
	}
	for _, name := range e.Concrete {
		t, err := resolve(c.ctx, c.q, c.base, name)
		if err != nil {
			return err
		}
		if !slices.Contains(c.res.Concrete, t) {
			c.report.fail("concrete: %s is not concrete", name)
		}
	}
	return nil
}

func (c *checker) pair(pair []string) (ir.Term, ir.Term, error) {
	sub, err := resolve(c.ctx, c.q, c.base, pair[0])
	if err != nil {
		return 0, 0, err
	}
	sup, err := resolve(c.ctx, c.q, c.base, pair[1])
	if err != nil {
		return 0, 0, err
	}
	return sub, sup, nil
}

// exact compares the named entries of want with got, entity by entity in
// name order.
func (c *checker) exact(label string, want map[string][]string, got map[ir.Term][]ir.Term) error {
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t, err := resolve(c.ctx, c.q, c.base, name)
		if err != nil {
			return err
		}
		gotNames, err := c.names(got[t])
		if err != nil {
			return err
		}
		wantNames := slices.Clone(want[name])
		sort.Strings(wantNames)
		if !slices.Equal(wantNames, gotNames) {
			c.report.fail("%s of %s: want %v, got %v", label, name, wantNames, gotNames)
		}
	}
	return nil
}

// names renders terms as sorted local names.
func (c *checker) names(terms []ir.Term) ([]string, error) {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := ir.IRIOf(t); ok {
			out = append(out, ir.ShortName(t))
			continue
		}
		iri, err := c.q.Unabbreviate(c.ctx, t)
		if err != nil {
			return nil, fmt.Errorf("name of %d: %w", t, err)
		}
		out = append(out, ir.LocalName(iri))
	}
	sort.Strings(out)
	return out, nil
}

package ontology

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

// position is the kind of entity a name stands for where it is used.
type position int

const (
	posClass position = iota
	posProperty
	posIndividual
)

var kindOfPosition = map[position]ir.Term{
	posClass:      ir.Class,
	posProperty:   ir.ObjectProperty,
	posIndividual: ir.NamedIndividual,
}

var listPredicate = map[string]ir.Term{
	"and": ir.IntersectionOf,
	"or":  ir.UnionOf,
	"not": ir.ComplementOf,
}

var restrictionPredicate = map[string]ir.Term{
	"some":  ir.Some,
	"only":  ir.Only,
	"value": ir.Value,
}

// writer turns one document into objs triples.
type writer struct {
	q     *store.Queries
	doc   *Document
	terms map[string]ir.Term
	kinds map[ir.Term]ir.Term
	n     int
}

// Write asserts the document's facts into q and returns the number of
// triples written.
func (d *Document) Write(ctx context.Context, q *store.Queries) (int, error) {
	w := &writer{q: q, doc: d, terms: map[string]ir.Term{}, kinds: map[ir.Term]ir.Term{}}
	if err := w.write(ctx); err != nil {
		return w.n, withPath(d.Name, ErrCodeWrite, err)
	}
	return w.n, nil
}

func (w *writer) write(ctx context.Context) error {
	declared := []struct {
		names []string
		kind  ir.Term
	}{
		{w.doc.Classes, ir.Class},
		{w.doc.ObjectProperties, ir.ObjectProperty},
		{w.doc.DataProperties, ir.DataProperty},
		{w.doc.Individuals, ir.NamedIndividual},
	}
	for _, d := range declared {
		for _, name := range d.names {
			t, err := w.resolve(ctx, name)
			if err != nil {
				return err
			}
			if t >= ir.FirstUserTerm {
				w.kinds[t] = d.kind
			}
		}
	}

	for _, ax := range w.doc.Axioms {
		if err := w.axiom(ctx, ax); err != nil {
			return &LoadError{Code: ErrCodeSchema, Line: ax.Line, Message: err.Error(), Err: err}
		}
	}
	for _, group := range w.doc.Disjoint {
		if err := w.disjoint(ctx, group); err != nil {
			return err
		}
	}

	typed := make([]ir.Term, 0, len(w.kinds))
	for t := range w.kinds {
		typed = append(typed, t)
	}
	sort.Slice(typed, func(i, j int) bool { return typed[i] < typed[j] })
	for _, t := range typed {
		if err := w.triple(ctx, t, ir.Type, w.kinds[t]); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) triple(ctx context.Context, s, p, o ir.Term) error {
	if err := w.q.AddTriple(ctx, s, p, o); err != nil {
		return err
	}
	w.n++
	return nil
}

// resolve maps a name to its term. Well-known short names such as Thing
// resolve to their fixed terms.
func (w *writer) resolve(ctx context.Context, name string) (ir.Term, error) {
	if t, ok := w.terms[name]; ok {
		return t, nil
	}
	t, ok := ir.LookupShort(name)
	if !ok {
		var err error
		t, err = w.q.Abbreviate(ctx, ir.QualifyName(w.doc.Base, name))
		if err != nil {
			return 0, err
		}
	}
	w.terms[name] = t
	return t, nil
}

// imply records the kind a use implies, unless the entity has one.
func (w *writer) imply(t ir.Term, pos position) {
	if t < ir.FirstUserTerm {
		return
	}
	if _, ok := w.kinds[t]; !ok {
		w.kinds[t] = kindOfPosition[pos]
	}
}

// expr writes the triples of an expression and returns its term.
func (w *writer) expr(ctx context.Context, e Expr, pos position) (ir.Term, error) {
	if e.IsName() {
		t, err := w.resolve(ctx, e.Name)
		if err != nil {
			return 0, err
		}
		w.imply(t, pos)
		return t, nil
	}

	c, err := w.q.FreshBlank(ctx)
	if err != nil {
		return 0, err
	}
	switch e.Op {
	case "and", "or", "not":
		for _, a := range e.Args {
			m, err := w.expr(ctx, a, posClass)
			if err != nil {
				return 0, err
			}
			if err := w.triple(ctx, c, listPredicate[e.Op], m); err != nil {
				return 0, err
			}
		}
	case "inverse":
		p, err := w.expr(ctx, e.Args[0], posProperty)
		if err != nil {
			return 0, err
		}
		if err := w.triple(ctx, c, ir.InverseOf, p); err != nil {
			return 0, err
		}
	case "some", "only", "value", "exactly":
		p, err := w.expr(ctx, e.Args[0], posProperty)
		if err != nil {
			return 0, err
		}
		valuePos := posClass
		if e.Op == "value" {
			valuePos = posIndividual
		}
		v, err := w.expr(ctx, e.Args[1], valuePos)
		if err != nil {
			return 0, err
		}
		if err := w.triple(ctx, c, ir.OnProperty, p); err != nil {
			return 0, err
		}
		if e.Op == "exactly" {
			if err := w.triple(ctx, c, ir.Exactly, ir.Term(e.Card)); err != nil {
				return 0, err
			}
			if err := w.triple(ctx, c, ir.OnClass, v); err != nil {
				return 0, err
			}
			break
		}
		if err := w.triple(ctx, c, restrictionPredicate[e.Op], v); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unknown operator %q", e.Op)
	}
	return c, nil
}

// axiomPositions gives the subject and object positions of the built-in
// predicates. Any other predicate is a property assertion between two
// individuals.
var axiomPositions = map[ir.Term][2]position{
	ir.SubclassOf:           {posClass, posClass},
	ir.EquivalentClass:      {posClass, posClass},
	ir.DisjointWith:         {posClass, posClass},
	ir.Type:                 {posIndividual, posClass},
	ir.SubpropertyOf:        {posProperty, posProperty},
	ir.EquivalentProperty:   {posProperty, posProperty},
	ir.EquivalentIndividual: {posIndividual, posIndividual},
	ir.Domain:               {posProperty, posClass},
	ir.Range:                {posProperty, posClass},
}

func (w *writer) axiom(ctx context.Context, ax Axiom) error {
	p, err := w.resolve(ctx, ax.Predicate)
	if err != nil {
		return err
	}
	pos, builtin := axiomPositions[p]
	if !builtin {
		if p < ir.FirstUserTerm {
			return fmt.Errorf("%s cannot be used as an axiom predicate", ax.Predicate)
		}
		w.imply(p, posProperty)
		pos = [2]position{posIndividual, posIndividual}
	}
	if pos[0] != posClass && !ax.Subject.IsName() {
		return fmt.Errorf("subject of %s must be a name, got %s", ax.Predicate, ax.Subject)
	}

	s, err := w.expr(ctx, ax.Subject, pos[0])
	if err != nil {
		return err
	}
	o, err := w.expr(ctx, ax.Object, pos[1])
	if err != nil {
		return err
	}
	return w.triple(ctx, s, p, o)
}

// disjoint writes a group of pairwise disjoint classes. Two classes are
// written as one disjoint_with fact.
func (w *writer) disjoint(ctx context.Context, group []string) error {
	if len(group) < 2 {
		return &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("disjointness group %v needs two classes", group)}
	}
	members := make([]ir.Term, len(group))
	for i, name := range group {
		t, err := w.expr(ctx, Expr{Name: name}, posClass)
		if err != nil {
			return err
		}
		members[i] = t
	}
	if len(members) == 2 {
		return w.triple(ctx, members[0], ir.DisjointWith, members[1])
	}
	g, err := w.q.FreshBlank(ctx)
	if err != nil {
		return err
	}
	if err := w.triple(ctx, g, ir.Type, ir.AllDisjointClasses); err != nil {
		return err
	}
	for _, m := range members {
		if err := w.triple(ctx, g, ir.Members, m); err != nil {
			return err
		}
	}
	return nil
}

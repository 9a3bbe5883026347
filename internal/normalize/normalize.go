package normalize

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

// Events counted by the normalizer. They feed the construct metrics.
const (
	EventAndNothing      = "and_with_nothing"
	EventOrNothing       = "or_with_nothing"
	EventOrThing         = "or_with_thing"
	EventAndSubsumed     = "and_member_subsumed"
	EventOrSubsumed      = "or_member_subsumed"
	EventAbsorbed        = "absorbed_by_sibling"
	EventEmptyAnd        = "empty_and"
	EventEmptyOr         = "empty_or"
	EventSingleElement   = "single_element"
	EventCreated         = "created"
	EventPromoted        = "promoted_intermediate"
	EventEquivalentMerge = "equivalent_merge"
	EventDuplicateMerge  = "duplicate_merge"
)

// Normalizer resolves list constructs against the run tables of one
// transaction.
type Normalizer struct {
	q       *store.Queries
	enc     map[ir.ListOp]compiler.ListEncodings
	cache   *Cache
	linked  map[ir.ListOp]*Decomposer
	added   map[*ir.Table]int64
	events  map[string]int
	logger  *slog.Logger
	onlySet map[ir.Term]bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

// WithCache shares a cache between normalizers of the same run.
func WithCache(c *Cache) Option {
	return func(n *Normalizer) { n.cache = c }
}

// New returns a normalizer over q. enc lists the encodings the rule set
// declares per operator; operators without an entry are stored flat.
func New(q *store.Queries, enc map[ir.ListOp]compiler.ListEncodings, opts ...Option) *Normalizer {
	n := &Normalizer{
		q:       q,
		enc:     enc,
		linked:  map[ir.ListOp]*Decomposer{},
		added:   map[*ir.Table]int64{},
		events:  map[string]int{},
		logger:  slog.Default(),
		onlySet: map[ir.Term]bool{},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.cache == nil {
		n.cache = NewCache()
	}
	return n
}

// Cache returns the run cache.
func (n *Normalizer) Cache() *Cache { return n.cache }

// Events returns how often each simplification fired.
func (n *Normalizer) Events() map[string]int {
	out := make(map[string]int, len(n.events))
	for k, v := range n.events {
		out[k] = v
	}
	return out
}

// TakeAdded returns the rows inserted per table since the last call and
// resets the counts.
func (n *Normalizer) TakeAdded() map[*ir.Table]int64 {
	out := n.added
	n.added = map[*ir.Table]int64{}
	return out
}

func (n *Normalizer) count(event string) { n.events[event]++ }

func (n *Normalizer) db() store.DBTX { return n.q.DB() }

// insert runs an INSERT OR IGNORE into t and records the inserted rows.
func (n *Normalizer) insert(ctx context.Context, t *ir.Table, args ...any) error {
	res, err := n.db().ExecContext(ctx, insertSQL(t), args...)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t, err)
	}
	n.added[t] += rows
	return nil
}

func insertSQL(t *ir.Table) string {
	marks := "?"
	for range t.Columns[1:] {
		marks += ",?"
	}
	cols := t.Columns[0]
	for _, c := range t.Columns[1:] {
		cols += "," + c
	}
	return "INSERT OR IGNORE INTO " + t.Name + " (" + cols + ") VALUES (" + marks + ")"
}

// exists runs a "SELECT 1 ... LIMIT 1" style query.
func (n *Normalizer) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := n.db().QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// lookup runs a query returning one term, or 0 when there is no row.
func (n *Normalizer) lookup(ctx context.Context, query string, args ...any) (ir.Term, error) {
	var t int64
	err := n.db().QueryRowContext(ctx, query, args...).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ir.Term(t), nil
}

func (n *Normalizer) isA(ctx context.Context, s, o ir.Term) (bool, error) {
	return n.exists(ctx, `SELECT 1 FROM is_a WHERE s=? AND o=? LIMIT 1`, int64(s), int64(o))
}

func (n *Normalizer) hasFlat(ctx context.Context, op ir.ListOp, s ir.Term) (bool, error) {
	return n.exists(ctx, `SELECT 1 FROM `+ir.ListTable(ir.Flat, op).Name+` WHERE s=? LIMIT 1`, int64(s))
}

// classLike lists the operators whose constructs are classes.
func classLike(op ir.ListOp) bool {
	return op == ir.ListAnd || op == ir.ListOr || op == ir.ListNot
}

// Add returns the canonical construct for op over members, creating it
// when no equivalent construct exists. The zero term means the list
// normalizes to nothing (an empty disjointness group, for instance) and
// the caller should drop the conclusion.
func (n *Normalizer) Add(ctx context.Context, op ir.ListOp, members []ir.Term) (ir.Term, error) {
	if op == ir.ListAndOr || op == ir.ListNone {
		return 0, fmt.Errorf("normalize: cannot build %v lists", op)
	}
	if t, ok := n.cache.Get(op, members); ok {
		return t, nil
	}
	t, err := n.add(ctx, op, members)
	if err != nil {
		return 0, fmt.Errorf("normalize %v %v: %w", op, members, err)
	}
	n.cache.put(op, members, t)
	return t, nil
}

func (n *Normalizer) add(ctx context.Context, op ir.ListOp, members []ir.Term) (ir.Term, error) {
	elements := uniqueSorted(members)
	var extra map[ir.Term][]ir.Term

	switch op {
	case ir.ListAnd, ir.ListOr:
		var short ir.Term
		elements, short = n.simplify(op, elements)
		if short != 0 {
			return short, nil
		}
		var err error
		if op == ir.ListAnd {
			elements, err = n.dropSubsumedAnd(ctx, elements)
		} else {
			extra, elements, err = n.dropSubsumedOr(ctx, elements)
		}
		if err != nil {
			return 0, err
		}
		if elements, err = n.absorb(ctx, op, elements); err != nil {
			return 0, err
		}
	case ir.ListNot:
		if len(elements) == 1 {
			switch elements[0] {
			case ir.Thing:
				return ir.Nothing, nil
			case ir.Nothing:
				return ir.Thing, nil
			}
		}
	}

	enc := n.enc[op]
	switch {
	case len(elements) == 0:
		switch op {
		case ir.ListAnd:
			n.count(EventEmptyAnd)
			return ir.Thing, nil
		case ir.ListOr:
			n.count(EventEmptyOr)
			return ir.Nothing, nil
		}
		return 0, nil
	case len(elements) == 1 && !enc.SingleElement:
		s := elements[0]
		if s.IsConstruct() && classLike(op) {
			if err := n.ensureClass(ctx, s); err != nil {
				return 0, err
			}
		}
		n.count(EventSingleElement)
		return s, nil
	}

	s, err := n.find(ctx, op, elements)
	if err != nil || s != 0 {
		return s, err
	}

	linkedOK := false
	if enc.Linked && len(elements) == 2 {
		s, err = n.lookup(ctx, `SELECT s FROM `+ir.ListTable(ir.Linked, op).Name+` WHERE o1=? AND o2=? LIMIT 1`,
			int64(elements[0]), int64(elements[1]))
		if err != nil {
			return 0, err
		}
		if s != 0 {
			full, err := n.hasFlat(ctx, op, s)
			if err != nil {
				return 0, err
			}
			if full {
				return s, nil
			}
			linkedOK = true
		}
	}

	switch {
	case enc.Linked && !linkedOK:
		d, err := n.decomposer(ctx, op)
		if err != nil {
			return 0, err
		}
		if s, err = d.Add(ctx, 0, elements); err != nil {
			return 0, err
		}
		full, err := n.hasFlat(ctx, op, s)
		if err != nil {
			return 0, err
		}
		if full {
			return s, nil
		}
	case s == 0:
		if s, err = n.q.FreshBlank(ctx); err != nil {
			return 0, err
		}
	}

	if err := n.create(ctx, op, s, elements); err != nil {
		return 0, err
	}
	if op == ir.ListOr {
		if err := n.promote(ctx, elements, extra); err != nil {
			return 0, err
		}
	}
	n.logger.Debug("construct created", "op", op.String(), "s", int64(s), "members", Key(elements))
	return s, nil
}

// simplify applies the Thing/Nothing identities. A non-zero second result
// is the whole list's value.
func (n *Normalizer) simplify(op ir.ListOp, elements []ir.Term) ([]ir.Term, ir.Term) {
	if op == ir.ListAnd {
		if slices.Contains(elements, ir.Nothing) {
			n.count(EventAndNothing)
			return nil, ir.Nothing
		}
		return slices.DeleteFunc(elements, func(t ir.Term) bool { return t == ir.Thing }), 0
	}
	if slices.Contains(elements, ir.Thing) {
		n.count(EventOrThing)
		return nil, ir.Thing
	}
	if slices.Contains(elements, ir.Nothing) {
		n.count(EventOrNothing)
		elements = slices.DeleteFunc(elements, func(t ir.Term) bool { return t == ir.Nothing })
	}
	return elements, 0
}

// dropSubsumedAnd removes every member that another member is a subclass of.
func (n *Normalizer) dropSubsumedAnd(ctx context.Context, elements []ir.Term) ([]ir.Term, error) {
	removed := map[ir.Term]bool{}
	for _, e1 := range elements {
		for _, e2 := range elements {
			if e1 == e2 || removed[e1] || removed[e2] {
				continue
			}
			ok, err := n.isA(ctx, e1, e2)
			if err != nil {
				return nil, err
			}
			if ok {
				removed[e2] = true
				n.count(EventAndSubsumed)
				break
			}
		}
	}
	return slices.DeleteFunc(elements, func(t ir.Term) bool { return removed[t] }), nil
}

// dropSubsumedOr removes every member that is a subclass of another
// member. Members that are intermediate nodes of a conjunction tree are
// compared through the leaves of their subtree.
func (n *Normalizer) dropSubsumedOr(ctx context.Context, elements []ir.Term) (map[ir.Term][]ir.Term, []ir.Term, error) {
	extra := make(map[ir.Term][]ir.Term, len(elements))
	for _, e := range elements {
		leaves, err := n.extraIsA(ctx, e)
		if err != nil {
			return nil, nil, err
		}
		extra[e] = leaves
	}

	removed := map[ir.Term]bool{}
	for _, e1 := range elements {
		for _, e2 := range elements {
			if e1 == e2 || removed[e1] || removed[e2] {
				continue
			}
			ok, err := n.subsumedBy(ctx, e1, e2, extra[e1], extra[e2])
			if err != nil {
				return nil, nil, err
			}
			if ok {
				removed[e1] = true
				n.count(EventOrSubsumed)
				break
			}
		}
	}
	return extra, slices.DeleteFunc(elements, func(t ir.Term) bool { return removed[t] }), nil
}

// subsumedBy reports whether e1 is a subclass of e2, seeing through the
// conjunction leaves x1 and x2 of intermediate nodes.
func (n *Normalizer) subsumedBy(ctx context.Context, e1, e2 ir.Term, x1, x2 []ir.Term) (bool, error) {
	if slices.Contains(x1, e2) {
		return true, nil
	}
	ok, err := n.isA(ctx, e1, e2)
	if err != nil || ok {
		return ok, err
	}
	switch {
	case len(x1) > 0 && len(x2) == 0:
		for _, a := range x1 {
			if ok, err := n.isA(ctx, a, e2); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case len(x2) > 0 && len(x1) == 0:
		for _, b := range x2 {
			if ok, err := n.isA(ctx, e1, b); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case len(x1) > 0 && len(x2) > 0:
		for _, b := range x2 {
			found := false
			for _, a := range x1 {
				ok, err := n.isA(ctx, a, b)
				if err != nil {
					return false, err
				}
				if ok {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

// extraIsA returns the conjunction leaves below e when e is an
// intermediate node of an and-tree (a linked pair without flat rows), and
// nil otherwise.
func (n *Normalizer) extraIsA(ctx context.Context, e ir.Term) ([]ir.Term, error) {
	o1, o2, ok, err := n.linkedPair(ctx, ir.ListAnd, e)
	if err != nil || !ok {
		return nil, err
	}
	full, err := n.hasFlat(ctx, ir.ListAnd, e)
	if err != nil || full {
		return nil, err
	}
	var out []ir.Term
	for _, child := range []ir.Term{o1, o2} {
		sub, err := n.extraIsA(ctx, child)
		if err != nil {
			return nil, err
		}
		if len(sub) > 0 {
			out = append(out, sub...)
		} else {
			out = append(out, child)
		}
	}
	return out, nil
}

func (n *Normalizer) linkedPair(ctx context.Context, op ir.ListOp, s ir.Term) (ir.Term, ir.Term, bool, error) {
	var o1, o2 int64
	err := n.db().QueryRowContext(ctx,
		`SELECT o1, o2 FROM `+ir.ListTable(ir.Linked, op).Name+` WHERE s=? LIMIT 1`, int64(s)).Scan(&o1, &o2)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return ir.Term(o1), ir.Term(o2), true, nil
}

// absorb drops a member that a sibling list already contains:
// A and (A and B) is A and B.
func (n *Normalizer) absorb(ctx context.Context, op ir.ListOp, elements []ir.Term) ([]ir.Term, error) {
	flat := ir.ListTable(ir.Flat, op).Name
	removed := map[ir.Term]bool{}
	for _, e1 := range elements {
		for _, e2 := range elements {
			if e1 == e2 {
				continue
			}
			ok, err := n.exists(ctx, `SELECT 1 FROM `+flat+` WHERE s=? AND o=? LIMIT 1`, int64(e1), int64(e2))
			if err != nil {
				return nil, err
			}
			if ok {
				removed[e2] = true
				n.count(EventAbsorbed)
				break
			}
		}
	}
	return slices.DeleteFunc(elements, func(t ir.Term) bool { return removed[t] }), nil
}

// ensureClass types a construct standing alone as a class unless it is
// already known to be one.
func (n *Normalizer) ensureClass(ctx context.Context, s ir.Term) error {
	ok, err := n.isA(ctx, s, ir.Thing)
	if err != nil || ok {
		return err
	}
	return n.insert(ctx, ir.TableTypes, int64(s), int64(ir.Class))
}

// find looks for an existing construct by key, or by its only member for
// single-element lists.
func (n *Normalizer) find(ctx context.Context, op ir.ListOp, elements []ir.Term) (ir.Term, error) {
	enc := n.enc[op]
	switch {
	case enc.Key:
		return n.lookup(ctx, `SELECT s FROM `+ir.ListTable(ir.Key, op).Name+` WHERE k=? LIMIT 1`, Key(elements))
	case enc.SingleElement && len(elements) == 1:
		return n.lookup(ctx, `SELECT s FROM `+ir.ListTable(ir.Flat, op).Name+` WHERE o=? LIMIT 1`, int64(elements[0]))
	}
	return 0, nil
}

// create writes the flat rows, the key row and the class facts of s.
func (n *Normalizer) create(ctx context.Context, op ir.ListOp, s ir.Term, elements []ir.Term) error {
	flat := ir.ListTable(ir.Flat, op)
	for _, e := range elements {
		if err := n.insert(ctx, flat, int64(s), int64(e)); err != nil {
			return err
		}
	}
	if n.enc[op].Key {
		if err := n.insert(ctx, ir.ListTable(ir.Key, op), int64(s), Key(elements)); err != nil {
			return err
		}
	}
	if classLike(op) {
		if err := n.insert(ctx, ir.TableTypes, int64(s), int64(ir.Class)); err != nil {
			return err
		}
		if err := n.insert(ctx, ir.TableInferAncestors, int64(s)); err != nil {
			return err
		}
	}
	n.count(EventCreated)
	return nil
}

// promote turns intermediate and-tree nodes that became union members into
// full conjunctions, so subsumption is computed for them.
func (n *Normalizer) promote(ctx context.Context, elements []ir.Term, extra map[ir.Term][]ir.Term) error {
	for _, e := range elements {
		if len(extra[e]) == 0 {
			continue
		}
		n.count(EventPromoted)
		if err := n.insert(ctx, ir.TableIsA, int64(e), int64(e), 3); err != nil {
			return err
		}
		if err := n.insert(ctx, ir.TableIsA, int64(e), int64(ir.Thing), 2); err != nil {
			return err
		}
		leaves, err := n.leaves(ctx, e)
		if err != nil {
			return err
		}
		for _, leaf := range leaves {
			if err := n.insert(ctx, ir.ListTable(ir.Flat, ir.ListAnd), int64(e), int64(leaf)); err != nil {
				return err
			}
		}
	}
	return nil
}

// leaves walks the and-tree below e down to nodes that are not pairs.
func (n *Normalizer) leaves(ctx context.Context, e ir.Term) ([]ir.Term, error) {
	o1, o2, ok, err := n.linkedPair(ctx, ir.ListAnd, e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []ir.Term{e}, nil
	}
	left, err := n.leaves(ctx, o1)
	if err != nil {
		return nil, err
	}
	right, err := n.leaves(ctx, o2)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

// decomposer returns the linked-list builder of op, creating an empty one
// when the rule set never ran CreateLinkedList for it.
func (n *Normalizer) decomposer(ctx context.Context, op ir.ListOp) (*Decomposer, error) {
	if d, ok := n.linked[op]; ok {
		return d, nil
	}
	d := newDecomposer(n, op)
	n.linked[op] = d
	return d, nil
}

// isOnly reports whether s is a universal restriction.
func (n *Normalizer) isOnly(ctx context.Context, s ir.Term) (bool, error) {
	if r, ok := n.onlySet[s]; ok {
		return r, nil
	}
	r, err := n.exists(ctx, `SELECT 1 FROM only WHERE s=? LIMIT 1`, int64(s))
	if err != nil {
		return false, err
	}
	n.onlySet[s] = r
	return r, nil
}

package normalize

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/subsume/internal/ir"
)

// definitionPredicates are the objs predicates that define constructs.
var definitionPredicates = []ir.Term{
	ir.Some, ir.Only, ir.Value, ir.Exactly, ir.OnProperty, ir.OnClass,
	ir.IntersectionOf, ir.UnionOf, ir.ComplementOf, ir.InverseOf, ir.Members,
}

// classPredicates define constructs that are classes.
var classPredicates = []ir.Term{
	ir.Some, ir.Only, ir.Value, ir.Exactly, ir.IntersectionOf, ir.UnionOf, ir.ComplementOf,
}

func termList(ts []ir.Term) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = strconv.FormatInt(int64(t), 10)
	}
	return strings.Join(parts, ",")
}

// Constructs loads the constructs defined in objs into the run tables. It
// is the NormalizeConstructs builtin.
//
// Before any list is materialized, constructs declared equivalent to a
// named entity are renamed to it, single-member conjunctions and unions
// are replaced by their member, and structurally equal constructs are
// merged into the one with the largest id. Pairwise disjoint_with facts
// become two-member disjointness groups.
func (n *Normalizer) Constructs(ctx context.Context) (int64, error) {
	stmts := []string{
		`DROP TABLE IF EXISTS temp.construct_defs`,
		`CREATE TEMP TABLE construct_defs (s INTEGER NOT NULL, p INTEGER NOT NULL, o INTEGER NOT NULL, UNIQUE (s, p, o))`,
		`CREATE INDEX temp.construct_defs_o ON construct_defs (o)`,
		`INSERT OR IGNORE INTO construct_defs SELECT s, p, o FROM objs WHERE s < 0 AND p IN (` + termList(definitionPredicates) + `)`,
	}
	for _, stmt := range stmts {
		if _, err := n.db().ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("stage constructs: %w", err)
		}
	}
	defer n.db().ExecContext(context.WithoutCancel(ctx), `DROP TABLE IF EXISTS temp.construct_defs`)

	if err := n.unwrapSingletons(ctx); err != nil {
		return 0, err
	}
	if err := n.mergeEquivalents(ctx); err != nil {
		return 0, err
	}
	if err := n.mergeDuplicates(ctx); err != nil {
		return 0, err
	}

	before := total(n.added)
	if err := n.materialize(ctx); err != nil {
		return 0, err
	}
	if err := n.disjointPairs(ctx); err != nil {
		return 0, err
	}
	return total(n.added) - before, nil
}

func total(m map[*ir.Table]int64) int64 {
	var sum int64
	for _, v := range m {
		sum += v
	}
	return sum
}

// rename moves every reference to from onto to.
func (n *Normalizer) rename(ctx context.Context, from, to ir.Term) error {
	stmts := []string{
		`DELETE FROM construct_defs WHERE s=?2`,
		`UPDATE OR REPLACE construct_defs SET o=?1 WHERE o=?2`,
		`UPDATE OR REPLACE is_a SET s=?1 WHERE s=?2`,
		`UPDATE OR REPLACE is_a SET o=?1 WHERE o=?2`,
		`DELETE FROM types WHERE s=?2`,
	}
	for _, stmt := range stmts {
		if _, err := n.db().ExecContext(ctx, stmt, int64(to), int64(from)); err != nil {
			return fmt.Errorf("rename %d to %d: %w", from, to, err)
		}
	}
	return nil
}

// equate records a and b as equivalent named entities.
func (n *Normalizer) equate(ctx context.Context, a, b ir.Term) error {
	if err := n.insert(ctx, ir.TableIsA, int64(a), int64(b), 1); err != nil {
		return err
	}
	return n.insert(ctx, ir.TableIsA, int64(b), int64(a), 1)
}

func (n *Normalizer) pairs(ctx context.Context, query string, args ...any) ([][2]ir.Term, error) {
	rows, err := n.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]ir.Term
	for rows.Next() {
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		out = append(out, [2]ir.Term{ir.Term(a), ir.Term(b)})
	}
	return out, rows.Err()
}

// unwrapSingletons replaces conjunctions and unions of one member by the
// member.
func (n *Normalizer) unwrapSingletons(ctx context.Context) error {
	singles, err := n.pairs(ctx, `SELECT s, MIN(o) FROM construct_defs WHERE p IN (?, ?) GROUP BY s, p HAVING COUNT(*) = 1 ORDER BY s`,
		int64(ir.IntersectionOf), int64(ir.UnionOf))
	if err != nil {
		return fmt.Errorf("find single-member lists: %w", err)
	}
	for _, p := range singles {
		s, m := p[0], p[1]
		n.count(EventSingleElement)
		if s.IsConstruct() {
			if err := n.rename(ctx, s, m); err != nil {
				return err
			}
			continue
		}
		if _, err := n.db().ExecContext(ctx, `DELETE FROM construct_defs WHERE s=?`, int64(s)); err != nil {
			return err
		}
		if err := n.equate(ctx, s, m); err != nil {
			return err
		}
	}
	return nil
}

// mergeEquivalents folds each construct declared equivalent to a named
// entity into that entity. A construct equivalent to several entities
// makes them equivalent to each other.
func (n *Normalizer) mergeEquivalents(ctx context.Context) error {
	ps := termList([]ir.Term{ir.EquivalentClass, ir.EquivalentIndividual})
	equivs, err := n.pairs(ctx, `
SELECT s, o FROM objs WHERE p IN (`+ps+`) AND s > 0 AND o < 0
  UNION ALL
SELECT o, s FROM objs WHERE p IN (`+ps+`) AND o > 0 AND s < 0
ORDER BY 1, 2`)
	if err != nil {
		return fmt.Errorf("find equivalent constructs: %w", err)
	}
	mergedInto := map[ir.Term]ir.Term{}
	for _, p := range equivs {
		named, c := p[0], p[1]
		if target, ok := mergedInto[c]; ok {
			if target != named {
				if err := n.equate(ctx, named, target); err != nil {
					return err
				}
			}
			continue
		}
		mergedInto[c] = named
		n.count(EventEquivalentMerge)
		if err := n.moveDefinition(ctx, c, named); err != nil {
			return err
		}
	}
	return nil
}

// moveDefinition gives the named entity the definition of construct c and
// renames every reference to c.
func (n *Normalizer) moveDefinition(ctx context.Context, c, named ir.Term) error {
	if _, err := n.db().ExecContext(ctx, `UPDATE OR REPLACE construct_defs SET s=? WHERE s=?`, int64(named), int64(c)); err != nil {
		return fmt.Errorf("move definition of %d: %w", c, err)
	}
	return n.rename(ctx, c, named)
}

// mergeDuplicates renames structurally equal constructs to the largest id
// of their group until no two constructs share a definition. Renaming can
// make parents equal, hence the loop.
func (n *Normalizer) mergeDuplicates(ctx context.Context) error {
	for {
		groups, err := n.duplicateGroups(ctx)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			return nil
		}
		for _, g := range groups {
			keep := g[len(g)-1]
			for _, other := range g[:len(g)-1] {
				n.count(EventDuplicateMerge)
				if other.IsConstruct() {
					err = n.rename(ctx, other, keep)
				} else {
					// Named entities are never renamed away.
					if _, err = n.db().ExecContext(ctx, `DELETE FROM construct_defs WHERE s=?`, int64(other)); err == nil {
						err = n.equate(ctx, other, keep)
					}
				}
				if err != nil {
					return err
				}
			}
		}
	}
}

// duplicateGroups returns, per definition shared by several subjects, the
// subjects in ascending order.
func (n *Normalizer) duplicateGroups(ctx context.Context) ([][]ir.Term, error) {
	rows, err := n.db().QueryContext(ctx, `
SELECT s, group_concat(p || ' ' || o, ',' ORDER BY p, o)
FROM construct_defs
GROUP BY s
ORDER BY s`)
	if err != nil {
		return nil, fmt.Errorf("group definitions: %w", err)
	}
	defer rows.Close()

	byDef := map[string][]ir.Term{}
	var defs []string
	for rows.Next() {
		var (
			s   int64
			def string
		)
		if err := rows.Scan(&s, &def); err != nil {
			return nil, err
		}
		if _, seen := byDef[def]; !seen {
			defs = append(defs, def)
		}
		byDef[def] = append(byDef[def], ir.Term(s))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var out [][]ir.Term
	for _, def := range defs {
		if g := byDef[def]; len(g) > 1 {
			slices.Sort(g)
			out = append(out, g)
		}
	}
	return out, nil
}

// materialize fills the restriction, flat list and types tables from the
// merged definitions.
func (n *Normalizer) materialize(ctx context.Context) error {
	type fill struct {
		table *ir.Table
		query string
		args  []any
	}
	restriction := `SELECT d.s, r.o, d.o FROM construct_defs d
JOIN construct_defs r ON r.s = d.s AND r.p = ?
WHERE d.p = ?`
	fills := []fill{
		{ir.TableSome, restriction, []any{int64(ir.OnProperty), int64(ir.Some)}},
		{ir.TableOnly, restriction, []any{int64(ir.OnProperty), int64(ir.Only)}},
		{ir.TableValue, restriction, []any{int64(ir.OnProperty), int64(ir.Value)}},
		{ir.TableExactly, `SELECT d.s, d.o, r.o, COALESCE(c.o, ?) FROM construct_defs d
JOIN construct_defs r ON r.s = d.s AND r.p = ?
LEFT JOIN construct_defs c ON c.s = d.s AND c.p = ?
WHERE d.p = ?`, []any{int64(ir.Thing), int64(ir.OnProperty), int64(ir.OnClass), int64(ir.Exactly)}},
	}
	for _, op := range []ir.ListOp{ir.ListAnd, ir.ListOr, ir.ListNot, ir.ListInverse, ir.ListDisjoint} {
		if !n.enc[op].Flat {
			continue
		}
		fills = append(fills, fill{ir.ListTable(ir.Flat, op),
			`SELECT s, o FROM construct_defs WHERE p = ?`, []any{int64(op.Predicate())}})
	}
	fills = append(fills, fill{ir.TableTypes,
		`SELECT DISTINCT s, ` + strconv.FormatInt(int64(ir.Class), 10) + ` FROM construct_defs WHERE p IN (` + termList(classPredicates) + `)`, nil})

	for _, f := range fills {
		res, err := n.db().ExecContext(ctx, `INSERT OR IGNORE INTO `+f.table.Name+` `+f.query, f.args...)
		if err != nil {
			return fmt.Errorf("fill %s: %w", f.table, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("fill %s: %w", f.table, err)
		}
		n.added[f.table] += rows
	}
	return nil
}

// disjointPairs turns each "a disjoint_with b" into a disjointness group.
func (n *Normalizer) disjointPairs(ctx context.Context) error {
	if !n.enc[ir.ListDisjoint].Flat {
		return nil
	}
	pairs, err := n.pairs(ctx, `SELECT s, o FROM objs WHERE p = ? ORDER BY s, o`, int64(ir.DisjointWith))
	if err != nil {
		return fmt.Errorf("read disjoint pairs: %w", err)
	}
	for _, p := range pairs {
		if _, err := n.Add(ctx, ir.ListDisjoint, []ir.Term{p[0], p[1]}); err != nil {
			return err
		}
	}
	return nil
}

// BuildKeys writes the key row of every flat list of op. It is the
// CreateKeyList builtin.
func (n *Normalizer) BuildKeys(ctx context.Context, op ir.ListOp) (int64, error) {
	key := ir.ListTable(ir.Key, op)
	res, err := n.db().ExecContext(ctx, `INSERT OR IGNORE INTO `+key.Name+` (s, k)
SELECT s, group_concat(o, ',' ORDER BY o) FROM `+ir.ListTable(ir.Flat, op).Name+` GROUP BY s`)
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", key, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	n.added[key] += rows
	return rows, nil
}

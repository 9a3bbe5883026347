package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/queryir"
)

// Statement is the SQL of one rule execution.
//
// Constants are inlined: they are term ids and small integers fixed at
// compile time. The only parameters are watermarks, one per placeholder,
// filled from WatermarkTables in order.
type Statement struct {
	// SQL is the executable statement: INSERT OR IGNORE … SELECT for
	// single-row rules, a plain SELECT otherwise.
	SQL string
	// Select is the SELECT part of SQL, used for debug-mode match counts.
	Select          string
	WatermarkTables []*ir.Table
}

// Params resolves the watermark placeholders against wm.
func (s Statement) Params(wm map[*ir.Table]int64) []any {
	params := make([]any, len(s.WatermarkTables))
	for i, t := range s.WatermarkTables {
		params[i] = wm[t]
	}
	return params
}

// Incremental reports whether the statement reads watermarks.
func (s Statement) Incremental() bool { return len(s.WatermarkTables) > 0 }

// Lower renders the full statement of p, reading every row.
func Lower(p *queryir.Plan) (Statement, error) {
	return lower(p, nil)
}

// LowerIncremental renders the statement of p that only matches tuples
// containing at least one row newer than the watermark of its table.
// Only instances of tables grows reports true are gated; a plan with no
// gated instance lowers to the full statement.
func LowerIncremental(p *queryir.Plan, grows func(*ir.Table) bool) (Statement, error) {
	if grows == nil {
		grows = func(*ir.Table) bool { return true }
	}
	return lower(p, grows)
}

func lower(p *queryir.Plan, grows func(*ir.Table) bool) (Statement, error) {
	if p == nil {
		return Statement{}, fmt.Errorf("cannot lower nil plan")
	}
	if res := queryir.Validate(p); !res.Valid {
		return Statement{}, fmt.Errorf("lower %s: invalid plan: %s", p.Rule.Name, strings.Join(res.Problems, "; "))
	}

	var (
		selects []string
		tables  []*ir.Table
	)
	for _, b := range p.Branches {
		var gated []*queryir.From
		if grows != nil {
			gated = gatedFroms(b, grows)
		}
		for _, g := range gates(gated) {
			selects = append(selects, renderBranch(b, g.clause))
			tables = append(tables, g.tables...)
		}
	}

	sel := strings.Join(selects, "\n  UNION ALL\n")
	stmt := Statement{SQL: sel, Select: sel, WatermarkTables: tables}
	if p.Insert != nil {
		stmt.SQL = "INSERT OR IGNORE INTO " + p.Insert.Name + "\n" + sel
	}
	return stmt, nil
}

// gate is one incremental sub-branch: a WHERE clause over the gated
// instances' rowids plus the tables whose watermarks fill it.
type gate struct {
	clause string
	tables []*ir.Table
}

// gates splits a branch over its gated instances.
//
// With two gated instances the split is new/old, old/new and new/new, so
// each matching tuple is produced by exactly one sub-branch. With one or
// three and more, a single OR of "rowid > ?" disjuncts is used.
func gates(gated []*queryir.From) []gate {
	switch len(gated) {
	case 0:
		return []gate{{}}
	case 2:
		a, b := gated[0], gated[1]
		both := []*ir.Table{a.Table, b.Table}
		return []gate{
			{fmt.Sprintf("%s.rowid>? AND %s.rowid<=?", a.Alias(), b.Alias()), both},
			{fmt.Sprintf("%s.rowid<=? AND %s.rowid>?", a.Alias(), b.Alias()), both},
			{fmt.Sprintf("%s.rowid>? AND %s.rowid>?", a.Alias(), b.Alias()), both},
		}
	}
	parts := make([]string, len(gated))
	tables := make([]*ir.Table, len(gated))
	for i, f := range gated {
		parts[i] = f.Alias() + ".rowid>?"
		tables[i] = f.Table
	}
	if len(parts) == 1 {
		return []gate{{parts[0], tables}}
	}
	return []gate{{"(" + strings.Join(parts, " OR ") + ")", tables}}
}

// gatedFroms returns the instances of b whose new rows can produce new
// tuples.
//
// A list or restriction instance whose subject is an is_a object is not
// gated: the construct exists before any is_a row pointing at it. Neither
// is a list instance joined subject to subject with an earlier instance of
// the same table, since the earlier instance already sees the new list.
func gatedFroms(b *queryir.Branch, grows func(*ir.Table) bool) []*queryir.From {
	rel := queryir.RelationsOf(b)
	var out []*queryir.From
	for _, f := range b.Froms {
		if isView(f.Table) || !grows(f.Table) {
			continue
		}
		s := queryir.ColRef{From: f.ID, Col: "s"}
		if f.Table.IsList() || f.Table.Restriction {
			if subjectOfIsA(b, rel, s) {
				continue
			}
		}
		if f.Table.IsList() && sharesSubjectWithEarlier(b, rel, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func subjectOfIsA(b *queryir.Branch, rel *queryir.Relations, s queryir.ColRef) bool {
	for _, other := range b.Froms {
		if other.Table == ir.TableIsA && other.ID != s.From && rel.Related(s, queryir.ColRef{From: other.ID, Col: "o"}) {
			return true
		}
	}
	return false
}

func sharesSubjectWithEarlier(b *queryir.Branch, rel *queryir.Relations, f *queryir.From) bool {
	for _, other := range b.Froms[:f.ID-1] {
		if other.Table == f.Table && rel.Related(
			queryir.ColRef{From: f.ID, Col: "s"}, queryir.ColRef{From: other.ID, Col: "s"}) {
			return true
		}
	}
	return false
}

func isView(t *ir.Table) bool { return t.List == ir.ListAndOr }

func renderBranch(b *queryir.Branch, gateClause string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, op := range b.Select {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(op.String())
	}

	if len(b.Froms) > 0 {
		sb.WriteString("\nFROM ")
		sb.WriteString(renderFrom(b))
	}

	var preds, notExists []string
	for _, pred := range b.Predicates {
		switch pred := pred.(type) {
		case queryir.ColEq:
			preds = append(preds, pred.Left.String()+"="+pred.Right.String())
		case queryir.ColConst:
			preds = append(preds, pred.Ref.String()+pred.Op+pred.Value.SQL())
		case queryir.ColCompare:
			preds = append(preds, fmt.Sprintf("%s %s %s", pred.Left, pred.Op, pred.Right))
		case queryir.NotExists:
			notExists = append(notExists, fmt.Sprintf(
				"NOT EXISTS (SELECT 1 FROM is_a q WHERE q.s=%s AND q.o=%s)", pred.S, pred.O))
		}
	}

	var clauses []string
	if len(preds) > 0 {
		clauses = append(clauses, strings.Join(preds, " AND "))
	}
	if gateClause != "" {
		clauses = append(clauses, gateClause)
	}
	clauses = append(clauses, notExists...)
	for i, c := range clauses {
		if i == 0 {
			sb.WriteString("\nWHERE ")
		} else {
			sb.WriteString("\nAND   ")
		}
		sb.WriteString(c)
	}
	return sb.String()
}

// renderFrom joins pinned groups internally with CROSS JOIN, which SQLite
// never reorders, and everything else with commas.
func renderFrom(b *queryir.Branch) string {
	groups, pinned := b.JoinOrder()
	parts := make([]string, 0, len(groups))
	for i, g := range groups {
		sep := ", "
		if pinned[i] {
			sep = " CROSS JOIN "
		}
		names := make([]string, len(g.Froms))
		for j, id := range g.Froms {
			f := b.FromByID(id)
			names[j] = f.Table.Name + " " + f.Alias()
		}
		parts = append(parts, strings.Join(names, sep))
	}
	return strings.Join(parts, ", ")
}

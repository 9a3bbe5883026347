package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/subsume/internal/ir"
)

// runViews are read-only unions over run tables.
var runViews = []struct {
	name string
	def  string
}{
	{
		ir.ListTable(ir.Flat, ir.ListAndOr).Name,
		`SELECT s, o FROM flat_lists_and UNION ALL SELECT s, o FROM flat_lists_or`,
	},
	{
		"restriction",
		`SELECT s, prop, value FROM some
		 UNION ALL SELECT s, prop, value FROM only
		 UNION ALL SELECT s, prop, value FROM value
		 UNION ALL SELECT s, prop, value FROM exactly`,
	},
}

// RunTables returns the tables a run creates, views excluded.
func RunTables() []*ir.Table {
	var out []*ir.Table
	for _, t := range ir.AllTables() {
		if t.Base || t.List == ir.ListAndOr {
			continue
		}
		out = append(out, t)
	}
	return out
}

// CreateRunTables creates the empty run tables and views. Existing run
// tables of an earlier run on the same connection are dropped first.
func (q *Queries) CreateRunTables(ctx context.Context) error {
	if err := q.DropRunTables(ctx); err != nil {
		return err
	}
	for _, t := range RunTables() {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			typ := "INTEGER"
			if t.Kind == ir.Key && c == "k" {
				typ = "TEXT"
			}
			cols[i] = c + " " + typ + " NOT NULL"
		}
		stmts := []string{
			fmt.Sprintf("CREATE TEMP TABLE %s (%s)", t.Name, strings.Join(cols, ", ")),
			fmt.Sprintf("CREATE UNIQUE INDEX temp.%s_unique ON %s (%s)", t.Name, t.Name, strings.Join(uniqueColumns(t), ", ")),
		}
		if len(t.Columns) > 1 {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX temp.%s_by_%s ON %s (%s)", t.Name, t.Columns[1], t.Name, t.Columns[1]))
		}
		for _, stmt := range stmts {
			if _, err := q.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create run table %s: %w", t, err)
			}
		}
	}
	for _, v := range runViews {
		if _, err := q.db.ExecContext(ctx, fmt.Sprintf("CREATE TEMP VIEW %s AS %s", v.name, v.def)); err != nil {
			return fmt.Errorf("create view %s: %w", v.name, err)
		}
	}
	return nil
}

// uniqueColumns is the identity of a run table row. An is_a edge is
// unique whatever its level.
func uniqueColumns(t *ir.Table) []string {
	if t == ir.TableIsA {
		return []string{"s", "o"}
	}
	return t.Columns
}

// DropRunTables removes the run tables and views.
func (q *Queries) DropRunTables(ctx context.Context) error {
	for _, v := range runViews {
		if _, err := q.db.ExecContext(ctx, "DROP VIEW IF EXISTS temp."+v.name); err != nil {
			return fmt.Errorf("drop view %s: %w", v.name, err)
		}
	}
	for _, t := range RunTables() {
		if _, err := q.db.ExecContext(ctx, "DROP TABLE IF EXISTS temp."+t.Name); err != nil {
			return fmt.Errorf("drop run table %s: %w", t, err)
		}
	}
	return nil
}

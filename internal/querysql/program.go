package querysql

import (
	"fmt"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/queryir"
)

// CompiledRule is a rule with its plan and both statements. Builtins have
// no plan and empty statements.
type CompiledRule struct {
	Rule        *compiler.Rule
	Plan        *queryir.Plan
	Full        Statement
	Incremental Statement
}

// Program is a rule set lowered to SQL. It is immutable and can be shared
// by runs over different stores.
type Program struct {
	RuleSet *compiler.RuleSet
	Rules   map[string]*CompiledRule
	// Inferrable is the set of tables some rule of the set can grow.
	Inferrable map[*ir.Table]bool
}

// Rule returns the compiled form of the named rule.
func (p *Program) Rule(name string) *CompiledRule { return p.Rules[name] }

// Compile plans and lowers every rule of rs.
func Compile(rs *compiler.RuleSet) (*Program, error) {
	prog := &Program{
		RuleSet:    rs,
		Rules:      make(map[string]*CompiledRule),
		Inferrable: InferrableTables(rs),
	}
	grows := func(t *ir.Table) bool { return prog.Inferrable[t] }

	for _, r := range rs.Rules() {
		cr := &CompiledRule{Rule: r}
		prog.Rules[r.Name] = cr
		if r.IsBuiltin() {
			continue
		}
		plan, err := queryir.Build(r)
		if err != nil {
			return nil, err
		}
		cr.Plan = plan
		if cr.Full, err = Lower(plan); err != nil {
			return nil, err
		}
		if cr.Incremental, err = LowerIncremental(plan, grows); err != nil {
			return nil, err
		}
	}
	return prog, nil
}

// InferrableTables returns the tables the completion rules of rs can
// write, directly or through the normalizer.
//
// Creating a list writes its flat, linked and key tables plus the types,
// is_a and infer_ancestors rows of the new construct. Creating a
// restriction marks it for ancestor inference.
func InferrableTables(rs *compiler.RuleSet) map[*ir.Table]bool {
	out := map[*ir.Table]bool{}
	for _, r := range rs.Rules() {
		if r.IsBuiltin() {
			continue
		}
		for _, p := range r.Creates {
			for _, t := range ir.TablesForPredicate(p) {
				out[t] = true
			}
			if op, ok := ir.ListOpForPredicate(p); ok {
				for _, kind := range []ir.ListKind{ir.Flat, ir.Linked, ir.Key} {
					if t, ok := ir.LookupListTable(kind, op); ok {
						out[t] = true
					}
				}
				out[ir.TableTypes] = true
				out[ir.TableIsA] = true
				out[ir.TableInferAncestors] = true
			}
			if ir.PredicateTable(p).Restriction {
				out[ir.TableInferAncestors] = true
			}
		}
	}
	return out
}

// Explain renders both statements of a rule for display.
func (cr *CompiledRule) Explain() string {
	if cr.Plan == nil {
		return fmt.Sprintf("-- %s: builtin %s\n", cr.Rule.Name, cr.Rule.Builtin.Type)
	}
	s := fmt.Sprintf("-- %s (full)\n%s;\n", cr.Rule.Name, cr.Full.SQL)
	if cr.Incremental.Incremental() {
		s += fmt.Sprintf("-- %s (incremental, watermarks:", cr.Rule.Name)
		for _, t := range cr.Incremental.WatermarkTables {
			s += " " + t.Name
		}
		s += fmt.Sprintf(")\n%s;\n", cr.Incremental.SQL)
	}
	return s
}

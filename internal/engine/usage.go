package engine

import (
	"time"

	"github.com/roach88/subsume/internal/store"
)

// usageReport accumulates per-rule execution statistics over a run.
// Rules are reported in the order they first ran.
type usageReport struct {
	order  []string
	byRule map[string]*store.RuleUsage
}

func newUsageReport() *usageReport {
	return &usageReport{byRule: make(map[string]*store.RuleUsage)}
}

func (u *usageReport) entry(rule string) *store.RuleUsage {
	e, ok := u.byRule[rule]
	if !ok {
		e = &store.RuleUsage{Rule: rule}
		u.byRule[rule] = e
		u.order = append(u.order, rule)
	}
	return e
}

// record adds one execution of rule.
func (u *usageReport) record(rule string, hits, matches int64, d time.Duration) {
	e := u.entry(rule)
	e.Executions++
	e.Hits += hits
	e.Matches += matches
	e.Nanos += d.Nanoseconds()
}

// Report returns a copy of the usage lines.
func (u *usageReport) Report() []store.RuleUsage {
	out := make([]store.RuleUsage, 0, len(u.order))
	for _, name := range u.order {
		out = append(out, *u.byRule[name])
	}
	return out
}


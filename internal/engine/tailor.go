package engine

import (
	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ir"
)

// tailoredStage is a stage restricted to the rules that can fire on the
// current store.
type tailoredStage struct {
	name        string
	preprocess  []*compiler.Rule
	completions []*compiler.Rule
	// dependents maps a predicate to the active completion rules reading it.
	dependents map[ir.Term][]*compiler.Rule
	// pruned names the rules left out, preprocess rules first.
	pruned []string
}

// tailor keeps the rules of stage whose depends are satisfied.
//
// A predicate satisfies a rule when it is present in the store or created
// by another active rule. Activation is monotone, so the active set is
// grown until it stops changing. Builtins have no depends and are always
// kept.
func tailor(stage *compiler.Stage, present map[ir.Term]bool) *tailoredStage {
	rules := stage.Rules()
	active := make(map[*compiler.Rule]bool, len(rules))
	creators := map[ir.Term]map[*compiler.Rule]bool{}

	for changed := true; changed; {
		changed = false
		for _, r := range rules {
			if active[r] {
				continue
			}
			matched := r.DependsMatched(func(p ir.Term) bool {
				if present[p] {
					return true
				}
				for c := range creators[p] {
					if c != r {
						return true
					}
				}
				return false
			})
			if !matched {
				continue
			}
			active[r] = true
			changed = true
			for _, p := range r.Creates {
				if creators[p] == nil {
					creators[p] = map[*compiler.Rule]bool{}
				}
				creators[p][r] = true
			}
		}
	}

	ts := &tailoredStage{name: stage.Name, dependents: map[ir.Term][]*compiler.Rule{}}
	for _, r := range stage.Preprocess {
		if active[r] {
			ts.preprocess = append(ts.preprocess, r)
		} else {
			ts.pruned = append(ts.pruned, r.Name)
		}
	}
	for _, r := range stage.Completions {
		if !active[r] {
			ts.pruned = append(ts.pruned, r.Name)
			continue
		}
		ts.completions = append(ts.completions, r)
		for _, p := range r.AllDepends() {
			ts.dependents[p] = append(ts.dependents[p], r)
		}
	}
	return ts
}

// creates returns every predicate the stage's active rules write.
func (ts *tailoredStage) creates() []ir.Term {
	var out []ir.Term
	for _, r := range append(append([]*compiler.Rule{}, ts.preprocess...), ts.completions...) {
		out = append(out, r.Creates...)
	}
	return out
}

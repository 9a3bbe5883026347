package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// CycleWarning describes a group of rules that can trigger each other.
//
// Cycles are expected in a fixpoint rule set (transitivity is one), so they
// are reported as information. A RECURSIVE rule that cannot trigger itself
// is reported as a warning: every execution pays for a pass that cannot
// add anything.
type CycleWarning struct {
	Path    []string `json:"path"`    // ["rule-a", "rule-b", "rule-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles reports the cycles of the rule graph of rs.
//
// The algorithm:
//  1. An edge runs from rule A to rule B when B depends on a predicate A creates
//  2. Tarjan's algorithm finds the strongly connected components
//  3. Each SCC with more than one rule, or with a self-loop, is reported
//
// Only rules of the same stage are connected. Builtins have no edges.
// Warnings for RECURSIVE rules without a self-loop follow the cycles of
// their stage.
func AnalyzeCycles(rs *RuleSet) []CycleWarning {
	warnings := []CycleWarning{}
	if rs == nil {
		return warnings
	}
	recursive := map[string]bool{}
	for _, r := range rs.order {
		recursive[r.Name] = r.Recursive
	}
	for _, stage := range rs.Stages {
		graph := buildDependencyGraph(stage.Rules())
		for _, scc := range tarjanSCC(graph) {
			if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
				warnings = append(warnings, cycleSCCToWarning(scc, graph, recursive))
			}
		}
		for _, r := range stage.Rules() {
			if r.Recursive && !r.IsBuiltin() && !hasSelfLoop(r.Name, graph) {
				warnings = append(warnings, CycleWarning{
					Path:    []string{r.Name},
					Message: fmt.Sprintf("RECURSIVE rule cannot trigger itself: %s", r.Name),
					Level:   LevelWarning,
				})
			}
		}
	}
	return warnings
}

// Levels of a CycleWarning.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
)

// Warnings returns the entries of cycles at warning level.
func Warnings(cycles []CycleWarning) []CycleWarning {
	var out []CycleWarning
	for _, c := range cycles {
		if c.Level == LevelWarning {
			out = append(out, c)
		}
	}
	return out
}

// dependencyGraph maps a rule name to the rules its conclusions can trigger.
type dependencyGraph map[string][]string

func buildDependencyGraph(rules []*Rule) dependencyGraph {
	graph := make(dependencyGraph)
	for _, a := range rules {
		if a.IsBuiltin() {
			continue
		}
		graph[a.Name] = []string{}
	}
	for _, a := range rules {
		if a.IsBuiltin() {
			continue
		}
		for _, b := range rules {
			if b.IsBuiltin() {
				continue
			}
			for _, p := range a.Creates {
				if slices.Contains(b.AllDepends(), p) {
					graph[a.Name] = append(graph[a.Name], b.Name)
					break
				}
			}
		}
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in name order so the output is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph, recursive map[string]bool) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		msg := "Self-triggering rule, re-run by the scheduler"
		if recursive[name] {
			msg = "Recursive rule"
		}
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("%s: %s → %s", msg, name, name),
			Level:   LevelInfo,
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Rule cycle: %s", strings.Join(path, " → ")),
		Level:   LevelInfo,
	}
}

// reconstructCyclePath follows edges inside the SCC from its first member
// until it returns to it.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}
	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if inSCC[neighbor] && neighbor != current && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}

package engine

import (
	"github.com/roach88/subsume/internal/compiler"
)

// candidate is a completion rule waiting to run, with the watermarks it
// was enqueued at. A nil snapshot means the rule has never run in the
// stage and evaluates in full.
type candidate struct {
	rule     *compiler.Rule
	snapshot Watermarks
}

// candidateQueue is the completion set of one stage.
//
// It is not a FIFO: Pop returns the rule with the smallest
// (priority, executions, complexity, name), so cheap high-priority rules
// reach their fixed point before expensive ones run again. The name makes
// the order total, which keeps runs deterministic.
type candidateQueue struct {
	pending    map[string]*candidate
	executions map[string]int
}

func newCandidateQueue() *candidateQueue {
	return &candidateQueue{
		pending:    make(map[string]*candidate),
		executions: make(map[string]int),
	}
}

// Seed enqueues rules for a full first evaluation.
func (q *candidateQueue) Seed(rules []*compiler.Rule) {
	for _, r := range rules {
		if _, ok := q.pending[r.Name]; !ok {
			q.pending[r.Name] = &candidate{rule: r}
		}
	}
}

// Push enqueues r with a copy of snapshot. A rule already pending keeps
// its older snapshot: it must still see every row added since then.
func (q *candidateQueue) Push(r *compiler.Rule, snapshot Watermarks) {
	if _, ok := q.pending[r.Name]; ok {
		return
	}
	q.pending[r.Name] = &candidate{rule: r, snapshot: snapshot.Clone()}
}

// Remove drops a pending rule.
func (q *candidateQueue) Remove(name string) {
	delete(q.pending, name)
}

// Pop removes and returns the next rule to run and counts its execution.
func (q *candidateQueue) Pop() (*candidate, bool) {
	var best *candidate
	for _, c := range q.pending {
		if best == nil || q.less(c.rule, best.rule) {
			best = c
		}
	}
	if best == nil {
		return nil, false
	}
	delete(q.pending, best.rule.Name)
	q.executions[best.rule.Name]++
	return best, true
}

func (q *candidateQueue) less(a, b *compiler.Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if ea, eb := q.executions[a.Name], q.executions[b.Name]; ea != eb {
		return ea < eb
	}
	if a.Complexity != b.Complexity {
		return a.Complexity < b.Complexity
	}
	return a.Name < b.Name
}

// Executions returns how often a rule was popped in this stage.
func (q *candidateQueue) Executions(name string) int { return q.executions[name] }

// Len returns the number of pending rules.
func (q *candidateQueue) Len() int { return len(q.pending) }

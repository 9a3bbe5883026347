package engine

import (
	"strconv"
	"strings"
)

// tupleSet remembers, per multi-row rule, the selected tuples already
// applied during the run.
//
// The incremental statement of a multi-row rule can return a tuple that
// an earlier execution applied, for instance when a restriction it matched
// was created after the rule's snapshot. Re-applying it would allocate
// blank nodes again, so each tuple is applied at most once per run.
type tupleSet struct {
	seen map[string]map[string]struct{}
}

func newTupleSet() *tupleSet {
	return &tupleSet{seen: make(map[string]map[string]struct{})}
}

// Add records the tuple and reports whether it was new.
func (s *tupleSet) Add(rule string, values []int64) bool {
	m := s.seen[rule]
	if m == nil {
		m = make(map[string]struct{})
		s.seen[rule] = m
	}
	k := tupleKey(values)
	if _, ok := m[k]; ok {
		return false
	}
	m[k] = struct{}{}
	return true
}

// Len returns the number of tuples recorded for a rule.
func (s *tupleSet) Len(rule string) int { return len(s.seen[rule]) }

func tupleKey(values []int64) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	return b.String()
}

package queryir

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Pattern is a join subgraph: named table instances connected by column
// equalities, written "some_1.prop = prop_is_a.s, some_2.prop = prop_is_a.o".
//
// An instance name is a table-name prefix, optionally followed by "_N" to
// tell several instances of the same table apart. "linked_lists" matches
// any linked-list table; "is_a_1" and "is_a_2" are two is_a instances.
type Pattern struct {
	names       []string
	prefixes    map[string]string
	constraints []patternEq
}

type member struct {
	name string
	col  string
}

type patternEq struct {
	left, right member
}

// ParsePattern parses a comma-separated list of equalities.
func ParsePattern(src string) (*Pattern, error) {
	p := &Pattern{prefixes: map[string]string{}}
	for _, part := range strings.Split(src, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		l, r, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("pattern %q: %q is not an equality", src, part)
		}
		left, err := p.member(strings.TrimSpace(l))
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", src, err)
		}
		right, err := p.member(strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", src, err)
		}
		p.constraints = append(p.constraints, patternEq{left, right})
	}
	if len(p.constraints) == 0 {
		return nil, fmt.Errorf("pattern %q is empty", src)
	}
	return p, nil
}

// MustParsePattern is ParsePattern for patterns known at init time.
func MustParsePattern(src string) *Pattern {
	p, err := ParsePattern(src)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) member(s string) (member, error) {
	name, col, ok := strings.Cut(s, ".")
	if !ok || name == "" || col == "" {
		return member{}, fmt.Errorf("%q is not instance.column", s)
	}
	if _, seen := p.prefixes[name]; !seen {
		p.names = append(p.names, name)
		p.prefixes[name] = tablePrefix(name)
	}
	return member{name: name, col: col}, nil
}

// tablePrefix strips a numeric "_N" suffix.
func tablePrefix(name string) string {
	i := strings.LastIndexByte(name, '_')
	if i < 0 {
		return name
	}
	if _, err := strconv.Atoi(name[i+1:]); err != nil {
		return name
	}
	return name[:i]
}

// Names returns the pattern's instance names in order of first use.
func (p *Pattern) Names() []string { return slices.Clone(p.names) }

// Relations is the column equivalence of a branch: two columns are related
// when the branch's equalities make them equal, directly or transitively.
type Relations struct {
	class map[ColRef]ColRef
}

// RelationsOf collects the ColEq predicates of b.
func RelationsOf(b *Branch) *Relations {
	r := &Relations{class: map[ColRef]ColRef{}}
	for _, pred := range b.Predicates {
		if eq, ok := pred.(ColEq); ok {
			r.union(eq.Left, eq.Right)
		}
	}
	return r
}

func (r *Relations) find(c ColRef) ColRef {
	for {
		parent, ok := r.class[c]
		if !ok || parent == c {
			return c
		}
		c = parent
	}
}

func (r *Relations) union(a, b ColRef) {
	ra, rb := r.find(a), r.find(b)
	if ra != rb {
		r.class[ra] = rb
	}
}

// Related reports whether a and b are equal in the branch.
func (r *Relations) Related(a, b ColRef) bool {
	if a == b {
		return true
	}
	return r.find(a) == r.find(b)
}

// Match assigns pattern instance names to branch instances.
type Match map[string]int

// IDs returns the instances for names, in order. Names not in the match
// are skipped.
func (m Match) IDs(names ...string) []int {
	out := make([]int, 0, len(names))
	for _, n := range names {
		if id, ok := m[n]; ok {
			out = append(out, id)
		}
	}
	return out
}

// FindPattern returns the first assignment of p's instances to distinct
// instances of b that satisfies every equality, trying candidates in
// ascending id order. It returns nil when the pattern does not occur.
func FindPattern(b *Branch, p *Pattern) Match {
	candidates := make(map[string][]int, len(p.names))
	needed := map[string]int{}
	for _, name := range p.names {
		prefix := p.prefixes[name]
		needed[prefix]++
		for _, f := range b.Froms {
			if strings.HasPrefix(f.Table.Name, prefix) {
				candidates[name] = append(candidates[name], f.ID)
			}
		}
		if len(candidates[name]) == 0 {
			return nil
		}
	}
	for prefix, n := range needed {
		for _, name := range p.names {
			if p.prefixes[name] == prefix && len(candidates[name]) < n {
				return nil
			}
		}
	}

	rel := RelationsOf(b)
	match := Match{}
	used := map[int]bool{}

	consistent := func() bool {
		for _, c := range p.constraints {
			l, lok := match[c.left.name]
			r, rok := match[c.right.name]
			if !lok || !rok {
				continue
			}
			if !rel.Related(ColRef{From: l, Col: c.left.col}, ColRef{From: r, Col: c.right.col}) {
				return false
			}
		}
		return true
	}

	var search func(i int) bool
	search = func(i int) bool {
		if i == len(p.names) {
			return true
		}
		name := p.names[i]
		for _, id := range candidates[name] {
			if used[id] {
				continue
			}
			match[name] = id
			used[id] = true
			if consistent() && search(i+1) {
				return true
			}
			delete(match, name)
			used[id] = false
		}
		return false
	}
	if !search(0) {
		return nil
	}
	return match
}

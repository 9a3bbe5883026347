package normalize

import (
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/subsume/internal/ir"
)

// Cache maps (operator, members) to the construct already resolved for
// them in the current run. A Cache must not outlive its run.
type Cache struct {
	entries map[string]ir.Term
	hits    int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: map[string]ir.Term{}}
}

func cacheKey(op ir.ListOp, members []ir.Term) string {
	return op.Label() + ":" + Key(members)
}

// Get returns the cached construct for members. The zero term is a valid
// cached answer for lists that normalize to nothing.
func (c *Cache) Get(op ir.ListOp, members []ir.Term) (ir.Term, bool) {
	t, ok := c.entries[cacheKey(op, members)]
	if ok {
		c.hits++
	}
	return t, ok
}

func (c *Cache) put(op ir.ListOp, members []ir.Term, t ir.Term) {
	c.entries[cacheKey(op, members)] = t
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }

// Hits returns how many lookups the cache answered.
func (c *Cache) Hits() int { return c.hits }

// Key renders a member set the way key lists store it: distinct ids in
// ascending order, joined by commas.
func Key(members []ir.Term) string {
	sorted := uniqueSorted(members)
	parts := make([]string, len(sorted))
	for i, m := range sorted {
		parts[i] = strconv.FormatInt(int64(m), 10)
	}
	return strings.Join(parts, ",")
}

// ParseKey is the inverse of Key.
func ParseKey(k string) ([]ir.Term, error) {
	if k == "" {
		return nil, nil
	}
	parts := strings.Split(k, ",")
	out := make([]ir.Term, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = ir.Term(n)
	}
	return out, nil
}

func uniqueSorted(members []ir.Term) []ir.Term {
	out := slices.Clone(members)
	slices.Sort(out)
	return slices.Compact(out)
}

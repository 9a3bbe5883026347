// Package rules holds the built-in rule set and a registry of compiled
// rule programs keyed by source path.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/querysql"
)

// DefaultName is the registry key of the embedded rule set.
const DefaultName = "default.rules"

//go:embed default.rules
var defaultSource []byte

// DefaultSource returns the text of the embedded rule set.
func DefaultSource() []byte { return defaultSource }

var defaultProgram = sync.OnceValues(func() (*querysql.Program, error) {
	return Compile(defaultSource)
})

// Default returns the compiled embedded rule set. It is compiled once per
// process.
func Default() (*querysql.Program, error) { return defaultProgram() }

// Compile compiles rule source and lowers it to SQL.
func Compile(src []byte) (*querysql.Program, error) {
	rs, err := compiler.Compile(src)
	if err != nil {
		return nil, err
	}
	prog, err := querysql.Compile(rs)
	if err != nil {
		return nil, fmt.Errorf("lower rules: %w", err)
	}
	return prog, nil
}

// Registry caches compiled programs by path. Entries are never evicted.
// Concurrent loads of the same path compile it once.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]*querysql.Program
	group    singleflight.Group
	readFile func(string) ([]byte, error)
}

// NewRegistry returns an empty registry reading rule files from disk.
func NewRegistry() *Registry {
	return &Registry{
		programs: map[string]*querysql.Program{},
		readFile: os.ReadFile,
	}
}

// Load returns the program compiled from the file at path. An empty path
// or DefaultName selects the embedded rule set.
func (r *Registry) Load(path string) (*querysql.Program, error) {
	if path == "" || path == DefaultName {
		return Default()
	}
	r.mu.RLock()
	prog, ok := r.programs[path]
	r.mu.RUnlock()
	if ok {
		return prog, nil
	}

	v, err, _ := r.group.Do(path, func() (any, error) {
		src, err := r.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules: %w", err)
		}
		prog, err := Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		r.mu.Lock()
		r.programs[path] = prog
		r.mu.Unlock()
		return prog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*querysql.Program), nil
}

// Loaded returns the number of cached programs, not counting the
// embedded one.
func (r *Registry) Loaded() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

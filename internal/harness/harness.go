package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/subsume/internal/engine"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/ontology"
	"github.com/roach88/subsume/internal/rules"
	"github.com/roach88/subsume/internal/store"
)

// Harness runs scenarios. Each scenario gets a fresh store, so scenarios
// are independent and a Harness can run any number of them.
type Harness struct {
	registry *rules.Registry
	logger   *slog.Logger
	debug    bool
}

// Option configures a Harness.
type Option func(*Harness)

// WithRegistry shares a rule registry, so scenarios naming the same rule
// file compile it once.
func WithRegistry(r *rules.Registry) Option {
	return func(h *Harness) { h.registry = r }
}

// WithLogger sets the logger passed to the engine. Logs are discarded by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithDebug runs the engine in debug mode.
func WithDebug(debug bool) Option {
	return func(h *Harness) { h.debug = debug }
}

// New returns a harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		registry: rules.NewRegistry(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario and checks its expectations. An error means the
// scenario could not be run at all; unmet expectations are reported in
// the Report.
func (h *Harness) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	dir, err := os.MkdirTemp("", "subsume-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "facts.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	prog, err := h.registry.Load(sc.Rules)
	if err != nil {
		return nil, err
	}
	docs, err := sc.documents()
	if err != nil {
		return nil, err
	}
	if _, err := ontology.WriteAll(ctx, st, docs); err != nil {
		return nil, err
	}

	eng := engine.New(st, prog,
		engine.WithLogger(h.logger),
		engine.WithDebug(h.debug),
		engine.WithAncestors(true),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(sc.Name)),
	)
	start := time.Now()
	res, err := eng.Run(ctx)
	elapsed := time.Since(start)

	report := &Report{Name: sc.Name, Pass: true, Checks: sc.Expect.checks(), Elapsed: elapsed}
	switch {
	case engine.IsInconsistency(err):
		report.Outcome = OutcomeInconsistent
	case err != nil:
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	default:
		report.Outcome = OutcomeConsistent
		report.Added = res.Added
	}

	if report.Outcome != sc.Expect.Outcome {
		report.fail("outcome: want %s, got %s", sc.Expect.Outcome, report.Outcome)
		return report, nil
	}
	if res == nil {
		return report, nil
	}

	c := &checker{ctx: ctx, q: st.Queries, base: sc.Base, res: res, report: report}
	if err := c.check(sc.Expect); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	return report, nil
}

// RunFiles loads and runs the scenario files in order.
func (h *Harness) RunFiles(ctx context.Context, paths []string) ([]*Report, error) {
	reports := make([]*Report, 0, len(paths))
	for _, path := range paths {
		sc, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		r, err := h.Run(ctx, sc)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Discover expands glob patterns ("scenarios/**/*.yaml") to scenario files.
func Discover(patterns []string) ([]string, error) {
	return ontology.Expand(patterns)
}

// resolve maps a scenario name to its term.
func resolve(ctx context.Context, q *store.Queries, base, name string) (ir.Term, error) {
	if t, ok := ir.LookupShort(name); ok {
		return t, nil
	}
	return q.Abbreviate(ctx, ir.QualifyName(base, name))
}

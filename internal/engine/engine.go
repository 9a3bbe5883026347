package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/subsume/internal/metrics"
	"github.com/roach88/subsume/internal/normalize"
	"github.com/roach88/subsume/internal/querysql"
	"github.com/roach88/subsume/internal/store"
)

// Run outcomes recorded in the runs table.
const (
	OutcomeConsistent   = "consistent"
	OutcomeInconsistent = "inconsistent"
)

// Reasoner runs a compiled rule program over a fact store.
//
// A Reasoner can be reused. Runs on the same Reasoner are serialized:
// every run writes the store's run tables.
type Reasoner struct {
	mu sync.Mutex

	store   *store.Store
	prog    *querysql.Program
	logger  *slog.Logger
	metrics *metrics.Metrics
	runIDs  RunIDGenerator

	debug      bool
	ancestors  bool
	depthSlack int
}

// Option configures a Reasoner.
type Option func(*Reasoner)

// WithDebug enables watermark integrity checks after every rule, match
// counts in the usage report and fixpoint verification after every stage.
func WithDebug(debug bool) Option {
	return func(e *Reasoner) { e.debug = debug }
}

// WithAncestors makes results carry every named ancestor of every named
// entity, trivial ones included.
func WithAncestors(on bool) Option {
	return func(e *Reasoner) { e.ancestors = on }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Reasoner) { e.logger = l }
}

// WithMetrics records rule, stage and construct metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Reasoner) { e.metrics = m }
}

// WithRunIDGenerator replaces the UUIDv7 run ids.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Reasoner) { e.runIDs = g }
}

// WithDepthSlack lets new restrictions nest n levels deeper than the
// deepest existing one. The default is 0.
func WithDepthSlack(n int) Option {
	return func(e *Reasoner) { e.depthSlack = n }
}

// New returns a reasoner running prog over s.
func New(s *store.Store, prog *querysql.Program, opts ...Option) *Reasoner {
	e := &Reasoner{
		store:  s,
		prog:   prog,
		logger: slog.Default(),
		runIDs: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Program returns the program the reasoner runs.
func (e *Reasoner) Program() *querysql.Program { return e.prog }

// run is the state of one reasoning run. It lives for one transaction.
type run struct {
	prog    *querysql.Program
	q       *store.Queries
	norm    *normalize.Normalizer
	logger  *slog.Logger
	metrics *metrics.Metrics
	debug   bool
	runID   string

	// ancestors requests Result.Ancestors.
	ancestors bool

	global Watermarks
	queue  *candidateQueue
	seen   *tupleSet
	depth  *depthGuard
	usage  *usageReport
	added  int64
}

// Run reasons over the store's facts and returns the inferences.
//
// An inconsistent ontology returns a nil Result and an
// *InconsistencyError. The run is still recorded in that case.
func (e *Reasoner) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	runID := e.runIDs.Generate()
	logger := e.logger.With("run_id", runID)
	r := &run{
		prog:    e.prog,
		q:       tx.Queries,
		norm:    normalize.New(tx.Queries, e.prog.RuleSet.ListBuiltins(), normalize.WithLogger(logger)),
		logger:  logger,
		metrics: e.metrics,
		debug:   e.debug,
		runID:   runID,
		queue:   newCandidateQueue(),
		seen:    newTupleSet(),
		depth:   newDepthGuard(tx.Queries, e.depthSlack),
		usage:   newUsageReport(),

		ancestors: e.ancestors,
	}

	res, err := r.reason(ctx)
	if err != nil {
		var ie *InconsistencyError
		if !errors.As(err, &ie) {
			_ = tx.Rollback()
			return nil, err
		}
		ie.RunID = runID
		ie.Usage = r.usage.Report()
		if err := r.finish(ctx, OutcomeInconsistent); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		e.metrics.ObserveRun(OutcomeInconsistent)
		logger.Info("run inconsistent", "rule", ie.Rule, "elapsed", time.Since(start))
		return nil, ie
	}

	if err := r.finish(ctx, OutcomeConsistent); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.metrics.ObserveRun(OutcomeConsistent)
	logger.Info("run complete",
		"added", r.added,
		"parents", len(res.Parents),
		"equivalents", len(res.Equivalents),
		"depth_dropped", res.DepthDropped,
		"elapsed", time.Since(start))
	return res, nil
}

// reason seeds the run tables, runs every stage and extracts the result.
func (r *run) reason(ctx context.Context) (*Result, error) {
	if err := r.q.CreateRunTables(ctx); err != nil {
		return nil, err
	}
	seeded, err := r.seed(ctx)
	if err != nil {
		return nil, err
	}
	r.added += seeded

	r.global = newWatermarks(r.prog.Inferrable)
	if err := r.global.Resync(ctx, r.q); err != nil {
		return nil, err
	}
	present, err := r.presentPredicates(ctx)
	if err != nil {
		return nil, err
	}

	for _, stage := range r.prog.RuleSet.Stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ts := tailor(stage, present)
		for _, p := range ts.creates() {
			present[p] = true
		}
		if err := r.runStage(ctx, ts); err != nil {
			return nil, err
		}
	}
	r.metrics.ObserveConstructs(r.norm.Events())

	res, err := r.extract(ctx)
	if err != nil {
		return nil, err
	}
	res.Usage = r.usage.Report()
	res.Added = r.added
	res.DepthDropped = r.depth.Dropped()
	return res, nil
}

func (r *run) runStage(ctx context.Context, ts *tailoredStage) error {
	start := time.Now()
	r.logger.Debug("stage started",
		"stage", ts.name,
		"preprocess", len(ts.preprocess),
		"completions", len(ts.completions),
		"pruned", len(ts.pruned))
	if len(ts.pruned) > 0 {
		r.logger.Debug("rules pruned", "stage", ts.name, "rules", ts.pruned)
	}

	for _, rule := range ts.preprocess {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rule.IsBuiltin() {
			bstart := time.Now()
			n, err := r.runBuiltin(ctx, rule)
			if err != nil {
				return err
			}
			r.usage.record(rule.Name, n, 0, time.Since(bstart))
			r.added += n
			continue
		}
		n, err := r.executeRule(ctx, nil, &candidate{rule: rule})
		if err != nil {
			return err
		}
		r.added += n
	}

	r.queue = newCandidateQueue()
	r.queue.Seed(ts.completions)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, ok := r.queue.Pop()
		if !ok {
			break
		}
		n, err := r.executeRule(ctx, ts, c)
		if err != nil {
			return err
		}
		r.added += n
	}

	if r.debug {
		if err := r.verifyFixpoint(ctx, ts); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)
	r.metrics.ObserveStage(ts.name, elapsed)
	r.logger.Debug("stage finished", "stage", ts.name, "elapsed", elapsed)
	return nil
}

// finish drops the run tables and records the run.
func (r *run) finish(ctx context.Context, outcome string) error {
	if err := r.q.DropRunTables(ctx); err != nil {
		return err
	}
	err := r.q.RecordRun(ctx, store.RunRecord{
		RunID:     r.runID,
		RulesHash: r.prog.RuleSet.Hash,
		Outcome:   outcome,
		Added:     r.added,
		Usage:     r.usage.Report(),
	})
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.runID, err)
	}
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/subsume/internal/engine"
	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/metrics"
	"github.com/roach88/subsume/internal/store"
)

// ReasonOptions holds flags for the reason command.
type ReasonOptions struct {
	*RootOptions
	Database    string
	Debug       bool
	Usage       bool
	MetricsFile string
	DepthSlack  int

	// RunIDs overrides the run id generator (for testing).
	// If nil, the engine's UUIDv7 generator is used.
	RunIDs engine.RunIDGenerator
}

// ReasonReport is the outcome of one run, with terms rendered as IRIs.
type ReasonReport struct {
	RunID        string              `json:"run_id"`
	Outcome      string              `json:"outcome"`
	Files        int                 `json:"files"`
	Triples      int                 `json:"triples"`
	Added        int64               `json:"added"`
	Parents      map[string][]string `json:"parents"`
	Equivalents  map[string][]string `json:"equivalents"`
	Kinds        map[string]string   `json:"kinds"`
	DepthDropped int                 `json:"depth_dropped,omitempty"`
	Rule         string              `json:"rule,omitempty"`
	Usage        []store.RuleUsage   `json:"usage,omitempty"`
}

// NewReasonCommand creates the reason command.
func NewReasonCommand(rootOpts *RootOptions) *cobra.Command {
	return newReasonCommand(&ReasonOptions{RootOptions: rootOpts})
}

func newReasonCommand(opts *ReasonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reason [ontology-glob...]",
		Short: "Reason over ontology files",
		Long: `Load ontology documents into a fact store and run the rules to a
fixed point.

Inputs are YAML or CUE documents; glob patterns such as "onto/**/*.yaml"
are expanded. Without --db the store is temporary. With --db and no
inputs, the facts already in the database are used.

Exit codes:
  0 - Consistent
  1 - Inconsistent
  2 - Command error (unreadable input, rule compile error, etc.)

Examples:
  subsume reason zoo.yaml
  subsume reason --db ./facts.db 'onto/**/*.yaml' --usage
  subsume reason --rules custom.rules --format json zoo.cue`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReason(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: temporary)")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "verify watermarks and fixpoints, count matches")
	cmd.Flags().BoolVar(&opts.Usage, "usage", false, "print the per-rule usage report")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	cmd.Flags().IntVar(&opts.DepthSlack, "depth-slack", 0, "extra restriction nesting allowed beyond the input")

	return cmd
}

// newLogger builds the CLI logger: text on w, Debug when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (opts *ReasonOptions) engineOptions(logger *slog.Logger, m *metrics.Metrics) []engine.Option {
	eo := []engine.Option{
		engine.WithLogger(logger),
		engine.WithDebug(opts.Debug),
		engine.WithDepthSlack(opts.DepthSlack),
	}
	if m != nil {
		eo = append(eo, engine.WithMetrics(m))
	}
	if opts.RunIDs != nil {
		eo = append(eo, engine.WithRunIDGenerator(opts.RunIDs))
	}
	return eo
}

func runReason(ctx context.Context, opts *ReasonOptions, patterns []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if len(patterns) == 0 && opts.Database == "" {
		return reportError(formatter, ErrCodeNoInput,
			NewExitError(ExitCommandError, "no ontology inputs and no --db given"))
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	prog, err := opts.program()
	if err != nil {
		return reportError(formatter, errorCode(err), WrapExitError(ExitCommandError, "load rules", err))
	}

	ws, err := openWorkspace(ctx, opts.Database, patterns)
	if err != nil {
		return reportError(formatter, errorCode(err), WrapExitError(ExitCommandError, "load ontology", err))
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			logger.Error("error closing store", "error", cerr)
		}
	}()
	logger.Debug("ontology loaded", "files", ws.stats.Files, "triples", ws.stats.Triples)

	var m *metrics.Metrics
	if opts.MetricsFile != "" {
		m = metrics.New()
	}
	r := engine.New(ws.store, prog, opts.engineOptions(logger, m)...)

	report, runErr := reasonOnce(ctx, ws, r, opts.Usage)
	if m != nil {
		if err := m.WriteFile(opts.MetricsFile); err != nil {
			return reportError(formatter, ErrCodeGeneric, WrapExitError(ExitCommandError, "write metrics", err))
		}
	}
	if runErr != nil && report == nil {
		return reportError(formatter, errorCode(runErr), WrapExitError(ExitCommandError, "reason", runErr))
	}
	if err := formatter.Success(report); err != nil {
		return err
	}
	if runErr != nil {
		return silent(WrapExitError(ExitFailure, "ontology is inconsistent", runErr))
	}
	return nil
}

// reasonOnce runs r and renders the result. An inconsistent ontology
// returns a report and the *engine.InconsistencyError.
func reasonOnce(ctx context.Context, ws *workspace, r *engine.Reasoner, usage bool) (*ReasonReport, error) {
	report := &ReasonReport{
		Files:   ws.stats.Files,
		Triples: ws.stats.Triples,
	}
	res, err := r.Run(ctx)
	if err != nil {
		var ie *engine.InconsistencyError
		if !errors.As(err, &ie) {
			return nil, err
		}
		report.RunID = ie.RunID
		report.Outcome = engine.OutcomeInconsistent
		report.Rule = ie.Rule
		if usage {
			report.Usage = ie.Usage
		}
		return report, err
	}

	report.RunID = res.RunID
	report.Outcome = engine.OutcomeConsistent
	report.Added = res.Added
	report.DepthDropped = res.DepthDropped
	if usage {
		report.Usage = res.Usage
	}
	if report.Parents, err = ws.termMap(ctx, res.Parents); err != nil {
		return nil, err
	}
	if report.Equivalents, err = ws.termMap(ctx, res.Equivalents); err != nil {
		return nil, err
	}
	report.Kinds = make(map[string]string, len(res.Kinds))
	for t, k := range res.Kinds {
		iri, err := ws.iri(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("render result: %w", err)
		}
		report.Kinds[iri] = string(k)
	}
	return report, nil
}

func (r *ReasonReport) renderText(f *OutputFormatter) string {
	var b strings.Builder
	if r.Outcome == engine.OutcomeInconsistent {
		fmt.Fprintf(&b, "%s (run %s): rule %s fired\n", f.paint(color.FgRed, r.Outcome), r.RunID, r.Rule)
	} else {
		fmt.Fprintf(&b, "%s (run %s): %d file(s), %d triple(s), %d fact(s) added\n",
			f.paint(color.FgGreen, r.Outcome), r.RunID, r.Files, r.Triples, r.Added)
	}
	writeSection(&b, "parents", r.Parents)
	writeSection(&b, "equivalents", r.Equivalents)
	if r.DepthDropped > 0 {
		fmt.Fprintf(&b, "depth guard dropped %d restriction(s)\n", r.DepthDropped)
	}
	if len(r.Usage) > 0 {
		b.WriteString("usage:\n")
		writeUsage(&b, r.Usage)
	}
	return b.String()
}

// writeSection lists an entity map by local name.
func writeSection(b *strings.Builder, title string, m map[string][]string) {
	if len(m) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		names := make([]string, len(m[k]))
		for i, v := range m[k] {
			names[i] = ir.LocalName(v)
		}
		fmt.Fprintf(b, "  %s: %s\n", ir.LocalName(k), strings.Join(names, ", "))
	}
}

func writeUsage(w io.Writer, usage []store.RuleUsage) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  RULE\tEXECUTIONS\tHITS\tMATCHES\tTIME")
	for _, u := range usage {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%s\n", u.Rule, u.Executions, u.Hits, u.Matches,
			time.Duration(u.Nanos).Round(time.Microsecond))
	}
	_ = tw.Flush()
}

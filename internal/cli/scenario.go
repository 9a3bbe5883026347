package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/subsume/internal/harness"
	"github.com/roach88/subsume/internal/rules"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Debug  bool
	Filter string // scenario name filter (glob pattern)
}

// ScenarioResult holds the overall result of a scenario run.
type ScenarioResult struct {
	Scenarios []*harness.Report `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

func (r *ScenarioResult) renderText(f *OutputFormatter) string {
	if r.Total == 0 {
		return "No scenarios found.\n"
	}
	var b strings.Builder
	summary, _ := harness.Summary(r.Scenarios)
	for _, line := range strings.SplitAfter(summary, "\n") {
		switch {
		case strings.HasPrefix(line, "PASS "):
			line = f.paint(color.FgGreen, "PASS") + line[4:]
		case strings.HasPrefix(line, "FAIL "):
			line = f.paint(color.FgRed, "FAIL") + line[4:]
		}
		b.WriteString(line)
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	return b.String()
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <scenario-glob>...",
		Short: "Run reasoning scenarios",
		Long: `Run scenario files: an ontology plus the conclusions a run over it
must reach.

Each scenario reasons in its own temporary store. Scenarios name their
own rule file; --rules does not apply.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (unreadable scenario, rule compile error, etc.)

Examples:
  subsume scenario 'scenarios/*.yaml'
  subsume scenario 'scenarios/**/*.yaml' --filter "disjoint*"
  subsume scenario scenarios/chain_200.yaml --debug --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "run the engine in debug mode")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by file name glob")

	return cmd
}

func runScenarios(opts *ScenarioOptions, patterns []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	paths, err := harness.Discover(patterns)
	if err != nil {
		return reportError(formatter, errorCode(err), WrapExitError(ExitCommandError, "find scenarios", err))
	}
	if paths, err = filterScenarios(paths, opts.Filter); err != nil {
		return reportError(formatter, ErrCodeGeneric, WrapExitError(ExitCommandError, "invalid filter", err))
	}

	if opts.registry == nil {
		opts.registry = rules.NewRegistry()
	}
	h := harness.New(
		harness.WithRegistry(opts.registry),
		harness.WithLogger(newLogger(cmd.ErrOrStderr(), opts.Verbose)),
		harness.WithDebug(opts.Debug),
	)

	result := &ScenarioResult{Scenarios: []*harness.Report{}}
	if len(paths) > 0 {
		reports, err := h.RunFiles(cmd.Context(), paths)
		if err != nil {
			return reportError(formatter, errorCode(err), WrapExitError(ExitCommandError, "run scenarios", err))
		}
		result.Scenarios = reports
	}
	for _, r := range result.Scenarios {
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	result.Total = len(result.Scenarios)

	if err := formatter.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return silent(NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed)))
	}
	return nil
}

// filterScenarios keeps the paths whose base name, without extension,
// matches filter.
func filterScenarios(paths []string, filter string) ([]string, error) {
	if filter == "" {
		return paths, nil
	}
	var out []string
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		ok, err := filepath.Match(filter, name)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/querysql"
	"github.com/roach88/subsume/internal/rules"
)

// CompileSummary describes a compiled rule set.
type CompileSummary struct {
	Source string         `json:"source"`
	Hash   string         `json:"hash"`
	Rules  int            `json:"rules"`
	Stages []StageSummary `json:"stages"`
	// Cycles are the rule cycles of each stage, warnings included.
	Cycles []compiler.CycleWarning `json:"cycles,omitempty"`
}

// StageSummary lists the rules of one stage in declaration order.
type StageSummary struct {
	Name  string        `json:"name"`
	Rules []RuleSummary `json:"rules"`
}

// RuleSummary is what the scheduler knows about a rule.
type RuleSummary struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Action      string `json:"action"`
	Priority    int    `json:"priority"`
	Complexity  int    `json:"complexity"`
	Recursive   bool   `json:"recursive,omitempty"`
	Incremental bool   `json:"incremental"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile [rules-file]",
		Short: "Compile a rule file and list its stages",
		Long: `Compile a rule file to SQL and list its stages and rules.

Without an argument the file named by --rules is compiled, or the
built-in rule set when --rules is not set either. Compile errors are
reported with their code, line and column.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				rootOpts.Rules = args[0]
			}
			return runCompile(rootOpts, cmd)
		},
	}

	return cmd
}

func runCompile(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	prog, err := opts.program()
	if err != nil {
		return reportError(formatter, errorCode(err), WrapExitError(ExitCommandError, "compile failed", err))
	}
	source := opts.Rules
	if source == "" {
		source = rules.DefaultName
	}
	formatter.VerboseLog("compiled %s (hash %s)", source, prog.RuleSet.Hash)
	return formatter.Success(summarize(source, prog))
}

func summarize(source string, prog *querysql.Program) *CompileSummary {
	s := &CompileSummary{Source: source, Hash: prog.RuleSet.Hash}
	for _, st := range prog.RuleSet.Stages {
		ss := StageSummary{Name: st.Name}
		for _, r := range st.Rules() {
			cr := prog.Rule(r.Name)
			ss.Rules = append(ss.Rules, RuleSummary{
				Name:        r.Name,
				Kind:        r.Kind.String(),
				Action:      r.Action.String(),
				Priority:    r.Priority,
				Complexity:  r.Complexity,
				Recursive:   r.Recursive,
				Incremental: cr != nil && cr.Incremental.Incremental(),
			})
			s.Rules++
		}
		s.Stages = append(s.Stages, ss)
	}
	s.Cycles = compiler.AnalyzeCycles(prog.RuleSet)
	return s
}

func (s *CompileSummary) renderText(f *OutputFormatter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Compiled %s: %d stage(s), %d rule(s)\n",
		f.paint(color.FgGreen, "✓"), s.Source, len(s.Stages), s.Rules)
	for _, st := range s.Stages {
		fmt.Fprintf(&b, "stage %s\n", st.Name)
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		for _, r := range st.Rules {
			flags := ""
			if r.Recursive {
				flags += " recursive"
			}
			if r.Incremental {
				flags += " incremental"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\tpriority %d\tcomplexity %d\t%s\n",
				r.Name, r.Kind, r.Action, r.Priority, r.Complexity, strings.TrimSpace(flags))
		}
		_ = tw.Flush()
	}
	warnings := compiler.Warnings(s.Cycles)
	if n := len(s.Cycles) - len(warnings); n > 0 {
		fmt.Fprintf(&b, "%d rule cycle(s)\n", n)
	}
	writeWarnings(&b, f, warnings)
	return b.String()
}

// writeWarnings lists cycle warnings, one per line.
func writeWarnings(b *strings.Builder, f *OutputFormatter, warnings []compiler.CycleWarning) {
	for _, w := range warnings {
		fmt.Fprintf(b, "%s %s\n", f.paint(color.FgYellow, "!"), w.Message)
	}
}

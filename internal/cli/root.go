package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/querysql"
	"github.com/roach88/subsume/internal/rules"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Rules   string // rule file; empty selects the embedded rule set

	registry *rules.Registry
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// program loads the selected rule set through the shared registry.
func (o *RootOptions) program() (*querysql.Program, error) {
	if o.registry == nil {
		o.registry = rules.NewRegistry()
	}
	return o.registry.Load(o.Rules)
}

// NewRootCommand creates the root command for the subsume CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{registry: rules.NewRegistry()}

	cmd := &cobra.Command{
		Use:   "subsume",
		Short: "subsume - forward-chaining description logic reasoner",
		Long: `A forward-chaining reasoner for description logic ontologies.

Rules written in the rule language are compiled to SQL and run to a
fixed point over a SQLite fact store. Inferred subsumptions and
equivalences are reported per entity.`,
		Version: fmt.Sprintf("%s (rule language %s)", ir.EngineVersion, ir.RuleLanguageVersion),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Rules, "rules", "", "rule file (default: built-in rules)")

	cmd.AddCommand(NewReasonCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Execute runs the CLI with args and returns the process exit code.
// Errors the commands did not print themselves go to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	var exitErr *ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.reported) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return GetExitCode(err)
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// RuleSQL is the generated SQL of one rule.
type RuleSQL struct {
	Rule        string   `json:"rule"`
	Builtin     string   `json:"builtin,omitempty"`
	Full        string   `json:"full,omitempty"`
	Incremental string   `json:"incremental,omitempty"`
	Watermarks  []string `json:"watermarks,omitempty"`

	text string
}

// Explanation is the SQL of the selected rules, in declaration order.
type Explanation []RuleSQL

func (e Explanation) renderText(*OutputFormatter) string {
	var b strings.Builder
	for i, r := range e {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.text)
	}
	return b.String()
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain [rule...]",
		Short: "Print the SQL generated for rules",
		Long: `Print the full and incremental SQL statements of each rule.

The incremental statement is listed with the tables whose watermarks
gate it. Builtin rules have no SQL. Without arguments every rule is
explained.

Examples:
  subsume explain is_a_transitive
  subsume explain --rules custom.rules --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runExplain(opts *RootOptions, names []string, cmd *cobra.Command) error {
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
	if len(names) == 0 {
		for _, r := range prog.RuleSet.Rules() {
			names = append(names, r.Name)
		}
	}

	out := make(Explanation, 0, len(names))
	for _, name := range names {
		cr := prog.Rule(name)
		if cr == nil {
			return reportError(formatter, ErrCodeGeneric,
				NewExitError(ExitCommandError, fmt.Sprintf("unknown rule %q", name)))
		}
		rs := RuleSQL{Rule: name, text: cr.Explain()}
		if cr.Plan == nil {
			rs.Builtin = cr.Rule.Builtin.Type
		} else {
			rs.Full = cr.Full.SQL
			if cr.Incremental.Incremental() {
				rs.Incremental = cr.Incremental.SQL
				for _, t := range cr.Incremental.WatermarkTables {
					rs.Watermarks = append(rs.Watermarks, t.Name)
				}
			}
		}
		out = append(out, rs)
	}
	return formatter.Success(out)
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/subsume/internal/compiler"
	"github.com/roach88/subsume/internal/ontology"
)

// ValidationIssue is one problem found in an input.
type ValidationIssue struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	loc := i.Path
	if i.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", i.Path, i.Line, i.Column)
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", loc, i.Code, i.Message)
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Axioms int               `json:"axioms"`
	Rules  int               `json:"rules"`
	Errors []ValidationIssue `json:"errors,omitempty"`
	// Warnings do not make the inputs invalid.
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
}

func (v *ValidationResult) renderText(f *OutputFormatter) string {
	var b strings.Builder
	if v.Valid {
		fmt.Fprintf(&b, "%s %d file(s), %d axiom(s), %d rule(s)\n",
			f.paint(color.FgGreen, "✓"), v.Files, v.Axioms, v.Rules)
		writeWarnings(&b, f, v.Warnings)
		return b.String()
	}
	fmt.Fprintf(&b, "%s %d error(s)\n", f.paint(color.FgRed, "✗"), len(v.Errors))
	for _, e := range v.Errors {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	writeWarnings(&b, f, v.Warnings)
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [ontology-glob...]",
		Short: "Check rules and ontology files without reasoning",
		Long: `Compile the rules and parse ontology documents without touching a
fact store.

Every input is checked; all problems are reported, not just the first.
Faster than reason for editing feedback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, patterns []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := &ValidationResult{}
	if prog, err := opts.program(); err != nil {
		result.Errors = append(result.Errors, issueOf(opts.Rules, err))
	} else {
		result.Rules = len(prog.RuleSet.Rules())
		result.Warnings = compiler.Warnings(compiler.AnalyzeCycles(prog.RuleSet))
	}

	if len(patterns) > 0 {
		paths, err := ontology.Expand(patterns)
		if err != nil {
			result.Errors = append(result.Errors, issueOf("", err))
		}
		for _, path := range paths {
			formatter.VerboseLog("checking %s", path)
			doc, err := parseFile(path)
			if err != nil {
				result.Errors = append(result.Errors, issueOf(path, err))
				continue
			}
			result.Files++
			result.Axioms += len(doc.Axioms)
		}
	}

	result.Valid = len(result.Errors) == 0
	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return silent(NewExitError(ExitCommandError, fmt.Sprintf("%d validation error(s)", len(result.Errors))))
	}
	return nil
}

func parseFile(path string) (*ontology.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ontology.LoadError{Code: ontology.ErrCodeNotFound, Path: path, Message: err.Error(), Err: err}
	}
	return ontology.Parse(path, data)
}

// issueOf flattens the error types of the compiler and the loader.
func issueOf(path string, err error) ValidationIssue {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ValidationIssue{Code: ce.Code, Path: path, Line: ce.Line, Column: ce.Col, Message: ce.Message}
	}
	var le *ontology.LoadError
	if errors.As(err, &le) {
		if le.Path != "" {
			path = le.Path
		}
		return ValidationIssue{Code: le.Code, Path: path, Line: le.Line, Column: le.Column, Message: le.Message}
	}
	return ValidationIssue{Code: ErrCodeGeneric, Path: path, Message: err.Error()}
}

package compiler

import (
	"errors"
	"fmt"
)

// Compile error codes (E100-E199)
const (
	// Source errors (E100-E109)
	ErrSyntax          = "E101" // malformed rule source
	ErrDuplicateRule   = "E102" // rule name declared twice
	ErrUnknownName     = "E103" // identifier is not a well-known IRI or predicate
	ErrUnknownBuiltin  = "E104" // BUILTIN type is not implemented
	ErrNoStage         = "E105" // rule declared before any STAGE
	ErrBadBuiltinArity = "E106" // builtin argument count mismatch

	// Rule shape errors (E110-E119)
	ErrMissingLevel      = "E110" // is_a conclusion without a level
	ErrWritesBase        = "E111" // conclusion writes the objs table
	ErrMultiRowBranches  = "E112" // multi-row rule with OR blocks
	ErrRaiseNoConditions = "E113" // RAISE rule without conditions
	ErrRecursiveShape    = "E114" // RECURSIVE on a rule that is not single-row INFER
	ErrUnboundVariable   = "E115" // filter variable not bound by any pattern
	ErrRestOutsideClause = "E116" // "?..." in a conclusion without a condition clause
)

// CompileError reports a rule source the compiler refuses.
type CompileError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
	Offset  int    `json:"offset"`
	Line    int    `json:"line,omitempty"`
	Col     int    `json:"col,omitempty"`
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	where := ""
	if e.Line > 0 {
		where = fmt.Sprintf(" line %d:%d:", e.Line, e.Col)
	}
	if e.Rule != "" {
		return fmt.Sprintf("[%s]%s rule %q: %s", e.Code, where, e.Rule, e.Message)
	}
	return fmt.Sprintf("[%s]%s %s", e.Code, where, e.Message)
}

// IsCompileError reports whether err is, or wraps, a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

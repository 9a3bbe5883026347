package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/subsume/internal/ir"
	"github.com/roach88/subsume/internal/store"
)

// InconsistencyError is returned when a RAISE rule matches.
//
// The run is abandoned: no result is extracted, but the usage report up to
// the raising rule is kept for diagnostics.
type InconsistencyError struct {
	// Rule is the name of the raising rule.
	Rule string
	// Raise is the error name the rule declares, e.g. "InconsistentOntology".
	Raise string
	RunID string
	Usage []store.RuleUsage
}

// Error implements the error interface.
func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s: raised by rule %s", e.Raise, e.Rule)
}

// IsInconsistency reports whether err is, or wraps, an InconsistencyError.
func IsInconsistency(err error) bool {
	var ie *InconsistencyError
	return errors.As(err, &ie)
}

// WatermarkIntegrityError reports a global watermark that disagrees with
// the table it tracks. It is only checked in debug mode and always
// indicates an engine bug.
type WatermarkIntegrityError struct {
	Table     *ir.Table
	Watermark int64
	Actual    int64
	// Rule is the rule that ran last before the check, if any.
	Rule string
}

// Error implements the error interface.
func (e *WatermarkIntegrityError) Error() string {
	msg := fmt.Sprintf("watermark of %s is %d, table max rowid is %d", e.Table, e.Watermark, e.Actual)
	if e.Rule != "" {
		msg += " (after " + e.Rule + ")"
	}
	return msg
}

// FixpointError reports a completion rule that still derived facts when
// re-run after its stage finished. Debug mode only.
type FixpointError struct {
	Stage string
	Rule  string
	Added int64
}

// Error implements the error interface.
func (e *FixpointError) Error() string {
	return fmt.Sprintf("stage %s is not at a fixed point: rule %s added %d rows on re-run", e.Stage, e.Rule, e.Added)
}

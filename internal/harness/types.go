package harness

import (
	"fmt"
	"strings"
	"time"
)

// Report is the outcome of one scenario.
type Report struct {
	Name string `json:"name"`

	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Outcome is what the run concluded, consistent or inconsistent.
	Outcome string `json:"outcome"`

	// Checks is the number of expectations evaluated, the outcome included.
	Checks int `json:"checks"`

	// Failures describes the expectations that did not hold.
	Failures []string `json:"failures,omitempty"`

	Added   int64         `json:"added"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

func (r *Report) fail(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
	r.Pass = false
}

// String renders the report without timings, one line per failure.
func (r *Report) String() string {
	var b strings.Builder
	status := "PASS"
	if !r.Pass {
		status = "FAIL"
	}
	noun := "checks"
	if r.Checks == 1 {
		noun = "check"
	}
	fmt.Fprintf(&b, "%s %s (%s, %d %s)\n", status, r.Name, r.Outcome, r.Checks, noun)
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	return b.String()
}

// Summary renders reports in order and counts the failures.
func Summary(reports []*Report) (string, int) {
	var b strings.Builder
	failed := 0
	for _, r := range reports {
		b.WriteString(r.String())
		if !r.Pass {
			failed++
		}
	}
	return b.String(), failed
}

package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs the scenario files and compares their summary with
// the golden file testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, h *Harness, name string, paths []string) []*Report {
	t.Helper()

	reports, err := h.RunFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("run scenarios: %v", err)
	}
	AssertGolden(t, name, reports)
	return reports
}

// AssertGolden compares the summary of reports with a golden file. Timings
// are not part of the summary, so it is stable across runs.
func AssertGolden(t *testing.T, name string, reports []*Report) {
	t.Helper()

	summary, _ := Summary(reports)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(summary))
}

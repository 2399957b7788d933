package harness

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/strata/internal/trace"
)

// Golden runs the scenario at testdata/<name>.yaml and compares the
// rendered trace against testdata/golden/<name>.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func Golden(t *testing.T, name string) *Result {
	t.Helper()

	res, err := RunFile(filepath.Join("testdata", name+".yaml"))
	if err != nil {
		t.Fatalf("run scenario %s: %v", name, err)
	}
	for _, failure := range res.Failures {
		t.Error(failure)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, RenderTrace(res.Steps))
	return res
}

// RenderTrace renders steps one per line in the CLI's compact text form,
// prefixed with the logical clock stamp.
func RenderTrace(steps []trace.Step) []byte {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "%d %s\n", s.Seq, trace.FormatStep(s))
	}
	return []byte(b.String())
}

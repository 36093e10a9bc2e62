package steps

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
	"github.com/statbase/etl/catalog"
	"github.com/statbase/etl/mock"
	"github.com/statbase/etl/snapshot"
)

// dataDag is a three stage chain with no snapshot steps, so runner tests
// don't need sidecars on disk.
const dataDag = `
steps:
  data://harmonize/who/2026-08-01/gho:
    - data://format/who/2026-08-01/gho
  data://import/who/2026-08-01/gho:
    - data://harmonize/who/2026-08-01/gho
`

func testRunner(t *testing.T) (*Runner, *mock.RecordingStatter) {
	t.Helper()
	d, err := ParseDAG([]byte(dataDag))
	if err != nil {
		t.Fatalf("parsing dag: %v", err)
	}
	st, err := LoadState(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("loading state: %v", err)
	}
	r := NewRunner(d, snapshot.NewStore(t.TempDir()), catalog.NewLocal(t.TempDir()), st)
	stats := &mock.RecordingStatter{}
	r.Stats = stats
	return r, stats
}

// recordingStep records which steps ran and writes an output dataset so
// the step registers as built.
func recordingStep(t *testing.T, mu *sync.Mutex, ran *[]string) StepFunc {
	return func(sc *Context) error {
		mu.Lock()
		*ran = append(*ran, sc.Step.String())
		mu.Unlock()
		_, err := sc.Catalog.Create(etl.DatasetMeta{
			Channel:   sc.Step.Channel,
			Namespace: sc.Step.Namespace,
			Version:   sc.Step.Version,
			ShortName: sc.Step.Name,
		})
		if err != nil {
			t.Errorf("creating output: %v", err)
		}
		return err
	}
}

func TestRunnerRunsInOrder(t *testing.T) {
	r, stats := testRunner(t)
	var mu sync.Mutex
	var ran []string
	r.Register("data://", recordingStep(t, &mu, &ran))

	if err := r.Run(""); err != nil {
		t.Fatalf("running: %v", err)
	}
	if len(ran) != 3 {
		t.Fatalf("expected 3 steps to run, got %v", ran)
	}
	if ran[0] != "data://format/who/2026-08-01/gho" || ran[2] != "data://import/who/2026-08-01/gho" {
		t.Fatalf("steps ran out of order: %v", ran)
	}
	if got := stats.Get("steps.run"); got != 3 {
		t.Fatalf("expected steps.run 3, got %d", got)
	}

	// a clean second run skips everything
	if err := r.Run(""); err != nil {
		t.Fatalf("running again: %v", err)
	}
	if len(ran) != 3 {
		t.Fatalf("clean steps were rerun: %v", ran)
	}
	if got := stats.Get("steps.skipped"); got != 3 {
		t.Fatalf("expected steps.skipped 3, got %d", got)
	}
}

func TestRunnerConcurrentSteps(t *testing.T) {
	// many independent dirty steps so several workers record state at
	// the same time
	d := &DAG{Steps: map[string][]string{}}
	for i := 0; i < 64; i++ {
		d.Steps[fmt.Sprintf("data://format/who/2026-08-01/ds%02d", i)] = nil
	}
	st, err := LoadState(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("loading state: %v", err)
	}
	r := NewRunner(d, snapshot.NewStore(t.TempDir()), catalog.NewLocal(t.TempDir()), st)
	r.Concurrency = 8
	stats := &mock.RecordingStatter{}
	r.Stats = stats

	var mu sync.Mutex
	var ran []string
	r.Register("data://", recordingStep(t, &mu, &ran))

	if err := r.Run(""); err != nil {
		t.Fatalf("running: %v", err)
	}
	if len(ran) != 64 {
		t.Fatalf("expected 64 steps to run, got %d", len(ran))
	}
	if got := stats.Get("steps.run"); got != 64 {
		t.Fatalf("expected steps.run 64, got %d", got)
	}
	if len(st.Checksums) != 64 {
		t.Fatalf("expected 64 recorded checksums, got %d", len(st.Checksums))
	}
}

func TestRunnerForce(t *testing.T) {
	r, _ := testRunner(t)
	var mu sync.Mutex
	var ran []string
	r.Register("data://", recordingStep(t, &mu, &ran))

	if err := r.Run(""); err != nil {
		t.Fatalf("running: %v", err)
	}
	r.Force = true
	if err := r.Run(""); err != nil {
		t.Fatalf("running forced: %v", err)
	}
	if len(ran) != 6 {
		t.Fatalf("force should rerun every step, ran %v", ran)
	}
}

func TestRunnerRerunsWhenOutputMissing(t *testing.T) {
	r, _ := testRunner(t)
	var mu sync.Mutex
	var ran []string
	r.Register("data://", recordingStep(t, &mu, &ran))

	if err := r.Run(""); err != nil {
		t.Fatalf("running: %v", err)
	}
	if err := r.catalog.Remove("harmonize/who/2026-08-01/gho"); err != nil {
		t.Fatalf("removing dataset: %v", err)
	}
	if err := r.Run(""); err != nil {
		t.Fatalf("running again: %v", err)
	}
	if len(ran) != 4 || ran[3] != "data://harmonize/who/2026-08-01/gho" {
		t.Fatalf("only the missing step should rerun, ran %v", ran)
	}
}

func TestRunnerDryRun(t *testing.T) {
	r, _ := testRunner(t)
	var mu sync.Mutex
	var ran []string
	r.Register("data://", recordingStep(t, &mu, &ran))
	r.DryRun = true

	if err := r.Run(""); err != nil {
		t.Fatalf("dry running: %v", err)
	}
	if len(ran) != 0 {
		t.Fatalf("dry run should not execute steps, ran %v", ran)
	}
}

func TestRunnerFailurePropagates(t *testing.T) {
	r, stats := testRunner(t)
	var mu sync.Mutex
	var ran []string
	r.Register("data://", recordingStep(t, &mu, &ran))
	r.Register("data://harmonize/who/2026-08-01/gho", func(sc *Context) error {
		return errors.New("synthetic step failure")
	})

	err := r.Run("")
	if err == nil {
		t.Fatalf("expected run to fail")
	}
	if !strings.Contains(err.Error(), "data://harmonize/who/2026-08-01/gho") {
		t.Fatalf("error should name the failed step: %v", err)
	}
	if len(ran) != 1 || ran[0] != "data://format/who/2026-08-01/gho" {
		t.Fatalf("steps downstream of the failure should not run, ran %v", ran)
	}
	// harmonize failed and import was skipped as failed
	if got := stats.Get("steps.failed"); got != 2 {
		t.Fatalf("expected steps.failed 2, got %d", got)
	}

	// the failed steps rerun next time, the clean one doesn't
	r.Register("data://harmonize/who/2026-08-01/gho", recordingStep(t, &mu, &ran))
	if err := r.Run(""); err != nil {
		t.Fatalf("running after fix: %v", err)
	}
	if len(ran) != 3 {
		t.Fatalf("expected harmonize and import to rerun, ran %v", ran)
	}
}

func TestRunnerPattern(t *testing.T) {
	r, _ := testRunner(t)
	var mu sync.Mutex
	var ran []string
	r.Register("data://", recordingStep(t, &mu, &ran))

	if err := r.Run("harmonize"); err != nil {
		t.Fatalf("running: %v", err)
	}
	// harmonize plus its format dependency, but not import
	if len(ran) != 2 || ran[1] != "data://harmonize/who/2026-08-01/gho" {
		t.Fatalf("unexpected steps ran: %v", ran)
	}
}

func TestRunnerLookupPrecedence(t *testing.T) {
	r, _ := testRunner(t)
	var mu sync.Mutex
	var viaPrefix, viaExact []string
	r.Register("data://", recordingStep(t, &mu, &viaPrefix))
	r.Register("data://harmonize/", recordingStep(t, &mu, &viaPrefix))
	r.Register("data://harmonize/who/2026-08-01/gho", recordingStep(t, &mu, &viaExact))

	fn, err := r.lookup("data://harmonize/who/2026-08-01/gho")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	sc := &Context{
		Step:    URI{Kind: KindData, Channel: "harmonize", Namespace: "who", Version: "2026-08-01", Name: "gho"},
		Catalog: r.catalog,
	}
	if err := fn(sc); err != nil {
		t.Fatalf("running step: %v", err)
	}
	if len(viaExact) != 1 || len(viaPrefix) != 0 {
		t.Fatalf("exact registration should win, exact=%v prefix=%v", viaExact, viaPrefix)
	}

	if _, err := r.lookup("publish://s3"); err == nil {
		t.Fatalf("expected error for unregistered step")
	}
}

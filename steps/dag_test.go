package steps

import (
	"reflect"
	"testing"
)

const sampleDag = `
steps:
  data://format/who/2026-08-01/gho:
    - snapshot://who/2026-08-01/gho.csv
  data://harmonize/who/2026-08-01/gho:
    - data://format/who/2026-08-01/gho
  data://import/who/2026-08-01/gho:
    - data://harmonize/who/2026-08-01/gho
  publish://s3:
    - data://import/who/2026-08-01/gho
`

func TestParseDAG(t *testing.T) {
	d, err := ParseDAG([]byte(sampleDag))
	if err != nil {
		t.Fatalf("parsing dag: %v", err)
	}
	if len(d.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(d.Steps))
	}
	deps := d.Deps("data://harmonize/who/2026-08-01/gho")
	if len(deps) != 1 || deps[0] != "data://format/who/2026-08-01/gho" {
		t.Fatalf("unexpected deps: %v", deps)
	}
	if deps := d.Deps("snapshot://who/2026-08-01/gho.csv"); deps != nil {
		t.Fatalf("dependency-only step should have no deps, got %v", deps)
	}

	all := d.All()
	if len(all) != 5 {
		t.Fatalf("All should include dependency-only steps, got %v", all)
	}
}

func TestParseDAGRejectsBadURIs(t *testing.T) {
	if _, err := ParseDAG([]byte("steps:\n  nonsense:\n")); err == nil {
		t.Fatalf("expected error for malformed step URI")
	}
	if _, err := ParseDAG([]byte("steps:\n  publish://s3:\n    - nonsense\n")); err == nil {
		t.Fatalf("expected error for malformed dependency URI")
	}
	if _, err := ParseDAG([]byte("stepz:\n  a: b\n")); err == nil {
		t.Fatalf("expected error for unknown top-level key")
	}
}

func TestTopoSort(t *testing.T) {
	d, err := ParseDAG([]byte(sampleDag))
	if err != nil {
		t.Fatalf("parsing dag: %v", err)
	}
	order, err := d.TopoSort(d.All())
	if err != nil {
		t.Fatalf("sorting: %v", err)
	}
	want := []string{
		"snapshot://who/2026-08-01/gho.csv",
		"data://format/who/2026-08-01/gho",
		"data://harmonize/who/2026-08-01/gho",
		"data://import/who/2026-08-01/gho",
		"publish://s3",
	}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
}

func TestTopoSortCycle(t *testing.T) {
	d := &DAG{Steps: map[string][]string{
		"data://format/a/1/x":    {"data://harmonize/a/1/x"},
		"data://harmonize/a/1/x": {"data://format/a/1/x"},
	}}
	if _, err := d.TopoSort(d.All()); err == nil {
		t.Fatalf("expected cycle error")
	}
}

func TestSubgraph(t *testing.T) {
	d, err := ParseDAG([]byte(sampleDag))
	if err != nil {
		t.Fatalf("parsing dag: %v", err)
	}

	got := d.Subgraph("harmonize")
	want := []string{
		"data://format/who/2026-08-01/gho",
		"data://harmonize/who/2026-08-01/gho",
		"snapshot://who/2026-08-01/gho.csv",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got subgraph %v, want %v", got, want)
	}

	if got := d.Subgraph(""); len(got) != 5 {
		t.Fatalf("empty pattern should select everything, got %v", got)
	}
	if got := d.Subgraph("unmatched"); len(got) != 0 {
		t.Fatalf("expected empty subgraph, got %v", got)
	}
}

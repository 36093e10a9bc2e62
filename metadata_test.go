package etl

import (
	"testing"
)

func TestVariableMetaMerge(t *testing.T) {
	who := Origin{Producer: "WHO", Title: "GHO"}
	wb := Origin{Producer: "World Bank", Title: "WDI"}

	a := VariableMeta{
		Title:    "Population",
		Unit:     "people",
		Origins:  []Origin{who},
		Licenses: []License{{Name: "CC BY 4.0"}},
	}
	b := VariableMeta{
		Unit:     "people",
		Origins:  []Origin{wb, who},
		Licenses: []License{{Name: "CC BY 4.0"}, {Name: "MIT"}},
	}

	merged, err := a.Merge(b)
	if err != nil {
		t.Fatalf("merging: %v", err)
	}
	if merged.Title != "Population" || merged.Unit != "people" {
		t.Fatalf("merged meta wrong: %+v", merged)
	}
	if len(merged.Origins) != 2 {
		t.Fatalf("origins should be deduplicated union, got %v", merged.Origins)
	}
	// deterministic order by producer
	if merged.Origins[0].Producer != "WHO" || merged.Origins[1].Producer != "World Bank" {
		t.Fatalf("origins not sorted: %v", merged.Origins)
	}
	if len(merged.Licenses) != 2 {
		t.Fatalf("licenses should be deduplicated union, got %v", merged.Licenses)
	}
}

func TestVariableMetaMergeUnitConflict(t *testing.T) {
	a := VariableMeta{Unit: "people"}
	b := VariableMeta{Unit: "thousands"}
	if _, err := a.Merge(b); err == nil {
		t.Fatalf("expected unit conflict error")
	}

	// empty side adopts the other's unit
	c := VariableMeta{}
	merged, err := c.Merge(b)
	if err != nil {
		t.Fatalf("merging with empty unit: %v", err)
	}
	if merged.Unit != "thousands" {
		t.Fatalf("empty unit should adopt other side, got %q", merged.Unit)
	}
}

func TestProcessingLogDedup(t *testing.T) {
	vm := VariableMeta{}
	vm = vm.withStep("rename", "a", "b")
	vm = vm.withStep("rename", "a", "b")
	vm = vm.withStep("merge", "country")
	if len(vm.Processing) != 2 {
		t.Fatalf("duplicate steps should collapse, got %v", vm.Processing)
	}
	if vm.Processing[0].Op != "rename" || vm.Processing[1].Op != "merge" {
		t.Fatalf("log order wrong: %v", vm.Processing)
	}
}

func TestDatasetMetaValidateAndURI(t *testing.T) {
	dm := DatasetMeta{Channel: "harmonize", Namespace: "who", Version: "2026-08-01", ShortName: "gho"}
	if err := dm.Validate(); err != nil {
		t.Fatalf("valid meta rejected: %v", err)
	}
	if dm.URI() != "harmonize/who/2026-08-01/gho" {
		t.Fatalf("unexpected URI: %s", dm.URI())
	}
	bad := DatasetMeta{Namespace: "who", Version: "2026-08-01"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("missing short_name should fail validation")
	}
}

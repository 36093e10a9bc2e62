package etl

import (
	"io/ioutil"
	"path/filepath"
	"testing"
)

func TestHarmonizerPrecedence(t *testing.T) {
	h := NewHarmonizer(
		[]string{"Vietnam", "United States", "Democratic Republic of Congo"},
		Mapping{"USA": "United States", "Vietnam": "Viet Nam (override)"},
	)

	// mapping beats everything, even an exact canonical match
	got, ok := h.Harmonize("Vietnam")
	if !ok || got != "Viet Nam (override)" {
		t.Fatalf("mapping should win: %q %v", got, ok)
	}
	got, ok = h.Harmonize("USA")
	if !ok || got != "United States" {
		t.Fatalf("mapping lookup failed: %q %v", got, ok)
	}
	got, ok = h.Harmonize("United States")
	if !ok || got != "United States" {
		t.Fatalf("exact canonical match failed: %q %v", got, ok)
	}
	// normalized match
	got, ok = h.Harmonize("viet-nam")
	if !ok || got != "Vietnam" {
		t.Fatalf("normalized match failed: %q %v", got, ok)
	}
	if _, ok = h.Harmonize("Atlantis"); ok {
		t.Fatalf("unknown label should not resolve")
	}
}

func TestHarmonizerSuggest(t *testing.T) {
	h := NewHarmonizer([]string{"Congo", "Democratic Republic of Congo", "Chad"}, nil)
	got := h.Suggest("congo")
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %v", got)
	}
	// shortest first
	if got[0] != "Congo" {
		t.Fatalf("suggestions not ordered: %v", got)
	}
}

func TestHarmonizeColumn(t *testing.T) {
	tbl := mustTable(t, "pop",
		mustSeries(t, "country", "viet nam", "Atlantis", nil, "Chad"),
		mustSeries(t, "population", int64(97), int64(0), int64(5), int64(16)),
	)
	h := NewHarmonizer([]string{"Vietnam", "Chad"}, nil)
	out, unmatched, err := tbl.HarmonizeColumn(h, "country")
	if err != nil {
		t.Fatalf("harmonizing: %v", err)
	}
	if len(unmatched) != 1 || unmatched[0] != "Atlantis" {
		t.Fatalf("unexpected unmatched: %v", unmatched)
	}
	if out.Column("country").String(0) != "Vietnam" {
		t.Fatalf("label not harmonized: %v", out.Column("country").At(0))
	}
	// unresolved label kept as-is
	if out.Column("country").String(1) != "Atlantis" {
		t.Fatalf("unresolved label should pass through: %v", out.Column("country").At(1))
	}
	if !out.Column("country").IsNull(2) {
		t.Fatalf("null should stay null")
	}
	steps := out.Column("country").Meta.Processing
	if len(steps) == 0 || steps[len(steps)-1].Op != "harmonize" {
		t.Fatalf("harmonize not logged: %v", steps)
	}

	if _, _, err := tbl.HarmonizeColumn(h, "population"); err == nil {
		t.Fatalf("expected error harmonizing non-string column")
	}
}

func TestMappingLoadSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "who.json")

	// missing file is an empty mapping
	m, err := LoadMapping(path)
	if err != nil {
		t.Fatalf("loading missing mapping: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty mapping, got %v", m)
	}

	m["USA"] = "United States"
	m["Viet Nam"] = "Vietnam"
	if err := m.Save(path); err != nil {
		t.Fatalf("saving mapping: %v", err)
	}
	again, err := LoadMapping(path)
	if err != nil {
		t.Fatalf("reloading mapping: %v", err)
	}
	if again["USA"] != "United States" || again["Viet Nam"] != "Vietnam" {
		t.Fatalf("mapping did not round trip: %v", again)
	}

	buf, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatalf("reading mapping file: %v", err)
	}
	if buf[len(buf)-1] != '\n' {
		t.Fatalf("mapping file should end with a newline")
	}
}

package etl

import (
	"testing"
)

func TestUnderscore(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Country Name", "country_name"},
		{"GDP (current US$)", "gdp_current_us"},
		{"  Life expectancy at birth, total (years)  ", "life_expectancy_at_birth_total_years"},
		{"2020 estimate", "_2020_estimate"},
		{"already_fine", "already_fine"},
	}
	for _, c := range cases {
		got, err := Underscore.Name(c.raw)
		if err != nil {
			t.Fatalf("normalizing %q: %v", c.raw, err)
		}
		if got != c.want {
			t.Fatalf("normalizing %q: got %q, want %q", c.raw, got, c.want)
		}
	}

	if _, err := Underscore.Name("!!!"); err == nil {
		t.Fatalf("expected error for header that normalizes to nothing")
	}
}

func TestNormalizeColumns(t *testing.T) {
	tbl := mustTable(t, "pop",
		mustSeries(t, "Country Name", "France"),
		mustSeries(t, "Population, total", int64(67)),
	)
	out, err := tbl.NormalizeColumns(Underscore)
	if err != nil {
		t.Fatalf("normalizing: %v", err)
	}
	if !out.HasColumn("country_name") || !out.HasColumn("population_total") {
		t.Fatalf("columns not normalized: %v", out.Columns())
	}

	collide := mustTable(t, "bad",
		mustSeries(t, "a b", int64(1)),
		mustSeries(t, "a-b", int64(2)),
	)
	if _, err := collide.NormalizeColumns(Underscore); err == nil {
		t.Fatalf("expected collision error")
	}

	// a namer that drops marked columns
	dropper := NamerFunc(func(raw string) (string, error) {
		if raw == "junk" {
			return "", nil
		}
		return raw, nil
	})
	withJunk := mustTable(t, "t",
		mustSeries(t, "keep", int64(1)),
		mustSeries(t, "junk", int64(2)),
	)
	out, err = withJunk.NormalizeColumns(dropper)
	if err != nil {
		t.Fatalf("normalizing with dropper: %v", err)
	}
	if out.HasColumn("junk") || !out.HasColumn("keep") {
		t.Fatalf("drop namer mishandled: %v", out.Columns())
	}
}

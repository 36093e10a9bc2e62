package formats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/statbase/etl"
)

func sampleTable(t *testing.T) *etl.Table {
	t.Helper()
	country, err := etl.NewSeriesFrom("country", []interface{}{"France", "Chad", nil})
	if err != nil {
		t.Fatalf("building series: %v", err)
	}
	pop, err := etl.NewSeriesFrom("population", []interface{}{int64(67), nil, int64(33)})
	if err != nil {
		t.Fatalf("building series: %v", err)
	}
	pop = pop.WithMeta(etl.VariableMeta{
		Title:   "Population",
		Unit:    "people",
		Origins: []etl.Origin{{Producer: "WB", Title: "WDI"}},
	})
	gdp, err := etl.NewSeriesFrom("gdp", []interface{}{2.6, 0.02, nil})
	if err != nil {
		t.Fatalf("building series: %v", err)
	}
	urban, err := etl.NewSeriesFrom("urban", []interface{}{true, false, nil})
	if err != nil {
		t.Fatalf("building series: %v", err)
	}
	tbl, err := etl.NewTable("pop", country, pop, gdp, urban)
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	if err := tbl.SetPrimaryKey("country"); err != nil {
		t.Fatalf("setting key: %v", err)
	}
	return tbl
}

func checkRoundTrip(t *testing.T, got, want *etl.Table) {
	t.Helper()
	if got.Len() != want.Len() || got.NumColumns() != want.NumColumns() {
		t.Fatalf("shape changed: %dx%d vs %dx%d", got.Len(), got.NumColumns(), want.Len(), want.NumColumns())
	}
	for _, name := range want.Columns() {
		w, g := want.Column(name), got.Column(name)
		if g == nil {
			t.Fatalf("column %q missing after round trip", name)
		}
		if g.DType() != w.DType() {
			t.Fatalf("column %q changed type: %v vs %v", name, g.DType(), w.DType())
		}
		for i := 0; i < w.Len(); i++ {
			if w.IsNull(i) != g.IsNull(i) {
				t.Fatalf("column %q null mismatch at row %d", name, i)
			}
			if !w.IsNull(i) && w.At(i) != g.At(i) {
				t.Fatalf("column %q row %d: %v != %v", name, i, g.At(i), w.At(i))
			}
		}
	}
}

func TestDetect(t *testing.T) {
	cases := map[string]Format{
		"a/b.feather": Feather,
		"a/b.parquet": Parquet,
		"a/b.CSV":     CSV,
	}
	for path, want := range cases {
		got, err := Detect(path)
		if err != nil {
			t.Fatalf("detecting %s: %v", path, err)
		}
		if got != want {
			t.Fatalf("detecting %s: got %v", path, got)
		}
	}
	if _, err := Detect("a/b.xlsx"); err == nil {
		t.Fatalf("expected error for unknown extension")
	}
}

func TestFeatherRoundTrip(t *testing.T) {
	want := sampleTable(t)
	path := filepath.Join(t.TempDir(), "pop.feather")
	if err := Write(want, path); err != nil {
		t.Fatalf("writing feather: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("reading feather: %v", err)
	}
	checkRoundTrip(t, got, want)

	// metadata came back through the sidecar
	if got.Column("population").Meta.Unit != "people" {
		t.Fatalf("variable metadata lost: %+v", got.Column("population").Meta)
	}
	if len(got.Meta.PrimaryKey) != 1 || got.Meta.PrimaryKey[0] != "country" {
		t.Fatalf("table metadata lost: %+v", got.Meta)
	}
}

func TestParquetRoundTrip(t *testing.T) {
	want := sampleTable(t)
	path := filepath.Join(t.TempDir(), "pop.parquet")
	if err := Write(want, path); err != nil {
		t.Fatalf("writing parquet: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("reading parquet: %v", err)
	}
	checkRoundTrip(t, got, want)
}

func TestCSVRoundTrip(t *testing.T) {
	want := sampleTable(t)
	path := filepath.Join(t.TempDir(), "pop.csv")
	if err := Write(want, path); err != nil {
		t.Fatalf("writing csv: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	checkRoundTrip(t, got, want)
}

func TestReadWithoutSidecarIsLegal(t *testing.T) {
	want := sampleTable(t)
	path := filepath.Join(t.TempDir(), "pop.csv")
	if err := Write(want, path); err != nil {
		t.Fatalf("writing csv: %v", err)
	}
	if err := os.Remove(SidecarPath(path)); err != nil {
		t.Fatalf("removing sidecar: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("reading without sidecar: %v", err)
	}
	if got.Column("population").Meta.Unit != "" {
		t.Fatalf("metadata should be empty without a sidecar")
	}
}

func TestReadCSVTypeInference(t *testing.T) {
	in := "country,year,share,flag\nFrance,2020,0.5,true\nChad,2021,,false\n,2022,0.25,\n"
	tbl, err := ReadCSVFrom(strings.NewReader(in))
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if tbl.Column("country").DType() != etl.TypeString {
		t.Fatalf("country should be string")
	}
	if tbl.Column("year").DType() != etl.TypeInt {
		t.Fatalf("year should be int64, got %v", tbl.Column("year").DType())
	}
	if tbl.Column("share").DType() != etl.TypeFloat {
		t.Fatalf("share should be float64")
	}
	if tbl.Column("flag").DType() != etl.TypeBool {
		t.Fatalf("flag should be bool")
	}
	if !tbl.Column("share").IsNull(1) || !tbl.Column("country").IsNull(2) {
		t.Fatalf("empty cells should be nulls")
	}
}

func TestReadCSVBadHeader(t *testing.T) {
	if _, err := ReadCSVFrom(strings.NewReader("a,a\n1,2\n")); err == nil {
		t.Fatalf("expected duplicate header error")
	}
	if _, err := ReadCSVFrom(strings.NewReader("a,\n1,2\n")); err == nil {
		t.Fatalf("expected empty header error")
	}
}

func TestReadJSONL(t *testing.T) {
	in := `{"country":"France","population":67.5}
{"country":"Chad","urban":false}
`
	tbl, err := ReadJSONL(strings.NewReader(in))
	if err != nil {
		t.Fatalf("reading jsonl: %v", err)
	}
	if tbl.Len() != 2 || tbl.NumColumns() != 3 {
		t.Fatalf("unexpected shape: %dx%d", tbl.Len(), tbl.NumColumns())
	}
	// union of keys, sorted
	cols := tbl.Columns()
	if cols[0] != "country" || cols[1] != "population" || cols[2] != "urban" {
		t.Fatalf("unexpected columns: %v", cols)
	}
	if !tbl.Column("urban").IsNull(0) || !tbl.Column("population").IsNull(1) {
		t.Fatalf("missing keys should be nulls")
	}

	if _, err := ReadJSONL(strings.NewReader(`{"a":{"nested":1}}`)); err == nil {
		t.Fatalf("expected error for nested value")
	}
}

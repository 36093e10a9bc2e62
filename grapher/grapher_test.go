package grapher

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/statbase/etl"
	"github.com/statbase/etl/catalog"
)

func harmonizedDataset(t *testing.T) *catalog.Dataset {
	t.Helper()
	c := catalog.NewLocal(t.TempDir())
	ds, err := c.Create(etl.DatasetMeta{
		Channel:   catalog.ChannelHarmonize,
		Namespace: "who",
		Version:   "2026-08-01",
		ShortName: "gho",
	})
	if err != nil {
		t.Fatalf("creating dataset: %v", err)
	}

	country, err := etl.NewSeriesFrom("country", []interface{}{"France", "France", "Chad", nil})
	if err != nil {
		t.Fatalf("building series: %v", err)
	}
	year, err := etl.NewSeriesFrom("year", []interface{}{2019, 2020, 2020, 2020})
	if err != nil {
		t.Fatalf("building series: %v", err)
	}
	life, err := etl.NewSeriesFrom("life_expectancy", []interface{}{82.3, 82.5, nil, 54.0})
	if err != nil {
		t.Fatalf("building series: %v", err)
	}
	life = life.WithMeta(etl.VariableMeta{Title: "Life expectancy", Unit: "years"})
	tbl, err := etl.NewTable("gho", country, year, life)
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	if err := ds.AddTable(tbl); err != nil {
		t.Fatalf("adding table: %v", err)
	}
	return ds
}

func TestImport(t *testing.T) {
	ds := harmonizedDataset(t)
	dir := t.TempDir()
	reg := etl.NewMapRegistry()
	im := NewImporter(dir, reg)

	if err := im.Import(ds); err != nil {
		t.Fatalf("importing: %v", err)
	}

	data, err := ioutil.ReadFile(filepath.Join(dir, "datapoints", "gho__gho__life_expectancy.csv"))
	if err != nil {
		t.Fatalf("reading datapoints: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "entity_id,year,value" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	// the Chad null value and the null-country row are both dropped
	if len(lines) != 3 {
		t.Fatalf("expected 2 datapoint rows, got %v", lines)
	}
	franceID, err := reg.GetID("entity", "France")
	if err != nil {
		t.Fatalf("getting id: %v", err)
	}
	wantID := strconv.FormatUint(franceID, 10)
	want := []string{"2019,82.3", "2020,82.5"}
	for i, line := range lines[1:] {
		if line != wantID+","+want[i] {
			t.Fatalf("unexpected row %d: %s", i, line)
		}
	}

	var variables map[string]struct {
		Dataset  string `json:"dataset"`
		Variable string `json:"variable"`
		File     string `json:"file"`
		Meta     struct {
			Unit string `json:"unit"`
		} `json:"meta"`
	}
	buf, err := ioutil.ReadFile(filepath.Join(dir, "variables.json"))
	if err != nil {
		t.Fatalf("reading variables manifest: %v", err)
	}
	if err := json.Unmarshal(buf, &variables); err != nil {
		t.Fatalf("parsing variables manifest: %v", err)
	}
	v, ok := variables["gho__gho__life_expectancy"]
	if !ok {
		t.Fatalf("variable missing from manifest: %v", variables)
	}
	if v.Variable != "life_expectancy" || v.Meta.Unit != "years" {
		t.Fatalf("unexpected variable record: %+v", v)
	}
	if v.File != filepath.Join("datapoints", "gho__gho__life_expectancy.csv") {
		t.Fatalf("unexpected file path: %s", v.File)
	}

	var entities []struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	}
	buf, err = ioutil.ReadFile(filepath.Join(dir, "entities.json"))
	if err != nil {
		t.Fatalf("reading entities manifest: %v", err)
	}
	if err := json.Unmarshal(buf, &entities); err != nil {
		t.Fatalf("parsing entities manifest: %v", err)
	}
	// Chad's value was null but its row keys were present, so it still
	// gets an entity id
	if len(entities) != 2 {
		t.Fatalf("expected France and Chad, got %+v", entities)
	}
}

func TestImportStableIDs(t *testing.T) {
	dir := t.TempDir()
	reg := etl.NewMapRegistry()
	im := NewImporter(dir, reg)

	ds := harmonizedDataset(t)
	if err := im.Import(ds); err != nil {
		t.Fatalf("importing: %v", err)
	}
	firstID, err := reg.GetID("entity", "France")
	if err != nil {
		t.Fatalf("getting id: %v", err)
	}

	if err := im.Import(ds); err != nil {
		t.Fatalf("reimporting: %v", err)
	}
	secondID, err := reg.GetID("entity", "France")
	if err != nil {
		t.Fatalf("getting id: %v", err)
	}
	if firstID != secondID {
		t.Fatalf("entity id changed across imports: %d vs %d", firstID, secondID)
	}

	var entities []struct {
		ID uint64 `json:"id"`
	}
	buf, err := ioutil.ReadFile(filepath.Join(dir, "entities.json"))
	if err != nil {
		t.Fatalf("reading entities manifest: %v", err)
	}
	if err := json.Unmarshal(buf, &entities); err != nil {
		t.Fatalf("parsing entities manifest: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("reimport should not duplicate entities: %+v", entities)
	}
}

func TestImportRequiresKeyColumns(t *testing.T) {
	c := catalog.NewLocal(t.TempDir())
	ds, err := c.Create(etl.DatasetMeta{
		Channel:   catalog.ChannelHarmonize,
		Namespace: "who",
		Version:   "2026-08-01",
		ShortName: "gho",
	})
	if err != nil {
		t.Fatalf("creating dataset: %v", err)
	}
	val, err := etl.NewSeriesFrom("value", []interface{}{1.0})
	if err != nil {
		t.Fatalf("building series: %v", err)
	}
	tbl, err := etl.NewTable("noyear", val)
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	if err := ds.AddTable(tbl); err != nil {
		t.Fatalf("adding table: %v", err)
	}

	im := NewImporter(t.TempDir(), etl.NewMapRegistry())
	if err := im.Import(ds); err == nil {
		t.Fatalf("expected error for missing key columns")
	}
}

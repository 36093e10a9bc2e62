package catalog

import (
	"path/filepath"
	"testing"
)

func TestIndexReindexAndFind(t *testing.T) {
	c := NewLocal(t.TempDir())
	for _, name := range []string{"gho", "air_quality"} {
		ds, err := c.Create(sampleMeta(ChannelFormat, name))
		if err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		if err := ds.AddTable(sampleTable(t)); err != nil {
			t.Fatalf("adding table: %v", err)
		}
	}

	ix, err := OpenIndex(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	defer ix.Close()
	if err := ix.Reindex(c); err != nil {
		t.Fatalf("reindexing: %v", err)
	}

	rows, err := ix.FindTables("air_quality")
	if err != nil {
		t.Fatalf("finding tables: %v", err)
	}
	if len(rows) != 1 || rows[0].Dataset != "format/who/2026-08-01/air_quality" {
		t.Fatalf("unexpected table rows: %+v", rows)
	}

	rows, err = ix.FindVariables("life_expectancy")
	if err != nil {
		t.Fatalf("finding variables: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected one variable per dataset, got %+v", rows)
	}
	if rows[0].Variable != "life_expectancy" || rows[0].Unit != "years" {
		t.Fatalf("variable metadata not indexed: %+v", rows[0])
	}

	rows, err = ix.FindVariables("no_such_thing")
	if err != nil {
		t.Fatalf("finding variables: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no matches, got %+v", rows)
	}
}

func TestIndexReindexDropsStaleEntries(t *testing.T) {
	c := NewLocal(t.TempDir())
	ds, err := c.Create(sampleMeta(ChannelFormat, "gho"))
	if err != nil {
		t.Fatalf("creating dataset: %v", err)
	}
	if err := ds.AddTable(sampleTable(t)); err != nil {
		t.Fatalf("adding table: %v", err)
	}

	ix, err := OpenIndex(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	defer ix.Close()
	if err := ix.Reindex(c); err != nil {
		t.Fatalf("reindexing: %v", err)
	}

	if err := c.Remove("format/who/2026-08-01/gho"); err != nil {
		t.Fatalf("removing dataset: %v", err)
	}
	if err := ix.Reindex(c); err != nil {
		t.Fatalf("reindexing after remove: %v", err)
	}
	rows, err := ix.FindTables("gho")
	if err != nil {
		t.Fatalf("finding tables: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("stale entries survived reindex: %+v", rows)
	}
}

package etl

import (
	"io/ioutil"
	"path/filepath"
	"testing"
)

func TestTableChecksum(t *testing.T) {
	build := func() *Table {
		tbl := mustTable(t, "pop",
			mustSeries(t, "country", "France", "Chad"),
			mustSeries(t, "population", int64(67), nil),
		)
		tbl.Column("population").Meta = VariableMeta{Unit: "people"}
		return tbl
	}
	a, err := build().Checksum()
	if err != nil {
		t.Fatalf("checksumming: %v", err)
	}
	b, err := build().Checksum()
	if err != nil {
		t.Fatalf("checksumming: %v", err)
	}
	if a != b {
		t.Fatalf("identical tables should hash the same: %s vs %s", a, b)
	}

	changed := build()
	changed.cols[1].values[0] = int64(68)
	c, err := changed.Checksum()
	if err != nil {
		t.Fatalf("checksumming: %v", err)
	}
	if c == a {
		t.Fatalf("changed value should change the checksum")
	}

	remeta := build()
	remeta.Column("population").Meta = VariableMeta{Unit: "thousands"}
	d, err := remeta.Checksum()
	if err != nil {
		t.Fatalf("checksumming: %v", err)
	}
	if d == a {
		t.Fatalf("changed metadata should change the checksum")
	}
}

func TestChecksumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := ioutil.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	got, err := ChecksumFile(path)
	if err != nil {
		t.Fatalf("checksumming file: %v", err)
	}
	// md5("hello")
	if got != "5d41402abc4b2a76b9719d911017c592" {
		t.Fatalf("unexpected checksum: %s", got)
	}
}

// Package formats serializes tables to and from the on-disk formats the
// catalog convention uses: Feather (Arrow IPC) as the primary format,
// Parquet for wide interoperability, CSV and JSON lines for raw snapshot
// payloads. Data files never carry metadata themselves; every table file
// has a `.meta.json` sidecar with the table and per-variable metadata, so
// metadata survives any tool that rewrites the data.
package formats

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// Format names a table serialization.
type Format string

// Supported table formats.
const (
	Feather Format = "feather"
	Parquet Format = "parquet"
	CSV     Format = "csv"
)

// Detect returns the format for a data file path based on its extension.
func Detect(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".feather", ".arrow":
		return Feather, nil
	case ".parquet", ".pq":
		return Parquet, nil
	case ".csv":
		return CSV, nil
	}
	return "", errors.Errorf("no known format for %q", path)
}

// Write serializes the table to path in the format implied by its
// extension and writes the metadata sidecar next to it.
func Write(t *etl.Table, path string) error {
	format, err := Detect(path)
	if err != nil {
		return err
	}
	switch format {
	case Feather:
		err = WriteFeather(t, path)
	case Parquet:
		err = WriteParquet(t, path)
	case CSV:
		err = WriteCSV(t, path)
	}
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrap(writeMetaSidecar(t, path), "writing metadata sidecar")
}

// Read loads a table from path, restoring metadata from the sidecar if one
// exists.
func Read(path string) (*etl.Table, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}
	var t *etl.Table
	switch format {
	case Feather:
		t, err = ReadFeather(path)
	case Parquet:
		t, err = ReadParquet(path)
	case CSV:
		t, err = ReadCSV(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if err := readMetaSidecar(t, path); err != nil {
		return nil, errors.Wrap(err, "reading metadata sidecar")
	}
	return t, nil
}

// metaSidecar is the JSON structure stored in `.meta.json` files.
type metaSidecar struct {
	Table     etl.TableMeta               `json:"table"`
	Variables map[string]etl.VariableMeta `json:"variables"`
}

// SidecarPath returns the metadata sidecar path for a data file.
func SidecarPath(dataPath string) string {
	return strings.TrimSuffix(dataPath, filepath.Ext(dataPath)) + ".meta.json"
}

func writeMetaSidecar(t *etl.Table, dataPath string) error {
	sc := metaSidecar{
		Table:     t.Meta,
		Variables: make(map[string]etl.VariableMeta, t.NumColumns()),
	}
	for _, name := range t.Columns() {
		sc.Variables[name] = t.Column(name).Meta
	}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling")
	}
	return ioutil.WriteFile(SidecarPath(dataPath), append(data, '\n'), 0644)
}

func readMetaSidecar(t *etl.Table, dataPath string) error {
	data, err := ioutil.ReadFile(SidecarPath(dataPath))
	if err != nil {
		// data files without sidecars are legal, they just carry no metadata
		return nil
	}
	sc := metaSidecar{}
	if err := json.Unmarshal(data, &sc); err != nil {
		return errors.Wrap(err, "unmarshaling")
	}
	t.Meta = sc.Table
	for name, meta := range sc.Variables {
		if t.HasColumn(name) {
			if err := t.SetColumnMeta(name, meta); err != nil {
				return err
			}
		}
	}
	return nil
}

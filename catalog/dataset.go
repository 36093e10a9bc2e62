// Package catalog implements the local data catalog: versioned datasets of
// tables arranged by channel, an index for finding variables, and
// publishing to a remote bucket.
package catalog

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
	"github.com/statbase/etl/formats"
)

// indexFile is the name of the dataset metadata file inside a dataset
// directory.
const indexFile = "index.json"

// Dataset is a directory holding one serialized table per file plus an
// index.json with the dataset metadata.
type Dataset struct {
	Path string
	Meta etl.DatasetMeta
}

// CreateDataset makes (or replaces) a dataset directory. Any previous
// contents are removed so a partially rebuilt dataset can't mix old and
// new tables.
func CreateDataset(path string, meta etl.DatasetMeta) (*Dataset, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, errors.Wrap(err, "clearing dataset directory")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrap(err, "making dataset directory")
	}
	d := &Dataset{Path: path, Meta: meta}
	if err := d.writeIndex(); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenDataset loads an existing dataset's metadata.
func OpenDataset(path string) (*Dataset, error) {
	data, err := ioutil.ReadFile(filepath.Join(path, indexFile))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", filepath.Join(path, indexFile))
	}
	d := &Dataset{Path: path}
	if err := json.Unmarshal(data, &d.Meta); err != nil {
		return nil, errors.Wrap(err, "parsing dataset metadata")
	}
	return d, nil
}

func (d *Dataset) writeIndex() error {
	data, err := json.MarshalIndent(d.Meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling dataset metadata")
	}
	return errors.Wrap(ioutil.WriteFile(filepath.Join(d.Path, indexFile), append(data, '\n'), 0644), "writing index.json")
}

// AddTable serializes a table into the dataset as Feather. The table's
// metadata gets a backref to the dataset so a table read in isolation
// still knows its provenance.
func (d *Dataset) AddTable(t *etl.Table) error {
	if t.Meta.ShortName == "" {
		return errors.New("table has no short name")
	}
	t.Meta.Dataset = &d.Meta
	return formats.Write(t, filepath.Join(d.Path, t.Meta.ShortName+".feather"))
}

// Table reads the named table back.
func (d *Dataset) Table(shortName string) (*etl.Table, error) {
	return formats.Read(filepath.Join(d.Path, shortName+".feather"))
}

// TableNames lists the tables in the dataset.
func (d *Dataset) TableNames() ([]string, error) {
	entries, err := ioutil.ReadDir(d.Path)
	if err != nil {
		return nil, errors.Wrap(err, "reading dataset directory")
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".feather") {
			names = append(names, strings.TrimSuffix(e.Name(), ".feather"))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Checksum hashes every file in the dataset directory, which is what the
// step runner records to decide whether downstream steps are dirty.
func (d *Dataset) Checksum() (string, error) {
	entries, err := ioutil.ReadDir(d.Path)
	if err != nil {
		return "", errors.Wrap(err, "reading dataset directory")
	}
	h := md5.New()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		sum, err := etl.ChecksumFile(filepath.Join(d.Path, e.Name()))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%s\x00", e.Name(), sum)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// Channels of the catalog, in build order. Snapshots live outside the
// catalog in the snapshot store; publish is a remote copy of the whole
// catalog, not a channel of its own.
const (
	ChannelFormat    = "format"
	ChannelHarmonize = "harmonize"
	ChannelImport    = "import"
)

// Channels lists the catalog channels in build order.
var Channels = []string{ChannelFormat, ChannelHarmonize, ChannelImport}

// Local is a catalog rooted at a directory, laid out as
// <dir>/<channel>/<namespace>/<version>/<dataset>.
type Local struct {
	Dir string
}

// NewLocal returns a catalog rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

// DatasetPath returns where a dataset lives (or would live).
func (c *Local) DatasetPath(channel, namespace, version, shortName string) string {
	return filepath.Join(c.Dir, channel, namespace, version, shortName)
}

// Create makes a fresh dataset in the catalog from its metadata.
func (c *Local) Create(meta etl.DatasetMeta) (*Dataset, error) {
	if meta.Channel == "" {
		return nil, errors.New("dataset metadata missing channel")
	}
	return CreateDataset(c.DatasetPath(meta.Channel, meta.Namespace, meta.Version, meta.ShortName), meta)
}

// Dataset opens a dataset by address.
func (c *Local) Dataset(channel, namespace, version, shortName string) (*Dataset, error) {
	return OpenDataset(c.DatasetPath(channel, namespace, version, shortName))
}

// Has reports whether the dataset exists locally.
func (c *Local) Has(channel, namespace, version, shortName string) bool {
	_, err := os.Stat(filepath.Join(c.DatasetPath(channel, namespace, version, shortName), indexFile))
	return err == nil
}

// List walks the catalog and returns the URIs of all datasets
// (channel/namespace/version/short_name), sorted.
func (c *Local) List() ([]string, error) {
	var uris []string
	err := filepath.Walk(c.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Base(path) != indexFile {
			return nil
		}
		rel, err := filepath.Rel(c.Dir, filepath.Dir(path))
		if err != nil {
			return err
		}
		uris = append(uris, filepath.ToSlash(rel))
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "walking catalog")
	}
	sort.Strings(uris)
	return uris, nil
}

// Remove deletes a dataset from the local catalog. The gc command uses it
// for datasets that fell out of the DAG.
func (c *Local) Remove(uri string) error {
	parts := strings.Split(uri, "/")
	if len(parts) != 4 {
		return errors.Errorf("malformed dataset URI %q", uri)
	}
	return errors.Wrapf(os.RemoveAll(filepath.Join(c.Dir, filepath.FromSlash(uri))), "removing %s", uri)
}

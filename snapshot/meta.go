package snapshot

import (
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/statbase/etl"
)

// Meta is the provenance half of a snapshot sidecar: everything a reader
// needs to know about where the bytes came from and whether they may be
// redistributed.
type Meta struct {
	Namespace string      `yaml:"namespace"`
	Version   string      `yaml:"version"`
	ShortName string      `yaml:"short_name"`
	Origin    etl.Origin  `yaml:"origin"`
	License   etl.License `yaml:"license,omitempty"`
	IsPublic  bool        `yaml:"is_public"`
}

// Out records the checksum, size, and relative path of a snapshot's payload
// file, in the manner of a DVC stage file.
type Out struct {
	MD5  string `yaml:"md5"`
	Size int64  `yaml:"size"`
	Path string `yaml:"path"`
}

// Sidecar is the full contents of a snapshot's `.dvc` file: provenance
// metadata plus the payload checksum. The sidecar, not the payload, is what
// gets committed to version control.
type Sidecar struct {
	Meta Meta  `yaml:"meta"`
	Outs []Out `yaml:"outs"`
}

// Validate checks the sidecar addresses exactly one payload and can be
// placed in the store.
func (sc *Sidecar) Validate() error {
	if sc.Meta.Namespace == "" || sc.Meta.Version == "" || sc.Meta.ShortName == "" {
		return errors.New("sidecar missing namespace, version, or short_name")
	}
	if len(sc.Outs) != 1 {
		return errors.Errorf("sidecar must have exactly one out, has %d", len(sc.Outs))
	}
	if sc.Outs[0].MD5 == "" {
		return errors.New("sidecar out missing md5")
	}
	return nil
}

// ReadSidecar loads and validates a sidecar file.
func ReadSidecar(path string) (*Sidecar, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sidecar %s", path)
	}
	sc := &Sidecar{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, errors.Wrapf(err, "parsing sidecar %s", path)
	}
	if err := sc.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validating sidecar %s", path)
	}
	return sc, nil
}

// Write stores the sidecar at path.
func (sc *Sidecar) Write(path string) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(sc)
	if err != nil {
		return errors.Wrap(err, "marshaling sidecar")
	}
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing sidecar %s", path)
	}
	return nil
}

// SidecarExists reports whether a sidecar file is present at path.
func SidecarExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

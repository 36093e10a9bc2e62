package etl

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Checksum returns a stable MD5 over the table's schema, values, and
// metadata. Two tables with identical content and metadata hash the same
// regardless of how they were built, which is what the step runner's dirty
// detection relies on.
func (t *Table) Checksum() (string, error) {
	h := md5.New()
	metaJSON, err := json.Marshal(t.Meta)
	if err != nil {
		return "", errors.Wrap(err, "marshaling table metadata")
	}
	h.Write(metaJSON)
	for _, c := range t.cols {
		fmt.Fprintf(h, "%s\x00%s\x00", c.Name, c.DType())
		colMeta, err := json.Marshal(c.Meta)
		if err != nil {
			return "", errors.Wrapf(err, "marshaling metadata for %q", c.Name)
		}
		h.Write(colMeta)
		for i := 0; i < c.Len(); i++ {
			if c.IsNull(i) {
				h.Write([]byte{0})
				continue
			}
			fmt.Fprintf(h, "%v\x00", c.At(i))
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// ChecksumFile returns the MD5 of a file's contents, matching what the
// snapshot sidecars record.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

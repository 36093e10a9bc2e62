package snapshot

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// FileSource is an etl.RawSource over the payload files under a directory
// of the store. Sidecars are skipped - they describe payloads, they aren't
// data. The upload command and the publish step both walk stores this way.
type FileSource struct {
	files   []string
	fileIdx *uint64
}

// NewFileSource walks pathname (a file or a directory tree) and returns a
// source over the payload files found.
func NewFileSource(pathname string) (*FileSource, error) {
	fileIdx := uint64(0)
	s := &FileSource{
		fileIdx: &fileIdx,
	}
	info, err := os.Stat(pathname)
	if err != nil {
		return nil, errors.Wrap(err, "statting path")
	}
	if !info.IsDir() {
		s.files = []string{pathname}
		return s, nil
	}
	err = filepath.Walk(pathname, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".dvc") {
			return nil
		}
		s.files = append(s.files, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walking directory")
	}
	return s, nil
}

// NextReader returns the next payload. Concurrent callers each get a
// distinct file; io.EOF signals exhaustion.
func (s *FileSource) NextReader() (etl.NamedReadCloser, error) {
	idx := atomic.AddUint64(s.fileIdx, 1) - 1
	if int(idx) >= len(s.files) {
		return nil, io.EOF
	}

	file, err := os.Open(s.files[idx])
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", s.files[idx])
	}
	return &namedFile{file}, nil
}

// Files returns the paths this source will yield, in order.
func (s *FileSource) Files() []string {
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

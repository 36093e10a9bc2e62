package snapshot

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// Downloader fetches a snapshot payload by its store key into a local file.
// The s3 subpackage provides the bucket-backed implementation; upstream
// URLs are handled by the store itself.
type Downloader interface {
	Download(key, dest string) error
}

// Uploader pushes a snapshot payload under its store key.
type Uploader interface {
	Upload(src, key string) error
}

// Store is a local snapshot directory laid out as
// <dir>/<namespace>/<version>/<short_name> with a `.dvc` sidecar next to
// each payload.
type Store struct {
	Dir    string
	Bucket Downloader

	Log etl.Logger
}

// StoreOption is a functional option for Store.
type StoreOption func(st *Store)

// OptStoreBucket sets the bucket payloads are fetched from when the
// upstream URL is not available.
func OptStoreBucket(b Downloader) StoreOption {
	return func(st *Store) {
		st.Bucket = b
	}
}

// OptStoreLogger sets the logger.
func OptStoreLogger(l etl.Logger) StoreOption {
	return func(st *Store) {
		st.Log = l
	}
}

// NewStore returns a store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	st := &Store{Dir: dir, Log: etl.NopLogger{}}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Key returns the store key of a snapshot, which doubles as its bucket
// object key.
func (st *Store) Key(namespace, version, shortName string) string {
	return namespace + "/" + version + "/" + shortName
}

// Path returns the local payload path for a snapshot.
func (st *Store) Path(namespace, version, shortName string) string {
	return filepath.Join(st.Dir, namespace, version, shortName)
}

// SidecarPath returns the local sidecar path for a snapshot.
func (st *Store) SidecarPath(namespace, version, shortName string) string {
	return st.Path(namespace, version, shortName) + ".dvc"
}

// Add registers a local file as a snapshot: copies it into the store,
// checksums it, and writes the sidecar. This is how hand-downloaded or
// generated files enter the pipeline.
func (st *Store) Add(src string, meta Meta) (*Sidecar, error) {
	dest := st.Path(meta.Namespace, meta.Version, meta.ShortName)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, errors.Wrap(err, "making snapshot directory")
	}
	if err := copyFile(src, dest); err != nil {
		return nil, errors.Wrap(err, "copying payload")
	}
	sum, err := etl.ChecksumFile(dest)
	if err != nil {
		return nil, errors.Wrap(err, "checksumming payload")
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, errors.Wrap(err, "statting payload")
	}
	sc := &Sidecar{
		Meta: meta,
		Outs: []Out{{MD5: sum, Size: info.Size(), Path: meta.ShortName}},
	}
	if err := sc.Write(st.SidecarPath(meta.Namespace, meta.Version, meta.ShortName)); err != nil {
		return nil, err
	}
	return sc, nil
}

// Fetch ensures the payload named by the sidecar is present locally and
// matches its checksum. An intact local copy is left alone; otherwise the
// payload is downloaded from the origin's download URL, falling back to the
// snapshot bucket.
func (st *Store) Fetch(namespace, version, shortName string) (*Sidecar, error) {
	sc, err := ReadSidecar(st.SidecarPath(namespace, version, shortName))
	if err != nil {
		return nil, err
	}
	dest := st.Path(namespace, version, shortName)
	if ok, _ := st.verify(dest, sc); ok {
		st.Log.Debugf("snapshot %s up to date", st.Key(namespace, version, shortName))
		return sc, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, errors.Wrap(err, "making snapshot directory")
	}
	if sc.Meta.Origin.URLDownload != "" {
		st.Log.Printf("downloading %s from %s", shortName, sc.Meta.Origin.URLDownload)
		err = downloadURL(sc.Meta.Origin.URLDownload, dest)
	} else if st.Bucket != nil {
		st.Log.Printf("downloading %s from snapshot bucket", shortName)
		err = st.Bucket.Download(st.Key(namespace, version, shortName), dest)
	} else {
		return nil, errors.Errorf("snapshot %s has no download URL and no bucket is configured", shortName)
	}
	if err != nil {
		return nil, errors.Wrap(err, "downloading payload")
	}
	if ok, sum := st.verify(dest, sc); !ok {
		return nil, errors.Errorf("downloaded %s has checksum %s, sidecar says %s", shortName, sum, sc.Outs[0].MD5)
	}
	return sc, nil
}

// Verify reports whether the local payload matches its sidecar.
func (st *Store) Verify(namespace, version, shortName string) error {
	sc, err := ReadSidecar(st.SidecarPath(namespace, version, shortName))
	if err != nil {
		return err
	}
	ok, sum := st.verify(st.Path(namespace, version, shortName), sc)
	if !ok {
		return errors.Errorf("snapshot %s/%s/%s checksum mismatch: got %s, want %s",
			namespace, version, shortName, sum, sc.Outs[0].MD5)
	}
	return nil
}

func (st *Store) verify(path string, sc *Sidecar) (bool, string) {
	if _, err := os.Stat(path); err != nil {
		return false, ""
	}
	sum, err := etl.ChecksumFile(path)
	if err != nil {
		return false, ""
	}
	return sum == sc.Outs[0].MD5, sum
}

// Open returns the payload for reading, fetching it first if needed.
func (st *Store) Open(namespace, version, shortName string) (etl.NamedReadCloser, error) {
	if _, err := st.Fetch(namespace, version, shortName); err != nil {
		return nil, err
	}
	f, err := os.Open(st.Path(namespace, version, shortName))
	if err != nil {
		return nil, errors.Wrap(err, "opening payload")
	}
	return &namedFile{f}, nil
}

type namedFile struct {
	*os.File
}

func (n *namedFile) Name() string {
	return filepath.Base(n.File.Name())
}

func downloadURL(url, dest string) error {
	resp, err := http.Get(url)
	if err != nil {
		return errors.Wrapf(err, "getting %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.Errorf("getting %s: status %d", url, resp.StatusCode)
	}
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return errors.Wrap(err, "writing payload")
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, "copying")
	}
	return out.Close()
}

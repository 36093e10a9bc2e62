package catalog

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
	"github.com/statbase/etl/snapshot"
)

// remoteManifest is the file a published catalog keeps at its root so
// publishers can skip unchanged files and clients can list datasets
// without walking the bucket.
const remoteManifest = "catalog.meta.json"

// Manifest maps catalog-relative paths to their checksums, plus when the
// catalog was last published.
type Manifest struct {
	UpdatedAt string            `json:"updated_at"`
	Files     map[string]string `json:"files"`
}

// Bucket is what publishing needs from remote storage. The s3 client
// satisfies it.
type Bucket interface {
	Upload(src, key string) error
	Download(key, dest string) error
}

// Publisher syncs a local catalog to a bucket, content-addressed: a file
// is uploaded only when its checksum differs from the remote manifest's
// record of it.
type Publisher struct {
	Catalog *Local
	Bucket  Bucket

	Log   etl.Logger
	Stats etl.Statter
}

// NewPublisher returns a publisher with nop logging and stats.
func NewPublisher(c *Local, b Bucket) *Publisher {
	return &Publisher{Catalog: c, Bucket: b, Log: etl.NopLogger{}, Stats: etl.NopStatter{}}
}

// Publish uploads changed files and then the new manifest. The manifest
// goes last so a reader never sees entries for files that aren't uploaded
// yet.
func (p *Publisher) Publish() error {
	old, err := p.remote()
	if err != nil {
		return err
	}
	src, err := snapshot.NewFileSource(p.Catalog.Dir)
	if err != nil {
		return errors.Wrap(err, "walking catalog")
	}
	manifest := &Manifest{
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Files:     map[string]string{},
	}
	for _, path := range src.Files() {
		rel, err := filepath.Rel(p.Catalog.Dir, path)
		if err != nil {
			return errors.Wrap(err, "relativizing path")
		}
		key := filepath.ToSlash(rel)
		sum, err := etl.ChecksumFile(path)
		if err != nil {
			return err
		}
		manifest.Files[key] = sum
		if old.Files[key] == sum {
			p.Stats.Count("publish.skipped", 1, 1)
			continue
		}
		p.Log.Printf("uploading %s", key)
		if err := p.Bucket.Upload(path, key); err != nil {
			return errors.Wrapf(err, "uploading %s", key)
		}
		p.Stats.Count("publish.uploaded", 1, 1)
	}
	return p.writeRemote(manifest)
}

// remote fetches the currently published manifest; a missing manifest is
// an empty catalog.
func (p *Publisher) remote() (*Manifest, error) {
	tmp, err := ioutil.TempFile("", "catalog-manifest")
	if err != nil {
		return nil, errors.Wrap(err, "creating temp file")
	}
	tmp.Close()
	defer os.Remove(tmp.Name())
	if err := p.Bucket.Download(remoteManifest, tmp.Name()); err != nil {
		p.Log.Debugf("no remote manifest (%v), publishing everything", err)
		return &Manifest{Files: map[string]string{}}, nil
	}
	data, err := ioutil.ReadFile(tmp.Name())
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	m := &Manifest{Files: map[string]string{}}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "parsing remote manifest")
	}
	return m, nil
}

func (p *Publisher) writeRemote(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling manifest")
	}
	tmp, err := ioutil.TempFile("", "catalog-manifest")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp manifest")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp manifest")
	}
	return errors.Wrap(p.Bucket.Upload(tmp.Name(), remoteManifest), "uploading manifest")
}

package snapshot

import (
	"log"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
	"github.com/statbase/etl/snapshot/s3"
)

// Main holds the options for the snapshot subcommand. With File set it
// adds a local file to the store; otherwise it fetches and verifies an
// existing snapshot.
type Main struct {
	Dir       string `help:"Root of the local snapshot store."`
	Namespace string `help:"Snapshot namespace, e.g. who."`
	Version   string `help:"Snapshot version, e.g. 2026-08-30. Empty means today."`
	ShortName string `help:"Snapshot file name, e.g. gho.csv."`

	File        string `help:"Local file to add. Empty means fetch instead."`
	Producer    string `help:"Data producer for the provenance record."`
	Title       string `help:"Human readable title of the source."`
	URLMain     string `help:"Main URL of the source."`
	URLDownload string `help:"Direct download URL. Fetch falls back to this when the file is missing everywhere else."`
	License     string `help:"License name."`
	LicenseURL  string `help:"License URL."`
	Public      bool   `help:"Whether the snapshot may be republished."`

	Bucket   string `help:"S3 bucket to fetch from or upload to."`
	Region   string `help:"AWS region for the bucket."`
	Endpoint string `help:"Custom S3 endpoint for R2 or MinIO."`
	Upload   bool   `help:"After adding, upload the file to the bucket."`
}

// NewMain returns a Main with defaults.
func NewMain() *Main {
	return &Main{
		Dir:     "data/snapshots",
		Version: time.Now().Format("2006-01-02"),
		Public:  true,
	}
}

// Run adds or fetches one snapshot.
func (m *Main) Run() error {
	if m.Namespace == "" || m.ShortName == "" {
		return errors.New("namespace and short name are required")
	}
	var client *s3.Client
	var opts []StoreOption
	if m.Bucket != "" {
		var s3opts []s3.Option
		if m.Region != "" {
			s3opts = append(s3opts, s3.OptRegion(m.Region))
		}
		if m.Endpoint != "" {
			s3opts = append(s3opts, s3.OptEndpoint(m.Endpoint))
		}
		var err error
		client, err = s3.NewClient(m.Bucket, s3opts...)
		if err != nil {
			return errors.Wrap(err, "connecting to bucket")
		}
		opts = append(opts, OptStoreBucket(client))
	}
	opts = append(opts, OptStoreLogger(etl.StdLogger{Logger: log.New(os.Stderr, "", log.LstdFlags)}))
	store := NewStore(m.Dir, opts...)

	if m.File == "" {
		_, err := store.Fetch(m.Namespace, m.Version, m.ShortName)
		return err
	}

	meta := Meta{
		Namespace: m.Namespace,
		Version:   m.Version,
		ShortName: m.ShortName,
		Origin: etl.Origin{
			Producer:     m.Producer,
			Title:        m.Title,
			URLMain:      m.URLMain,
			URLDownload:  m.URLDownload,
			DateAccessed: time.Now().Format("2006-01-02"),
			License:      etl.License{Name: m.License, URL: m.LicenseURL},
		},
		IsPublic: m.Public,
	}
	if m.License != "" {
		meta.License = etl.License{Name: m.License, URL: m.LicenseURL}
	}
	sc, err := store.Add(m.File, meta)
	if err != nil {
		return errors.Wrap(err, "adding snapshot")
	}
	log.Printf("added %s (md5 %s)", store.Path(m.Namespace, m.Version, m.ShortName), sc.Outs[0].MD5)

	if m.Upload {
		if client == nil {
			return errors.New("upload requires a bucket")
		}
		key := store.Key(m.Namespace, m.Version, m.ShortName)
		if err := client.Upload(store.Path(m.Namespace, m.Version, m.ShortName), key); err != nil {
			return errors.Wrap(err, "uploading snapshot")
		}
		log.Printf("uploaded %s", key)
	}
	return nil
}

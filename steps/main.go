package steps

import (
	"bufio"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
	"github.com/statbase/etl/catalog"
	"github.com/statbase/etl/geohash"
	"github.com/statbase/etl/snapshot"
	"github.com/statbase/etl/snapshot/s3"
	"github.com/statbase/etl/termstat"
)

// Main holds the options for a pipeline run and is wrapped by the run
// subcommand.
type Main struct {
	DAG         string `help:"Path to the dag.yml pipeline definition."`
	Pattern     string `help:"Run only steps whose URI contains this substring, plus their dependencies. Empty runs everything."`
	SnapshotDir string `help:"Root of the local snapshot store."`
	CatalogDir  string `help:"Root of the local catalog."`
	StateFile   string `help:"Where recorded step checksums live."`
	MappingDir  string `help:"Directory of per-namespace harmonization mapping files."`
	GrapherDir  string `help:"Where the import channel writes datapoints."`
	RegistryDir string `help:"LevelDB directory for the entity id registry."`
	Canonical   string `help:"Optional file of canonical entity labels, one per line."`
	GeoLat      string `help:"Latitude column for geohash bucketing of formatted tables. Empty disables it."`
	GeoLon      string `help:"Longitude column for geohash bucketing of formatted tables."`
	GeoColumn   string `help:"Name of the geohash column added to formatted tables."`
	GeoPrec     uint   `help:"Geohash precision in characters."`
	Concurrency int    `help:"Number of steps to run at once."`
	DryRun      bool   `help:"Print what would run without running it."`
	Force       bool   `help:"Run matching steps even when they are clean."`
	Bucket      string `help:"S3 bucket backing snapshots and the publish target."`
	Region      string `help:"AWS region for the bucket."`
	Endpoint    string `help:"Custom S3 endpoint for R2 or MinIO."`
	Verbose     bool   `help:"Enable debug logging."`
}

// NewMain returns a Main with the conventional layout under ./data.
func NewMain() *Main {
	return &Main{
		DAG:         "dag.yml",
		SnapshotDir: "data/snapshots",
		CatalogDir:  "data/catalog",
		StateFile:   "data/state.json",
		MappingDir:  "mapping",
		GrapherDir:  "data/grapher",
		RegistryDir: "data/registry",
		GeoColumn:   "geohash",
		GeoPrec:     6,
		Concurrency: 4,
	}
}

// Run executes the dirty part of the DAG.
func (m *Main) Run() error {
	dag, err := LoadDAG(m.DAG)
	if err != nil {
		return errors.Wrap(err, "loading dag")
	}
	state, err := LoadState(m.StateFile)
	if err != nil {
		return errors.Wrap(err, "loading state")
	}

	var storeOpts []snapshot.StoreOption
	var client *s3.Client
	if m.Bucket != "" {
		var s3opts []s3.Option
		if m.Region != "" {
			s3opts = append(s3opts, s3.OptRegion(m.Region))
		}
		if m.Endpoint != "" {
			s3opts = append(s3opts, s3.OptEndpoint(m.Endpoint))
		}
		client, err = s3.NewClient(m.Bucket, s3opts...)
		if err != nil {
			return errors.Wrap(err, "connecting to bucket")
		}
		storeOpts = append(storeOpts, snapshot.OptStoreBucket(client))
	}
	store := snapshot.NewStore(m.SnapshotDir, storeOpts...)
	cat := catalog.NewLocal(m.CatalogDir)

	reg, err := etl.NewLevelRegistry(m.RegistryDir, "entity")
	if err != nil {
		return errors.Wrap(err, "opening entity registry")
	}
	defer reg.Close()

	canonical, err := readLines(m.Canonical)
	if err != nil {
		return errors.Wrap(err, "reading canonical labels")
	}

	runner := NewRunner(dag, store, cat, state)
	runner.Concurrency = m.Concurrency
	runner.DryRun = m.DryRun
	runner.Force = m.Force
	runner.Stats = termstat.NewCollector(os.Stderr)
	if m.Verbose {
		runner.Log = etl.VerboseLogger{Logger: log.New(os.Stderr, "", log.LstdFlags)}
	} else {
		runner.Log = etl.StdLogger{Logger: log.New(os.Stderr, "", log.LstdFlags)}
	}
	defaults := Defaults{
		MappingDir: m.MappingDir,
		GrapherDir: m.GrapherDir,
		Registry:   reg,
		Canonical:  canonical,
	}
	if m.GeoLat != "" && m.GeoLon != "" {
		defaults.Geo = &geohash.Transformer{
			Precision:    m.GeoPrec,
			LatColumn:    m.GeoLat,
			LonColumn:    m.GeoLon,
			ResultColumn: m.GeoColumn,
		}
	}
	runner.RegisterDefaults(defaults)
	if client != nil {
		pub := catalog.NewPublisher(cat, client)
		pub.Log = runner.Log
		pub.Stats = runner.Stats
		runner.RegisterPublish(func(target string) error {
			return pub.Publish()
		})
	}
	return runner.Run(m.Pattern)
}

func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		if line := scan.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scan.Err()
}

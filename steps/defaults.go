package steps

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
	"github.com/statbase/etl/catalog"
	"github.com/statbase/etl/formats"
	"github.com/statbase/etl/geohash"
	"github.com/statbase/etl/grapher"
	"github.com/statbase/etl/snapshot"
)

// Defaults carries the configuration the built-in channel steps need.
// MappingDir holds one <namespace>.json mapping file per namespace;
// GrapherDir is where the import channel writes datapoints; Registry
// allocates entity ids for imports. When Geo is set, format steps append
// its geohash column to every table that carries both coordinate columns.
type Defaults struct {
	MappingDir   string
	GrapherDir   string
	Registry     etl.Registry
	EntityColumn string
	Canonical    []string
	Geo          *geohash.Transformer
}

// RegisterDefaults installs the built-in behavior for the format,
// harmonize and import channels. Explicit registrations for a full URI
// still win over these prefixes.
func (r *Runner) RegisterDefaults(d Defaults) {
	if d.EntityColumn == "" {
		d.EntityColumn = "country"
	}
	r.Register("data://"+catalog.ChannelFormat+"/", d.formatStep)
	r.Register("data://"+catalog.ChannelHarmonize+"/", d.harmonizeStep)
	r.Register("data://"+catalog.ChannelImport+"/", d.importStep)
}

// formatStep parses the step's snapshot dependency into a dataset with
// normalized column names. The snapshot's provenance becomes the
// dataset's origins and licenses.
func (d Defaults) formatStep(sc *Context) error {
	var snap *URI
	for i, dep := range sc.Deps {
		if dep.Kind == KindSnapshot {
			snap = &sc.Deps[i]
			break
		}
	}
	if snap == nil {
		return errors.New("format step needs a snapshot dependency")
	}
	side, err := snapshot.ReadSidecar(sc.Snapshots.SidecarPath(snap.Namespace, snap.Version, snap.Name))
	if err != nil {
		return errors.Wrap(err, "reading snapshot sidecar")
	}
	rc, err := sc.Snapshots.Open(snap.Namespace, snap.Version, snap.Name)
	if err != nil {
		return errors.Wrap(err, "opening snapshot")
	}
	defer rc.Close()

	var t *etl.Table
	switch ext := strings.ToLower(filepath.Ext(snap.Name)); ext {
	case ".csv":
		t, err = formats.ReadCSVFrom(rc)
	case ".jsonl", ".json":
		t, err = formats.ReadJSONL(rc)
	default:
		return errors.Errorf("no built-in parser for %s files", ext)
	}
	if err != nil {
		return errors.Wrapf(err, "parsing %s", snap.Name)
	}
	t, err = t.NormalizeColumns(etl.Underscore)
	if err != nil {
		return errors.Wrap(err, "normalizing columns")
	}
	if d.Geo != nil && t.HasColumn(d.Geo.LatColumn) && t.HasColumn(d.Geo.LonColumn) {
		t, err = d.Geo.Transform(t)
		if err != nil {
			return errors.Wrap(err, "geohashing coordinates")
		}
	}
	t.Meta.ShortName = sc.Step.Name

	meta := etl.DatasetMeta{
		Channel:   sc.Step.Channel,
		Namespace: sc.Step.Namespace,
		Version:   sc.Step.Version,
		ShortName: sc.Step.Name,
		Origins:   []etl.Origin{side.Meta.Origin},
		IsPublic:  side.Meta.IsPublic,
	}
	if side.Meta.License.Name != "" {
		meta.Licenses = []etl.License{side.Meta.License}
	}
	if len(side.Outs) == 1 {
		meta.SourceChecksum = side.Outs[0].MD5
	}
	ds, err := sc.Catalog.Create(meta)
	if err != nil {
		return errors.Wrap(err, "creating dataset")
	}
	return ds.AddTable(t)
}

// harmonizeStep copies its single data dependency, mapping the entity
// column of every table through the namespace's mapping file. Labels the
// mapping cannot resolve fail the step so they get reviewed rather than
// silently passed through.
func (d Defaults) harmonizeStep(sc *Context) error {
	var src *URI
	for i, dep := range sc.Deps {
		if dep.Kind == KindData {
			src = &sc.Deps[i]
			break
		}
	}
	if src == nil {
		return errors.New("harmonize step needs a data dependency")
	}
	in, err := sc.Catalog.Dataset(src.Channel, src.Namespace, src.Version, src.Name)
	if err != nil {
		return errors.Wrap(err, "opening upstream dataset")
	}
	mapping, err := etl.LoadMapping(filepath.Join(d.MappingDir, sc.Step.Namespace+".json"))
	if err != nil {
		return errors.Wrap(err, "loading mapping")
	}
	h := etl.NewHarmonizer(d.Canonical, mapping)

	meta := in.Meta
	meta.Channel = sc.Step.Channel
	meta.Version = sc.Step.Version
	meta.ShortName = sc.Step.Name
	out, err := sc.Catalog.Create(meta)
	if err != nil {
		return errors.Wrap(err, "creating dataset")
	}
	names, err := in.TableNames()
	if err != nil {
		return errors.Wrap(err, "listing tables")
	}
	col := d.EntityColumn
	if col == "" {
		col = "country"
	}
	for _, name := range names {
		t, err := in.Table(name)
		if err != nil {
			return errors.Wrapf(err, "loading table %s", name)
		}
		if !t.HasColumn(col) {
			if err := out.AddTable(t); err != nil {
				return errors.Wrapf(err, "copying table %s", name)
			}
			continue
		}
		ht, unmatched, err := t.HarmonizeColumn(h, col)
		if err != nil {
			return errors.Wrapf(err, "harmonizing table %s", name)
		}
		if len(unmatched) > 0 {
			return errors.Errorf("table %s has %d unmatched labels, starting with %q", name, len(unmatched), unmatched[0])
		}
		if err := out.AddTable(ht); err != nil {
			return errors.Wrapf(err, "writing table %s", name)
		}
	}
	return nil
}

// importStep flattens its data dependency into grapher datapoints and
// records the import channel dataset so downstream publish steps see it.
func (d Defaults) importStep(sc *Context) error {
	var src *URI
	for i, dep := range sc.Deps {
		if dep.Kind == KindData {
			src = &sc.Deps[i]
			break
		}
	}
	if src == nil {
		return errors.New("import step needs a data dependency")
	}
	in, err := sc.Catalog.Dataset(src.Channel, src.Namespace, src.Version, src.Name)
	if err != nil {
		return errors.Wrap(err, "opening upstream dataset")
	}
	im := grapher.NewImporter(d.GrapherDir, d.Registry)
	im.EntityColumn = d.EntityColumn
	im.Log = sc.Log
	if err := im.Import(in); err != nil {
		return errors.Wrap(err, "importing dataset")
	}

	// Mirror the upstream dataset into the import channel so the
	// catalog records what was imported and when.
	meta := in.Meta
	meta.Channel = sc.Step.Channel
	meta.Version = sc.Step.Version
	meta.ShortName = sc.Step.Name
	out, err := sc.Catalog.Create(meta)
	if err != nil {
		return errors.Wrap(err, "creating dataset")
	}
	names, err := in.TableNames()
	if err != nil {
		return errors.Wrap(err, "listing tables")
	}
	for _, name := range names {
		t, err := in.Table(name)
		if err != nil {
			return errors.Wrapf(err, "loading table %s", name)
		}
		if err := out.AddTable(t); err != nil {
			return errors.Wrapf(err, "writing table %s", name)
		}
	}
	return nil
}

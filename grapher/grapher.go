// Package grapher flattens harmonized datasets into per-variable
// datapoint files for a chart database upstream. Entity labels get
// stable integer IDs from a persistent registry so repeated imports of
// the same countries produce the same IDs.
package grapher

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
	"github.com/statbase/etl/catalog"
	"github.com/statbase/etl/formats"
)

const entitySpace = "entity"

// Importer writes long-format datapoints under Dir. EntityColumn and
// YearColumn name the key columns every imported table must carry.
type Importer struct {
	Dir          string
	Registry     etl.Registry
	EntityColumn string
	YearColumn   string
	Log          etl.Logger
}

// NewImporter returns an Importer with the conventional column names.
func NewImporter(dir string, reg etl.Registry) *Importer {
	return &Importer{
		Dir:          dir,
		Registry:     reg,
		EntityColumn: "country",
		YearColumn:   "year",
		Log:          etl.NopLogger{},
	}
}

// variableRecord is one entry in variables.json.
type variableRecord struct {
	Dataset  string           `json:"dataset"`
	Table    string           `json:"table"`
	Variable string           `json:"variable"`
	File     string           `json:"file"`
	Meta     etl.VariableMeta `json:"meta"`
}

// entityRecord is one entry in entities.json.
type entityRecord struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Import flattens every table of the dataset. Each non-key column
// becomes one datapoints CSV with columns entity_id, year, value, and the
// manifests entities.json and variables.json are rewritten to cover
// everything imported so far.
func (im *Importer) Import(d *catalog.Dataset) error {
	names, err := d.TableNames()
	if err != nil {
		return errors.Wrap(err, "listing tables")
	}
	dpDir := filepath.Join(im.Dir, "datapoints")
	if err := os.MkdirAll(dpDir, 0755); err != nil {
		return errors.Wrap(err, "creating datapoints dir")
	}
	variables, err := im.readVariables()
	if err != nil {
		return err
	}
	entities := make(map[string]uint64)
	for _, name := range names {
		t, err := d.Table(name)
		if err != nil {
			return errors.Wrapf(err, "loading table %s", name)
		}
		if err := im.importTable(d, t, dpDir, variables, entities); err != nil {
			return errors.Wrapf(err, "importing table %s", name)
		}
	}
	if err := im.writeVariables(variables); err != nil {
		return err
	}
	return im.writeEntities(entities)
}

func (im *Importer) importTable(d *catalog.Dataset, t *etl.Table, dpDir string, variables map[string]variableRecord, entities map[string]uint64) error {
	for _, col := range []string{im.EntityColumn, im.YearColumn} {
		if !t.HasColumn(col) {
			return errors.Errorf("missing key column %q", col)
		}
	}
	ents := t.Column(im.EntityColumn)
	years := t.Column(im.YearColumn)
	if ents.DType() != etl.TypeString {
		return errors.Errorf("key column %q must be strings, got %v", im.EntityColumn, ents.DType())
	}

	// Resolve entity ids once per row; rows missing either key are
	// dropped from every variable.
	ids := make([]interface{}, t.Len())
	for i := 0; i < t.Len(); i++ {
		if ents.IsNull(i) || years.IsNull(i) {
			continue
		}
		label := ents.String(i)
		id, err := im.Registry.GetID(entitySpace, label)
		if err != nil {
			return errors.Wrapf(err, "allocating entity id for %q", label)
		}
		ids[i] = int64(id)
		entities[label] = id
	}

	for _, name := range t.Columns() {
		if name == im.EntityColumn || name == im.YearColumn {
			continue
		}
		col := t.Column(name)
		var eVals, yVals, vVals []interface{}
		for i := 0; i < t.Len(); i++ {
			if ids[i] == nil || col.IsNull(i) {
				continue
			}
			eVals = append(eVals, ids[i])
			yVals = append(yVals, years.At(i))
			vVals = append(vVals, col.At(i))
		}
		out, err := datapointsTable(eVals, yVals, vVals)
		if err != nil {
			return errors.Wrapf(err, "building datapoints for %s", name)
		}
		key := d.Meta.ShortName + "__" + t.Meta.ShortName + "__" + name
		file := filepath.Join("datapoints", key+".csv")
		if err := formats.WriteCSV(out, filepath.Join(im.Dir, file)); err != nil {
			return errors.Wrapf(err, "writing datapoints for %s", name)
		}
		variables[key] = variableRecord{
			Dataset:  d.Meta.ShortName,
			Table:    t.Meta.ShortName,
			Variable: name,
			File:     file,
			Meta:     col.Meta,
		}
		im.Log.Debugf("imported %s: %d datapoints", key, len(vVals))
	}
	return nil
}

func datapointsTable(ids, years, values []interface{}) (*etl.Table, error) {
	ecol, err := etl.NewSeriesFrom("entity_id", ids)
	if err != nil {
		return nil, err
	}
	ycol, err := etl.NewSeriesFrom("year", years)
	if err != nil {
		return nil, err
	}
	vcol, err := etl.NewSeriesFrom("value", values)
	if err != nil {
		return nil, err
	}
	return etl.NewTable("datapoints", ecol, ycol, vcol)
}

func (im *Importer) readVariables() (map[string]variableRecord, error) {
	variables := make(map[string]variableRecord)
	buf, err := ioutil.ReadFile(filepath.Join(im.Dir, "variables.json"))
	if os.IsNotExist(err) {
		return variables, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "reading variables manifest")
	}
	if err := json.Unmarshal(buf, &variables); err != nil {
		return nil, errors.Wrap(err, "unmarshaling variables manifest")
	}
	return variables, nil
}

func (im *Importer) writeVariables(variables map[string]variableRecord) error {
	buf, err := json.MarshalIndent(variables, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling variables manifest")
	}
	err = ioutil.WriteFile(filepath.Join(im.Dir, "variables.json"), buf, 0644)
	return errors.Wrap(err, "writing variables manifest")
}

// writeEntities merges the entities seen in this import into
// entities.json, keeping earlier entries.
func (im *Importer) writeEntities(entities map[string]uint64) error {
	path := filepath.Join(im.Dir, "entities.json")
	var records []entityRecord
	buf, err := ioutil.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(buf, &records); err != nil {
			return errors.Wrap(err, "unmarshaling entities manifest")
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "reading entities manifest")
	}
	seen := make(map[uint64]struct{}, len(records))
	for _, r := range records {
		seen[r.ID] = struct{}{}
	}
	for name, id := range entities {
		if _, ok := seen[id]; ok {
			continue
		}
		records = append(records, entityRecord{ID: id, Name: name})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	buf, err = json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling entities manifest")
	}
	return errors.Wrap(ioutil.WriteFile(path, buf, 0644), "writing entities manifest")
}

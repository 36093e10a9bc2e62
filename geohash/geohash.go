package geohash

import (
	"github.com/mmcloughlin/geohash"
	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// Transformer buckets coordinate columns of a table into geohash strings,
// which makes point data joinable against region-level datasets at a chosen
// resolution.
type Transformer struct {
	Precision    uint
	LatColumn    string
	LonColumn    string
	ResultColumn string
}

// Transform appends a string column of geohashes computed from the lat/lon
// columns. Rows with a missing coordinate get a missing geohash. The new
// column's metadata is merged from both coordinate columns.
func (tr *Transformer) Transform(t *etl.Table) (*etl.Table, error) {
	lat := t.Column(tr.LatColumn)
	if lat == nil {
		return nil, errors.Errorf("no latitude column %q", tr.LatColumn)
	}
	lon := t.Column(tr.LonColumn)
	if lon == nil {
		return nil, errors.Errorf("no longitude column %q", tr.LonColumn)
	}
	if lat.DType() != etl.TypeFloat || lon.DType() != etl.TypeFloat {
		return nil, errors.Errorf("coordinate columns must be float64, got %v and %v", lat.DType(), lon.DType())
	}
	precision := tr.Precision
	if precision == 0 {
		precision = 6
	}
	out := etl.NewSeries(tr.ResultColumn, etl.TypeString)
	meta, err := lat.Meta.Merge(lon.Meta)
	if err != nil {
		return nil, errors.Wrap(err, "merging coordinate metadata")
	}
	out.Meta = meta
	for i := 0; i < t.Len(); i++ {
		if lat.IsNull(i) || lon.IsNull(i) {
			if err := out.Append(nil); err != nil {
				return nil, err
			}
			continue
		}
		if err := out.Append(geohash.EncodeWithPrecision(lat.Float(i), lon.Float(i), precision)); err != nil {
			return nil, err
		}
	}
	if err := t.AddSeries(out); err != nil {
		return nil, errors.Wrap(err, "adding geohash column")
	}
	return t, nil
}

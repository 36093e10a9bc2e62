package formats

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// ReadJSONL builds a table from line-separated JSON objects, the shape
// streaming snapshots are frozen in. Columns are the union of keys across
// all objects, sorted; numbers come out as float64 because that's all JSON
// gives us.
func ReadJSONL(r io.Reader) (*etl.Table, error) {
	dec := json.NewDecoder(r)
	var records []map[string]interface{}
	keys := map[string]struct{}{}
	for {
		rec := map[string]interface{}{}
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "decoding json record")
		}
		for k := range rec {
			keys[k] = struct{}{}
		}
		records = append(records, rec)
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	t, err := etl.NewTable("")
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		s := etl.NewSeries(name, etl.TypeUnknown)
		for _, rec := range records {
			v, ok := rec[name]
			if !ok || v == nil {
				if err := s.Append(nil); err != nil {
					return nil, err
				}
				continue
			}
			switch tv := v.(type) {
			case string, float64, bool:
				err = s.Append(tv)
			default:
				err = errors.Errorf("nested value %v", tv)
			}
			if err != nil {
				return nil, errors.Wrapf(err, "column %q", name)
			}
		}
		if err := t.AddSeries(s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

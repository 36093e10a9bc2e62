package formats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// WriteCSV writes the table as CSV with a header row. Missing observations
// become empty cells.
func WriteCSV(t *etl.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.Columns()); err != nil {
		f.Close()
		return errors.Wrap(err, "writing header")
	}
	row := make([]string, t.NumColumns())
	for i := 0; i < t.Len(); i++ {
		for j, name := range t.Columns() {
			col := t.Column(name)
			if col.IsNull(i) {
				row[j] = ""
			} else {
				row[j] = fmt.Sprintf("%v", col.At(i))
			}
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return errors.Wrapf(err, "writing row %d", i)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errors.Wrap(err, "flushing")
	}
	return f.Close()
}

// ReadCSV loads a table from a CSV file, inferring column types from the
// values: int64 if every non-empty cell parses as an integer, then
// float64, then bool, otherwise string. Empty cells are missing
// observations.
func ReadCSV(path string) (*etl.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return ReadCSVFrom(f)
}

// ReadCSVFrom is ReadCSV over any reader, which is what format steps use
// on snapshot payloads.
func ReadCSVFrom(r io.Reader) (*etl.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	if err := validateHeader(header); err != nil {
		return nil, errors.Wrap(err, "validating header")
	}
	cells := make([][]string, len(header))
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading row")
		}
		for i := range header {
			cells[i] = append(cells[i], row[i])
		}
	}

	t, err := etl.NewTable("")
	if err != nil {
		return nil, err
	}
	for i, name := range header {
		s, err := inferSeries(name, cells[i])
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", name)
		}
		if err := t.AddSeries(s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func validateHeader(header []string) error {
	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		if h == "" {
			return errors.New("empty header field")
		}
		if _, dup := seen[h]; dup {
			return errors.Errorf("duplicate header field %q", h)
		}
		seen[h] = struct{}{}
	}
	return nil
}

func inferSeries(name string, cells []string) (*etl.Series, error) {
	isInt, isFloat, isBool := true, true, true
	nonEmpty := 0
	for _, c := range cells {
		if c == "" {
			continue
		}
		nonEmpty++
		if _, err := strconv.ParseInt(c, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(c, 64); err != nil {
			isFloat = false
		}
		if c != "true" && c != "false" {
			isBool = false
		}
	}
	s := etl.NewSeries(name, etl.TypeString)
	switch {
	case nonEmpty == 0:
		s = etl.NewSeries(name, etl.TypeUnknown)
	case isInt:
		s = etl.NewSeries(name, etl.TypeInt)
	case isFloat:
		s = etl.NewSeries(name, etl.TypeFloat)
	case isBool:
		s = etl.NewSeries(name, etl.TypeBool)
	}
	for _, c := range cells {
		if c == "" {
			if err := s.Append(nil); err != nil {
				return nil, err
			}
			continue
		}
		var v interface{} = c
		switch s.DType() {
		case etl.TypeInt:
			v, _ = strconv.ParseInt(c, 10, 64)
		case etl.TypeFloat:
			v, _ = strconv.ParseFloat(c, 64)
		case etl.TypeBool:
			v = c == "true"
		}
		if err := s.Append(v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

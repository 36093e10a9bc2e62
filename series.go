package etl

import (
	"fmt"

	"github.com/pkg/errors"
)

// DType enumerates the value types a Series may hold.
type DType string

// Supported series types. These map one to one onto the column types the
// formats package can serialize.
const (
	TypeString  DType = "string"
	TypeInt     DType = "int64"
	TypeFloat   DType = "float64"
	TypeBool    DType = "bool"
	TypeUnknown DType = ""
)

// Series is a single named column: a slice of values of one type plus the
// variable metadata that travels with it. A nil value represents a missing
// observation.
type Series struct {
	Name   string
	Meta   VariableMeta
	dtype  DType
	values []interface{}
}

// NewSeries returns an empty series of the given type.
func NewSeries(name string, dtype DType) *Series {
	return &Series{Name: name, dtype: dtype}
}

// NewSeriesFrom builds a series from a slice of values, inferring the type
// from the first non-nil element. Values must all be of that type (or nil).
func NewSeriesFrom(name string, values []interface{}) (*Series, error) {
	s := &Series{Name: name, values: make([]interface{}, 0, len(values))}
	for _, v := range values {
		if err := s.Append(v); err != nil {
			return nil, errors.Wrapf(err, "series %s", name)
		}
	}
	return s, nil
}

// DType returns the series' value type, which may be TypeUnknown for an
// empty, all-null series.
func (s *Series) DType() DType { return s.dtype }

// Len returns the number of values (including nulls).
func (s *Series) Len() int { return len(s.values) }

// At returns the value at i, nil for missing observations.
func (s *Series) At(i int) interface{} { return s.values[i] }

// IsNull reports whether the value at i is missing.
func (s *Series) IsNull(i int) bool { return s.values[i] == nil }

func dtypeOf(v interface{}) (DType, error) {
	switch v.(type) {
	case string:
		return TypeString, nil
	case int64:
		return TypeInt, nil
	case float64:
		return TypeFloat, nil
	case bool:
		return TypeBool, nil
	}
	return TypeUnknown, errors.Errorf("unsupported value type %T (want string, int64, float64, or bool)", v)
}

// Append adds a value to the series. The first non-nil value fixes the
// series type; later values must match it. int values are widened to int64
// for convenience.
func (s *Series) Append(v interface{}) error {
	if iv, ok := v.(int); ok {
		v = int64(iv)
	}
	if v == nil {
		s.values = append(s.values, nil)
		return nil
	}
	dt, err := dtypeOf(v)
	if err != nil {
		return err
	}
	if s.dtype == TypeUnknown {
		s.dtype = dt
	} else if s.dtype != dt {
		return errors.Errorf("appending %v value to %v series", dt, s.dtype)
	}
	s.values = append(s.values, v)
	return nil
}

// String returns the string value at i. It panics on type mismatch, like
// indexing does - callers check DType first.
func (s *Series) String(i int) string { return s.values[i].(string) }

// Int returns the int64 value at i.
func (s *Series) Int(i int) int64 { return s.values[i].(int64) }

// Float returns the float64 value at i. Int series are widened.
func (s *Series) Float(i int) float64 {
	if v, ok := s.values[i].(int64); ok {
		return float64(v)
	}
	return s.values[i].(float64)
}

// Bool returns the bool value at i.
func (s *Series) Bool(i int) bool { return s.values[i].(bool) }

// WithMeta returns a copy of the series with the given metadata attached.
// The values are shared, not copied.
func (s *Series) WithMeta(meta VariableMeta) *Series {
	out := *s
	out.Meta = meta
	return &out
}

// Rename returns a copy of the series under a new name, recording the
// rename in the processing log.
func (s *Series) Rename(name string) *Series {
	out := *s
	out.Name = name
	out.Meta = s.Meta.withStep("rename", s.Name, name)
	return &out
}

// take returns a new series containing the values at the given row indexes,
// in order. Metadata is carried over unchanged.
func (s *Series) take(idxs []int) *Series {
	out := &Series{Name: s.Name, Meta: s.Meta, dtype: s.dtype, values: make([]interface{}, len(idxs))}
	for i, idx := range idxs {
		out.values[i] = s.values[idx]
	}
	return out
}

// slice returns the series restricted to rows [i, j).
func (s *Series) slice(i, j int) *Series {
	out := &Series{Name: s.Name, Meta: s.Meta, dtype: s.dtype, values: s.values[i:j]}
	return out
}

// copyValues returns a deep copy of the series.
func (s *Series) copyValues() *Series {
	out := &Series{Name: s.Name, Meta: s.Meta, dtype: s.dtype, values: make([]interface{}, len(s.values))}
	copy(out.values, s.values)
	return out
}

// key renders a value for use in join and group keys. Nulls become a
// sentinel that cannot collide with real data.
func key(v interface{}) string {
	if v == nil {
		return "\x00null"
	}
	return fmt.Sprintf("%v", v)
}

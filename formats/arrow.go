package formats

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

func arrowType(dt etl.DType) (arrow.DataType, error) {
	switch dt {
	case etl.TypeString, etl.TypeUnknown:
		// all-null columns serialize as strings
		return arrow.BinaryTypes.String, nil
	case etl.TypeInt:
		return arrow.PrimitiveTypes.Int64, nil
	case etl.TypeFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case etl.TypeBool:
		return arrow.FixedWidthTypes.Boolean, nil
	}
	return nil, errors.Errorf("no arrow type for %v", dt)
}

// toArrow converts a table to a single arrow record batch.
func toArrow(t *etl.Table, mem memory.Allocator) (*arrow.Schema, arrow.Record, error) {
	fields := make([]arrow.Field, t.NumColumns())
	for i, name := range t.Columns() {
		at, err := arrowType(t.Column(name).DType())
		if err != nil {
			return nil, nil, errors.Wrapf(err, "column %q", name)
		}
		fields[i] = arrow.Field{Name: name, Type: at, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	for i, name := range t.Columns() {
		col := t.Column(name)
		for r := 0; r < col.Len(); r++ {
			if col.IsNull(r) {
				b.Field(i).AppendNull()
				continue
			}
			switch fb := b.Field(i).(type) {
			case *array.StringBuilder:
				fb.Append(col.String(r))
			case *array.Int64Builder:
				fb.Append(col.Int(r))
			case *array.Float64Builder:
				fb.Append(col.Float(r))
			case *array.BooleanBuilder:
				fb.Append(col.Bool(r))
			default:
				return nil, nil, errors.Errorf("unhandled builder type %T for column %q", fb, name)
			}
		}
	}
	return schema, b.NewRecord(), nil
}

// fromArrow rebuilds a table from arrow records. Metadata comes from the
// sidecar, not the arrow schema, so the series start with empty meta.
func fromArrow(schema *arrow.Schema, recs []arrow.Record) (*etl.Table, error) {
	t, err := etl.NewTable("")
	if err != nil {
		return nil, err
	}
	for fi, f := range schema.Fields() {
		var s *etl.Series
		switch f.Type.ID() {
		case arrow.STRING:
			s = etl.NewSeries(f.Name, etl.TypeString)
		case arrow.INT64:
			s = etl.NewSeries(f.Name, etl.TypeInt)
		case arrow.FLOAT64:
			s = etl.NewSeries(f.Name, etl.TypeFloat)
		case arrow.BOOL:
			s = etl.NewSeries(f.Name, etl.TypeBool)
		default:
			return nil, errors.Errorf("unhandled arrow type %v for column %q", f.Type, f.Name)
		}
		for _, rec := range recs {
			col := rec.Column(fi)
			for r := 0; r < col.Len(); r++ {
				if col.IsNull(r) {
					if err := s.Append(nil); err != nil {
						return nil, err
					}
					continue
				}
				var err error
				switch arr := col.(type) {
				case *array.String:
					err = s.Append(arr.Value(r))
				case *array.Int64:
					err = s.Append(arr.Value(r))
				case *array.Float64:
					err = s.Append(arr.Value(r))
				case *array.Boolean:
					err = s.Append(arr.Value(r))
				default:
					err = errors.Errorf("unhandled arrow array %T", arr)
				}
				if err != nil {
					return nil, errors.Wrapf(err, "column %q", f.Name)
				}
			}
		}
		if err := t.AddSeries(s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

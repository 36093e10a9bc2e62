package formats

import (
	"context"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// WriteParquet writes the table as a snappy-compressed parquet file.
func WriteParquet(t *etl.Table, path string) error {
	mem := memory.NewGoAllocator()
	schema, rec, err := toArrow(t, mem)
	if err != nil {
		return err
	}
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	if err := pqarrow.WriteTable(tbl, f, 64*1024, props, pqarrow.DefaultWriterProps()); err != nil {
		f.Close()
		return errors.Wrap(err, "writing parquet table")
	}
	return f.Close()
}

// ReadParquet loads a table from a parquet file.
func ReadParquet(path string) (*etl.Table, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer pf.Close()
	mem := memory.NewGoAllocator()
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, errors.Wrap(err, "creating arrow reader")
	}
	tbl, err := fr.ReadTable(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "reading parquet table")
	}
	defer tbl.Release()

	// flatten chunked columns into records for the shared converter
	tr := array.NewTableReader(tbl, -1)
	defer tr.Release()
	var recs []arrow.Record
	for tr.Next() {
		rec := tr.Record()
		rec.Retain()
		defer rec.Release()
		recs = append(recs, rec)
	}
	return fromArrow(tbl.Schema(), recs)
}

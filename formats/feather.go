package formats

import (
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"

	"github.com/statbase/etl"
)

// WriteFeather writes the table as an Arrow IPC file (Feather v2).
func WriteFeather(t *etl.Table, path string) error {
	mem := memory.NewGoAllocator()
	schema, rec, err := toArrow(t, mem)
	if err != nil {
		return err
	}
	defer rec.Release()
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		f.Close()
		return errors.Wrap(err, "creating ipc writer")
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		f.Close()
		return errors.Wrap(err, "writing record")
	}
	if err := w.Close(); err != nil {
		f.Close()
		return errors.Wrap(err, "closing ipc writer")
	}
	return f.Close()
}

// ReadFeather loads a table from an Arrow IPC file.
func ReadFeather(path string) (*etl.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	mem := memory.NewGoAllocator()
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, "creating ipc reader")
	}
	defer r.Close()
	recs := make([]arrow.Record, 0, r.NumRecords())
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.RecordAt(i)
		if err != nil {
			return nil, errors.Wrapf(err, "reading record %d", i)
		}
		recs = append(recs, rec)
	}
	return fromArrow(r.Schema(), recs)
}

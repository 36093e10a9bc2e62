package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var (
	tablesBucket    = []byte("tables")
	variablesBucket = []byte("variables")
)

// IndexRow is what a find query returns: enough to locate a table or
// variable and show what it is.
type IndexRow struct {
	Dataset  string `json:"dataset"` // channel/namespace/version/short_name
	Table    string `json:"table"`
	Variable string `json:"variable,omitempty"`
	Title    string `json:"title,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// Index is a bolt-backed lookup over every table and variable in a local
// catalog. It exists because walking thousands of dataset directories to
// answer one find query is too slow to put in anyone's edit loop.
type Index struct {
	Db *bolt.DB
}

// OpenIndex opens (or creates) the index at filename.
func OpenIndex(filename string) (*Index, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(tablesBucket); err != nil {
			return errors.Wrap(err, "creating tables bucket")
		}
		if _, err := tx.CreateBucketIfNotExists(variablesBucket); err != nil {
			return errors.Wrap(err, "creating variables bucket")
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return &Index{Db: db}, nil
}

// Close closes the index.
func (ix *Index) Close() error {
	return ix.Db.Close()
}

// Reindex rebuilds the index from the catalog. It reads every dataset's
// tables, so it's a full pass - the run command calls it once at the end
// of a build rather than incrementally.
func (ix *Index) Reindex(c *Local) error {
	uris, err := c.List()
	if err != nil {
		return err
	}
	return ix.Db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(tablesBucket); err != nil {
			return errors.Wrap(err, "clearing tables bucket")
		}
		if err := tx.DeleteBucket(variablesBucket); err != nil {
			return errors.Wrap(err, "clearing variables bucket")
		}
		tb, err := tx.CreateBucket(tablesBucket)
		if err != nil {
			return errors.Wrap(err, "recreating tables bucket")
		}
		vb, err := tx.CreateBucket(variablesBucket)
		if err != nil {
			return errors.Wrap(err, "recreating variables bucket")
		}
		for _, uri := range uris {
			parts := strings.SplitN(uri, "/", 4)
			if len(parts) != 4 {
				continue
			}
			ds, err := c.Dataset(parts[0], parts[1], parts[2], parts[3])
			if err != nil {
				return errors.Wrapf(err, "opening %s", uri)
			}
			names, err := ds.TableNames()
			if err != nil {
				return errors.Wrapf(err, "listing tables of %s", uri)
			}
			for _, name := range names {
				t, err := ds.Table(name)
				if err != nil {
					return errors.Wrapf(err, "reading table %s of %s", name, uri)
				}
				row := IndexRow{Dataset: uri, Table: name, Title: t.Meta.Title}
				if err := putRow(tb, uri+"/"+name, row); err != nil {
					return err
				}
				for _, col := range t.Columns() {
					meta := t.Column(col).Meta
					vrow := IndexRow{
						Dataset:  uri,
						Table:    name,
						Variable: col,
						Title:    meta.Title,
						Unit:     meta.Unit,
					}
					if err := putRow(vb, uri+"/"+name+"/"+col, vrow); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func putRow(b *bolt.Bucket, key string, row IndexRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "marshaling index row")
	}
	return errors.Wrapf(b.Put([]byte(key), data), "putting %s", key)
}

// FindTables returns tables whose key contains the query substring.
func (ix *Index) FindTables(query string) ([]IndexRow, error) {
	return ix.find(tablesBucket, query)
}

// FindVariables returns variables whose key contains the query substring.
func (ix *Index) FindVariables(query string) ([]IndexRow, error) {
	return ix.find(variablesBucket, query)
}

func (ix *Index) find(bucket []byte, query string) ([]IndexRow, error) {
	var rows []IndexRow
	err := ix.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if !strings.Contains(string(k), query) {
				return nil
			}
			row := IndexRow{}
			if err := json.Unmarshal(v, &row); err != nil {
				return errors.Wrapf(err, "unmarshaling row %s", k)
			}
			rows = append(rows, row)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning index")
	}
	return rows, nil
}

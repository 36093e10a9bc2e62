package etl

import (
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var mappingsBucket = []byte("mappings")

// BoltMappingStore keeps harmonization decisions in boltdb, one nested
// bucket per space. Unlike a mapping file it can be safely written by
// concurrent harmonize steps, so all steps of a run may share one store.
type BoltMappingStore struct {
	Db *bolt.DB
}

// NewBoltMappingStore opens (or creates) a mapping store at filename.
func NewBoltMappingStore(filename string, spaces ...string) (bs *BoltMappingStore, err error) {
	bs = &BoltMappingStore{}
	bs.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	err = bs.Db.Update(func(tx *bolt.Tx) error {
		mb, err := tx.CreateBucketIfNotExists(mappingsBucket)
		if err != nil {
			return errors.Wrap(err, "creating mappings bucket")
		}
		for _, space := range spaces {
			_, err = mb.CreateBucketIfNotExists([]byte(space))
			if err != nil {
				return errors.Wrap(err, "adding "+space+" to mappings bucket")
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return bs, nil
}

// Close syncs and closes the store.
func (bs *BoltMappingStore) Close() error {
	err := bs.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return bs.Db.Close()
}

// Set records the decision raw → canonical in the given space.
func (bs *BoltMappingStore) Set(space, raw, canonical string) error {
	return bs.Db.Update(func(tx *bolt.Tx) error {
		sb, err := tx.Bucket(mappingsBucket).CreateBucketIfNotExists([]byte(space))
		if err != nil {
			return errors.Wrap(err, "getting space bucket")
		}
		return errors.Wrap(sb.Put([]byte(raw), []byte(canonical)), "putting mapping")
	})
}

// Get looks up the canonical name decided for raw.
func (bs *BoltMappingStore) Get(space, raw string) (canonical string, found bool, err error) {
	err = bs.Db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(mappingsBucket).Bucket([]byte(space))
		if sb == nil {
			return nil
		}
		if v := sb.Get([]byte(raw)); v != nil {
			canonical, found = string(v), true
		}
		return nil
	})
	return canonical, found, errors.Wrap(err, "reading mapping")
}

// All returns every decision in the space as a Mapping.
func (bs *BoltMappingStore) All(space string) (Mapping, error) {
	m := Mapping{}
	err := bs.Db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(mappingsBucket).Bucket([]byte(space))
		if sb == nil {
			return nil
		}
		return sb.ForEach(func(k, v []byte) error {
			m[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "iterating mappings")
	}
	return m, nil
}

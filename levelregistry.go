package etl

import (
	"encoding/binary"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelRegistry is a Registry which stores the two-way label/id mapping in
// leveldb, one database pair per space. Ids allocated in one run are seen
// by the next, which keeps entity ids stable across rebuilds of the import
// channel.
type LevelRegistry struct {
	spaces map[string]spaceDBs
}

type spaceDBs struct {
	lock     ValueLocker
	idMap    *leveldb.DB
	labelMap *leveldb.DB
	ids      *Nexter
}

// Errors collects multiple errors into one.
type Errors []error

func (errs Errors) Error() string {
	errstrings := make([]string, len(errs))
	for i, err := range errs {
		errstrings[i] = err.Error()
	}
	return strings.Join(errstrings, "; ")
}

// NewLevelRegistry opens (or creates) a registry under dirname with the
// given spaces. Allocation resumes after the highest id already present.
func NewLevelRegistry(dirname string, spaces ...string) (lr *LevelRegistry, err error) {
	lr = &LevelRegistry{
		spaces: make(map[string]spaceDBs),
	}
	err = os.MkdirAll(dirname, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	for _, space := range spaces {
		var initialID uint64
		sdbs := spaceDBs{
			lock: NewBucketVLock(),
		}
		sdbs.idMap, err = leveldb.OpenFile(filepath.Join(dirname, space+"-id"), &opt.Options{})
		if err != nil {
			return nil, errors.Wrapf(err, "opening leveldb at %v", filepath.Join(dirname, space+"-id"))
		}
		sdbs.labelMap, err = leveldb.OpenFile(filepath.Join(dirname, space+"-label"), &opt.Options{})
		if err != nil {
			return nil, errors.Wrapf(err, "opening leveldb at %v", filepath.Join(dirname, space+"-label"))
		}
		iter := sdbs.idMap.NewIterator(nil, nil)
		for iter.Next() {
			id := binary.BigEndian.Uint64(iter.Key())
			if id+1 > initialID {
				initialID = id + 1
			}
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return nil, errors.Wrapf(err, "scanning existing ids for %v", space)
		}
		sdbs.ids = NewNexterAt(initialID)
		lr.spaces[space] = sdbs
	}
	return lr, nil
}

// Close closes all underlying databases.
func (lr *LevelRegistry) Close() error {
	errs := make(Errors, 0)
	for s, dbs := range lr.spaces {
		err := dbs.idMap.Close()
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "closing idMap for space: %v", s))
		}
		err = dbs.labelMap.Close()
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "closing labelMap for space: %v", s))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Get returns the label stored for id in the given space.
func (lr *LevelRegistry) Get(space string, id uint64) (string, error) {
	dbs, ok := lr.spaces[space]
	if !ok {
		return "", errors.Errorf("space %v not found in level registry", space)
	}
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, id)
	data, err := dbs.idMap.Get(idBytes, nil)
	if err != nil {
		return "", errors.Wrapf(err, "space '%v', id %d", space, id)
	}
	return string(data), nil
}

// GetID returns the id stored for the label in the given space, allocating
// and persisting a new id if the label is unknown.
func (lr *LevelRegistry) GetID(space string, label string) (id uint64, err error) {
	dbs, ok := lr.spaces[space]
	if !ok {
		return 0, errors.Errorf("space %v not found in level registry", space)
	}
	labelBytes := []byte(label)

	dbs.lock.Lock(labelBytes)
	defer dbs.lock.Unlock(labelBytes)
	data, err := dbs.labelMap.Get(labelBytes, &opt.ReadOptions{})
	if err != nil && err != leveldb.ErrNotFound {
		return 0, errors.Wrap(err, "trying to read label map")
	} else if err == nil {
		return binary.BigEndian.Uint64(data), nil
	}

	idBytes := make([]byte, 8)
	id = dbs.ids.Next()
	binary.BigEndian.PutUint64(idBytes, id)
	err = dbs.idMap.Put(idBytes, labelBytes, &opt.WriteOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "putting new id into idmap")
	}
	err = dbs.labelMap.Put(labelBytes, idBytes, &opt.WriteOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "putting new id into labelmap")
	}
	return id, nil
}

// ValueLocker locks on a per-value basis, so unrelated labels don't
// serialize behind one mutex.
type ValueLocker interface {
	Lock(val []byte)
	Unlock(val []byte)
}

// BucketVLock hashes values onto a fixed set of mutexes.
type BucketVLock struct {
	ms []sync.Mutex
}

// NewBucketVLock creates a BucketVLock.
func NewBucketVLock() BucketVLock {
	return BucketVLock{
		ms: make([]sync.Mutex, 1000),
	}
}

// Lock locks the mutex for this value's bucket.
func (b BucketVLock) Lock(val []byte) {
	hsh := fnv.New32a()
	hsh.Write(val) // never returns error for hash
	b.ms[hsh.Sum32()%1000].Lock()
}

// Unlock unlocks the mutex for this value's bucket.
func (b BucketVLock) Unlock(val []byte) {
	hsh := fnv.New32a()
	hsh.Write(val) // never returns error for hash
	b.ms[hsh.Sum32()%1000].Unlock()
}

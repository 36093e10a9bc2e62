package etl

import "io"

// Source is the interface for getting raw data one record at a time.
// Implementations of Source should be thread safe and return io.EOF once
// the underlying data is exhausted.
type Source interface {
	Record() (interface{}, error)
}

// NamedReadCloser is a readable, closable stream that knows its own name
// (a filename, an object key), which ends up in provenance records and
// error messages.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
}

// RawSource iterates a set of named streams: the files of a directory, the
// objects under a bucket prefix. Snapshot fetchers and record sources are
// built on top of it.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}

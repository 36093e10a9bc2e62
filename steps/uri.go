// Package steps ties the catalog stages into a DAG of named steps with
// checksum-based dirty detection and a bounded-concurrency runner.
package steps

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind distinguishes the step families.
type Kind string

// Step kinds.
const (
	KindSnapshot Kind = "snapshot"
	KindData     Kind = "data"
	KindPublish  Kind = "publish"
)

// URI addresses one step. Snapshot steps look like
// snapshot://<namespace>/<version>/<file>; data steps look like
// data://<channel>/<namespace>/<version>/<dataset>; publish steps name
// only a target, as in publish://s3.
type URI struct {
	Kind      Kind
	Channel   string // data steps only
	Namespace string
	Version   string
	Name      string
}

// ParseURI parses a step URI.
func ParseURI(raw string) (URI, error) {
	parts := strings.SplitN(raw, "://", 2)
	if len(parts) != 2 {
		return URI{}, errors.Errorf("malformed step URI %q", raw)
	}
	segs := strings.Split(parts[1], "/")
	switch Kind(parts[0]) {
	case KindSnapshot:
		if len(segs) != 3 {
			return URI{}, errors.Errorf("snapshot URI %q needs namespace/version/file", raw)
		}
		return URI{Kind: KindSnapshot, Namespace: segs[0], Version: segs[1], Name: segs[2]}, nil
	case KindData:
		if len(segs) != 4 {
			return URI{}, errors.Errorf("data URI %q needs channel/namespace/version/dataset", raw)
		}
		return URI{Kind: KindData, Channel: segs[0], Namespace: segs[1], Version: segs[2], Name: segs[3]}, nil
	case KindPublish:
		if len(segs) != 1 || segs[0] == "" {
			return URI{}, errors.Errorf("publish URI %q needs a target", raw)
		}
		return URI{Kind: KindPublish, Name: segs[0]}, nil
	}
	return URI{}, errors.Errorf("unknown step kind %q in %q", parts[0], raw)
}

// String reconstructs the URI.
func (u URI) String() string {
	switch u.Kind {
	case KindSnapshot:
		return string(u.Kind) + "://" + strings.Join([]string{u.Namespace, u.Version, u.Name}, "/")
	case KindPublish:
		return string(u.Kind) + "://" + u.Name
	}
	return string(u.Kind) + "://" + strings.Join([]string{u.Channel, u.Namespace, u.Version, u.Name}, "/")
}

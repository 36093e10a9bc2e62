package etl

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Namer derives normalized column names from raw upstream headers. The
// Name method should return an empty string and a nil error if the column
// should be dropped, and an error only if the header is unusable.
type Namer interface {
	Name(raw string) (string, error)
}

// NamerFunc is similar to http.HandlerFunc in that you can make a bare
// function satisfy the Namer interface by doing NamerFunc(yourfunc).
type NamerFunc func(string) (string, error)

// Name on NamerFunc simply calls the wrapped function.
func (f NamerFunc) Name(raw string) (string, error) {
	return f(raw)
}

func underscore(raw string) (string, error) {
	var b strings.Builder
	lastUnder := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnder = false
		default:
			if !lastUnder && b.Len() > 0 {
				b.WriteByte('_')
				lastUnder = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "", errors.Errorf("header %q normalizes to nothing", raw)
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}
	return name, nil
}

// Underscore normalizes a header to the catalog's snake_case convention:
// lowercased, runs of punctuation and whitespace collapsed to single
// underscores, a leading digit protected by an underscore.
var Underscore = NamerFunc(underscore)

// NormalizeColumns renames every column of the table through the namer.
// Collisions after normalization are an error since they would silently
// merge distinct upstream columns.
func (t *Table) NormalizeColumns(n Namer) (*Table, error) {
	mapping := make(map[string]string, t.NumColumns())
	seen := make(map[string]string, t.NumColumns())
	var dropped []string
	for _, raw := range t.Columns() {
		name, err := n.Name(raw)
		if err != nil {
			return nil, errors.Wrap(err, "normalizing header")
		}
		if name == "" {
			dropped = append(dropped, raw)
			continue
		}
		if prev, dup := seen[name]; dup {
			return nil, errors.Errorf("headers %q and %q both normalize to %q", prev, raw, name)
		}
		seen[name] = raw
		if name != raw {
			mapping[raw] = name
		}
	}
	if len(dropped) > 0 {
		var err error
		t, err = t.Drop(dropped...)
		if err != nil {
			return nil, err
		}
	}
	if len(mapping) == 0 {
		return t, nil
	}
	return t.Rename(mapping)
}

package etl

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Mapping holds harmonization decisions: raw labels as they appear in
// upstream data mapped to canonical entity names. Mappings are reviewed by
// a human once and then reused on every rebuild.
type Mapping map[string]string

// LoadMapping reads a mapping file. A missing file is an empty mapping, so
// a first harmonization run starts from nothing.
func LoadMapping(path string) (Mapping, error) {
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return Mapping{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading mapping %s", path)
	}
	m := Mapping{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parsing mapping %s", path)
	}
	return m, nil
}

// Save writes the mapping with keys sorted, so diffs stay reviewable.
func (m Mapping) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling mapping")
	}
	return errors.Wrapf(ioutil.WriteFile(path, append(data, '\n'), 0644), "writing mapping %s", path)
}

// Harmonizer resolves raw labels to canonical entity names using an
// explicit mapping first and fuzzier normalized matching second.
type Harmonizer struct {
	mapping   Mapping
	canonical map[string]struct{}
	byNorm    map[string]string
}

// NewHarmonizer builds a harmonizer over the canonical entity list. If two
// canonical names normalize identically the first one wins; harmonization
// only ever maps raw labels onto it.
func NewHarmonizer(canonical []string, mapping Mapping) *Harmonizer {
	h := &Harmonizer{
		mapping:   mapping,
		canonical: make(map[string]struct{}, len(canonical)),
		byNorm:    make(map[string]string, len(canonical)),
	}
	if h.mapping == nil {
		h.mapping = Mapping{}
	}
	for _, name := range canonical {
		h.canonical[name] = struct{}{}
		norm := normalizeLabel(name)
		if _, taken := h.byNorm[norm]; !taken {
			h.byNorm[norm] = name
		}
	}
	return h
}

// Harmonize resolves one raw label. The mapping takes precedence over
// everything, then an exact canonical match, then a normalized match.
func (h *Harmonizer) Harmonize(raw string) (string, bool) {
	if canon, ok := h.mapping[raw]; ok {
		return canon, true
	}
	if _, ok := h.canonical[raw]; ok {
		return raw, true
	}
	if canon, ok := h.byNorm[normalizeLabel(raw)]; ok {
		return canon, true
	}
	return "", false
}

// Suggest returns canonical names whose normalized form contains the
// normalized raw label, best (shortest) first. Used by the harmonize
// command to prompt review of unmatched labels.
func (h *Harmonizer) Suggest(raw string) []string {
	norm := normalizeLabel(raw)
	if norm == "" {
		return nil
	}
	var out []string
	for cnorm, canon := range h.byNorm {
		if strings.Contains(cnorm, norm) || strings.Contains(norm, cnorm) {
			out = append(out, canon)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// normalizeLabel lowercases and strips everything but letters and digits,
// so "Viet Nam", "Vietnam" and "viet-nam" all collide.
func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HarmonizeColumn maps the named column through the harmonizer, returning
// the new table and the raw labels it could not resolve. Rows with
// unresolved labels are kept untouched so the caller can decide whether to
// fail the step or extend the mapping.
func (t *Table) HarmonizeColumn(h *Harmonizer, col string) (*Table, []string, error) {
	src := t.Column(col)
	if src == nil {
		return nil, nil, errors.Errorf("no column %q", col)
	}
	if src.DType() != TypeString {
		return nil, nil, errors.Errorf("harmonizing non-string column %q (%s)", col, src.DType())
	}
	out := NewSeries(col, TypeString)
	out.Meta = src.Meta.withStep("harmonize", col)
	unmatched := map[string]struct{}{}
	for i := 0; i < src.Len(); i++ {
		if src.IsNull(i) {
			if err := out.Append(nil); err != nil {
				return nil, nil, err
			}
			continue
		}
		raw := src.String(i)
		canon, ok := h.Harmonize(raw)
		if !ok {
			unmatched[raw] = struct{}{}
			canon = raw
		}
		if err := out.Append(canon); err != nil {
			return nil, nil, err
		}
	}
	cols := make([]*Series, len(t.cols))
	for i, c := range t.cols {
		if c.Name == col {
			cols[i] = out
		} else {
			cols[i] = c
		}
	}
	missing := make([]string, 0, len(unmatched))
	for raw := range unmatched {
		missing = append(missing, raw)
	}
	sort.Strings(missing)
	return t.withCols(cols), missing, nil
}

package etl

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// License describes the terms under which a dataset or variable may be
// redistributed.
type License struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Origin records where a piece of data came from. Every variable carries the
// origins of all upstream snapshots that contributed to it, so provenance
// survives arbitrary recombination of tables.
type Origin struct {
	Producer      string  `json:"producer,omitempty" yaml:"producer,omitempty"`
	Title         string  `json:"title,omitempty" yaml:"title,omitempty"`
	Description   string  `json:"description,omitempty" yaml:"description,omitempty"`
	CitationFull  string  `json:"citation_full,omitempty" yaml:"citation_full,omitempty"`
	URLMain       string  `json:"url_main,omitempty" yaml:"url_main,omitempty"`
	URLDownload   string  `json:"url_download,omitempty" yaml:"url_download,omitempty"`
	DateAccessed  string  `json:"date_accessed,omitempty" yaml:"date_accessed,omitempty"`
	DatePublished string  `json:"date_published,omitempty" yaml:"date_published,omitempty"`
	License       License `json:"license,omitempty" yaml:"license,omitempty"`
}

// ProcessStep is one entry in a variable's processing log. The log is an
// append-only record of the operations that produced the variable.
type ProcessStep struct {
	Op      string   `json:"op" yaml:"op"`
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// Display holds presentation hints for a variable. It is passed through to
// whatever renders the data and never interpreted by the pipeline itself.
type Display struct {
	Name             string  `json:"name,omitempty" yaml:"name,omitempty"`
	Unit             string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	ShortUnit        string  `json:"short_unit,omitempty" yaml:"short_unit,omitempty"`
	NumDecimalPlaces int     `json:"num_decimal_places,omitempty" yaml:"numDecimalPlaces,omitempty"`
	ConversionFactor float64 `json:"conversion_factor,omitempty" yaml:"conversionFactor,omitempty"`
}

// VariableMeta is the metadata attached to a single column of a table. It
// travels with the column through selection, filtering, joining, reshaping,
// and serialization.
type VariableMeta struct {
	Title       string        `json:"title,omitempty" yaml:"title,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Unit        string        `json:"unit,omitempty" yaml:"unit,omitempty"`
	ShortUnit   string        `json:"short_unit,omitempty" yaml:"short_unit,omitempty"`
	Display     *Display      `json:"display,omitempty" yaml:"display,omitempty"`
	Origins     []Origin      `json:"origins,omitempty" yaml:"origins,omitempty"`
	Licenses    []License     `json:"licenses,omitempty" yaml:"licenses,omitempty"`
	Processing  []ProcessStep `json:"processing,omitempty" yaml:"processing,omitempty"`
}

// TableMeta is the metadata attached to a whole table.
type TableMeta struct {
	ShortName   string       `json:"short_name" yaml:"short_name"`
	Title       string       `json:"title,omitempty" yaml:"title,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	PrimaryKey  []string     `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Dataset     *DatasetMeta `json:"dataset,omitempty" yaml:"dataset,omitempty"`
}

// DatasetMeta describes a dataset: a versioned directory of tables belonging
// to one channel of the catalog.
type DatasetMeta struct {
	Channel          string    `json:"channel,omitempty" yaml:"channel,omitempty"`
	Namespace        string    `json:"namespace" yaml:"namespace"`
	ShortName        string    `json:"short_name" yaml:"short_name"`
	Version          string    `json:"version" yaml:"version"`
	Title            string    `json:"title,omitempty" yaml:"title,omitempty"`
	Description      string    `json:"description,omitempty" yaml:"description,omitempty"`
	Licenses         []License `json:"licenses,omitempty" yaml:"licenses,omitempty"`
	Origins          []Origin  `json:"origins,omitempty" yaml:"origins,omitempty"`
	UpdatePeriodDays int       `json:"update_period_days,omitempty" yaml:"update_period_days,omitempty"`
	IsPublic         bool      `json:"is_public" yaml:"is_public"`
	SourceChecksum   string    `json:"source_checksum,omitempty" yaml:"source_checksum,omitempty"`
}

// Validate checks that the fields needed to address the dataset in a catalog
// are present.
func (dm *DatasetMeta) Validate() error {
	if dm.Namespace == "" {
		return errors.New("dataset metadata missing namespace")
	}
	if dm.ShortName == "" {
		return errors.New("dataset metadata missing short_name")
	}
	if dm.Version == "" {
		return errors.New("dataset metadata missing version")
	}
	return nil
}

// URI returns the catalog path of the dataset, e.g.
// "harmonize/who/2024-01-01/gho".
func (dm *DatasetMeta) URI() string {
	return strings.Join([]string{dm.Channel, dm.Namespace, dm.Version, dm.ShortName}, "/")
}

// mergeOrigins returns the union of two origin lists, deduplicated and
// ordered deterministically so that checksums remain stable.
func mergeOrigins(a, b []Origin) []Origin {
	seen := make(map[Origin]struct{}, len(a)+len(b))
	out := make([]Origin, 0, len(a)+len(b))
	for _, o := range a {
		if _, ok := seen[o]; !ok {
			seen[o] = struct{}{}
			out = append(out, o)
		}
	}
	for _, o := range b {
		if _, ok := seen[o]; !ok {
			seen[o] = struct{}{}
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Producer != out[j].Producer {
			return out[i].Producer < out[j].Producer
		}
		return out[i].Title < out[j].Title
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeLicenses(a, b []License) []License {
	seen := make(map[License]struct{}, len(a)+len(b))
	out := make([]License, 0, len(a)+len(b))
	for _, l := range append(append([]License{}, a...), b...) {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) == 0 {
		return nil
	}
	return out
}

// Merge combines two variable metadata records, as happens when values from
// two columns end up in one (concat, melt). Origins and licenses are
// unioned. Units must agree or be empty on one side; conflicting units are
// reported as an error since silently dropping one would misdescribe the
// data.
func (vm VariableMeta) Merge(other VariableMeta) (VariableMeta, error) {
	out := vm
	switch {
	case vm.Unit == "":
		out.Unit = other.Unit
		out.ShortUnit = other.ShortUnit
	case other.Unit == "" || other.Unit == vm.Unit:
		// keep ours
	default:
		return VariableMeta{}, errors.Errorf("conflicting units %q and %q", vm.Unit, other.Unit)
	}
	if out.Title == "" {
		out.Title = other.Title
	}
	if out.Description == "" {
		out.Description = other.Description
	}
	out.Origins = mergeOrigins(vm.Origins, other.Origins)
	out.Licenses = mergeLicenses(vm.Licenses, other.Licenses)
	out.Processing = appendSteps(vm.Processing, other.Processing...)
	return out, nil
}

// withStep returns a copy of the metadata with one more processing log entry.
func (vm VariableMeta) withStep(op string, columns ...string) VariableMeta {
	out := vm
	out.Processing = appendSteps(vm.Processing, ProcessStep{Op: op, Columns: columns})
	return out
}

func appendSteps(log []ProcessStep, steps ...ProcessStep) []ProcessStep {
	out := make([]ProcessStep, 0, len(log)+len(steps))
	out = append(out, log...)
	for _, s := range steps {
		dup := false
		for _, have := range out {
			if have.Op == s.Op && equalStrings(have.Columns, s.Columns) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

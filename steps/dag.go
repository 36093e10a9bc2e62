package steps

import (
	"io/ioutil"
	"sort"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// DAG maps each step URI to the URIs it depends on. Snapshot steps appear
// only as dependencies unless they carry an entry of their own.
type DAG struct {
	Steps map[string][]string `yaml:"steps"`
}

// LoadDAG reads a dag.yml file.
func LoadDAG(filename string) (*DAG, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading dag file")
	}
	return ParseDAG(buf)
}

// ParseDAG parses dag.yml content and validates every URI in it.
func ParseDAG(buf []byte) (*DAG, error) {
	d := &DAG{}
	if err := yaml.UnmarshalStrict(buf, d); err != nil {
		return nil, errors.Wrap(err, "unmarshaling dag")
	}
	if d.Steps == nil {
		d.Steps = make(map[string][]string)
	}
	for step, deps := range d.Steps {
		if _, err := ParseURI(step); err != nil {
			return nil, errors.Wrap(err, "validating step")
		}
		for _, dep := range deps {
			if _, err := ParseURI(dep); err != nil {
				return nil, errors.Wrapf(err, "validating dependency of %s", step)
			}
		}
	}
	return d, nil
}

// Deps returns the direct dependencies of a step. Steps that appear only
// as dependencies have none.
func (d *DAG) Deps(step string) []string {
	return d.Steps[step]
}

// All returns every step in the graph, including ones that appear only on
// the dependency side, sorted.
func (d *DAG) All() []string {
	seen := make(map[string]struct{})
	for step, deps := range d.Steps {
		seen[step] = struct{}{}
		for _, dep := range deps {
			seen[dep] = struct{}{}
		}
	}
	all := make([]string, 0, len(seen))
	for step := range seen {
		all = append(all, step)
	}
	sort.Strings(all)
	return all
}

// TopoSort orders the given steps so every step follows its dependencies.
// It reports cycles by naming a step on the cycle.
func (d *DAG) TopoSort(steps []string) ([]string, error) {
	const (
		white = iota // unvisited
		gray         // on stack
		black        // done
	)
	color := make(map[string]int)
	include := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		include[s] = struct{}{}
	}
	var order []string
	var visit func(step string) error
	visit = func(step string) error {
		switch color[step] {
		case gray:
			return errors.Errorf("dependency cycle through %s", step)
		case black:
			return nil
		}
		color[step] = gray
		deps := append([]string{}, d.Steps[step]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := include[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[step] = black
		order = append(order, step)
		return nil
	}
	sorted := append([]string{}, steps...)
	sort.Strings(sorted)
	for _, step := range sorted {
		if err := visit(step); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Subgraph selects every step whose URI contains pattern, plus the
// transitive dependencies needed to run them. An empty pattern selects
// the whole graph.
func (d *DAG) Subgraph(pattern string) []string {
	selected := make(map[string]struct{})
	var add func(step string)
	add = func(step string) {
		if _, ok := selected[step]; ok {
			return
		}
		selected[step] = struct{}{}
		for _, dep := range d.Steps[step] {
			add(dep)
		}
	}
	for _, step := range d.All() {
		if pattern == "" || strings.Contains(step, pattern) {
			add(step)
		}
	}
	out := make([]string, 0, len(selected))
	for step := range selected {
		out = append(out, step)
	}
	sort.Strings(out)
	return out
}

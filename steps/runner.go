package steps

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
	"github.com/statbase/etl/catalog"
	"github.com/statbase/etl/snapshot"
)

// Context carries everything a data step function needs: where to read
// snapshots and upstream datasets from, and where to write its output.
type Context struct {
	Step      URI
	Deps      []URI
	Snapshots *snapshot.Store
	Catalog   *catalog.Local
	Log       etl.Logger
}

// Snapshot opens the snapshot dependency with the given short name.
func (sc *Context) Snapshot(shortName string) (etl.NamedReadCloser, error) {
	for _, dep := range sc.Deps {
		if dep.Kind == KindSnapshot && dep.Name == shortName {
			return sc.Snapshots.Open(dep.Namespace, dep.Version, dep.Name)
		}
	}
	return nil, errors.Errorf("step %s has no snapshot dependency %q", sc.Step, shortName)
}

// Dataset opens the data dependency with the given short name.
func (sc *Context) Dataset(shortName string) (*catalog.Dataset, error) {
	for _, dep := range sc.Deps {
		if dep.Kind == KindData && dep.Name == shortName {
			return sc.Catalog.Dataset(dep.Channel, dep.Namespace, dep.Version, dep.Name)
		}
	}
	return nil, errors.Errorf("step %s has no data dependency %q", sc.Step, shortName)
}

// StepFunc builds one dataset. It must write its output through
// sc.Catalog under sc.Step's channel, namespace, version and name.
type StepFunc func(sc *Context) error

// PublishFunc pushes the catalog to a remote target.
type PublishFunc func(target string) error

// Runner executes the dirty subset of a DAG with bounded concurrency.
type Runner struct {
	Concurrency int
	DryRun      bool
	Force       bool
	Log         etl.Logger
	Stats       etl.Statter

	dag       *DAG
	snapshots *snapshot.Store
	catalog   *catalog.Local
	state     *State
	steps     map[string]StepFunc
	publish   PublishFunc
}

// NewRunner returns a Runner with concurrency 1 and no-op observability.
func NewRunner(dag *DAG, store *snapshot.Store, cat *catalog.Local, state *State) *Runner {
	return &Runner{
		Concurrency: 1,
		Log:         etl.NopLogger{},
		Stats:       etl.NopStatter{},
		dag:         dag,
		snapshots:   store,
		catalog:     cat,
		state:       state,
		steps:       make(map[string]StepFunc),
	}
}

// Register binds a step function to a URI or URI prefix. Exact matches
// win over prefixes; among prefixes the longest wins.
func (r *Runner) Register(pattern string, fn StepFunc) {
	r.steps[pattern] = fn
}

// RegisterPublish binds the function run for publish steps.
func (r *Runner) RegisterPublish(fn PublishFunc) {
	r.publish = fn
}

func (r *Runner) lookup(step string) (StepFunc, error) {
	if fn, ok := r.steps[step]; ok {
		return fn, nil
	}
	best := ""
	for pattern := range r.steps {
		if strings.HasPrefix(step, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best == "" {
		return nil, errors.Errorf("no step function registered for %s", step)
	}
	return r.steps[best], nil
}

// Checksums computes the current checksum of every step in order. A
// snapshot step's checksum is its sidecar's md5; other steps hash their
// URI together with their dependencies' checksums.
func (r *Runner) Checksums(order []string) (map[string]string, error) {
	sums := make(map[string]string, len(order))
	for _, step := range order {
		u, err := ParseURI(step)
		if err != nil {
			return nil, err
		}
		if u.Kind == KindSnapshot {
			sc, err := snapshot.ReadSidecar(r.snapshots.SidecarPath(u.Namespace, u.Version, u.Name))
			if err != nil {
				return nil, errors.Wrapf(err, "reading sidecar for %s", step)
			}
			if err := sc.Validate(); err != nil {
				return nil, errors.Wrapf(err, "validating sidecar for %s", step)
			}
			sums[step] = sc.Outs[0].MD5
			continue
		}
		depSums := make(map[string]string)
		for _, dep := range r.dag.Deps(step) {
			sum, ok := sums[dep]
			if !ok {
				return nil, errors.Errorf("step %s depends on %s which is not in the run", step, dep)
			}
			depSums[dep] = sum
		}
		sums[step] = combine(step, depSums)
	}
	return sums, nil
}

// Dirty reports whether a step needs to run given its current checksum.
func (r *Runner) Dirty(step, sum string) bool {
	if r.Force {
		return true
	}
	if r.state.Checksums[step] != sum {
		return true
	}
	u, err := ParseURI(step)
	if err != nil {
		return true
	}
	switch u.Kind {
	case KindSnapshot:
		return r.snapshots.Verify(u.Namespace, u.Version, u.Name) != nil
	case KindData:
		return !r.catalog.Has(u.Channel, u.Namespace, u.Version, u.Name)
	}
	return false
}

// Run executes every dirty step whose URI contains pattern, plus dirty
// transitive dependencies, in dependency order. Workers pull ready steps
// from a channel the way a parse pool pulls records; a step whose
// dependency failed is skipped and counted as failed.
func (r *Runner) Run(pattern string) error {
	selected := r.dag.Subgraph(pattern)
	if len(selected) == 0 {
		r.Log.Printf("no steps match %q", pattern)
		return nil
	}
	order, err := r.dag.TopoSort(selected)
	if err != nil {
		return errors.Wrap(err, "sorting steps")
	}
	sums, err := r.Checksums(order)
	if err != nil {
		return errors.Wrap(err, "computing checksums")
	}
	dirty := make(map[string]bool, len(order))
	for _, step := range order {
		dirty[step] = r.Dirty(step, sums[step])
	}

	if r.DryRun {
		for _, step := range order {
			if dirty[step] {
				r.Log.Printf("would run %s", step)
			} else {
				r.Log.Debugf("up to date %s", step)
			}
		}
		return nil
	}

	// Scheduling state. waiting counts unmet in-run dependencies per
	// step; a step enters ready when it hits zero.
	waiting := make(map[string]int, len(order))
	children := make(map[string][]string)
	inRun := make(map[string]bool, len(order))
	for _, step := range order {
		inRun[step] = true
	}
	for _, step := range order {
		n := 0
		for _, dep := range r.dag.Deps(step) {
			if inRun[dep] {
				n++
				children[dep] = append(children[dep], step)
			}
		}
		waiting[step] = n
	}

	ready := make(chan string, len(order))
	var mu sync.Mutex
	failed := make(map[string]bool)
	var errs []error
	remaining := len(order)

	complete := func(step string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed[step] = true
			errs = append(errs, errors.Wrapf(err, "running %s", step))
		}
		for _, child := range children[step] {
			if failed[step] {
				failed[child] = true
			}
			waiting[child]--
			if waiting[child] == 0 {
				ready <- child
			}
		}
		remaining--
		if remaining == 0 {
			close(ready)
		}
	}

	for _, step := range order {
		if waiting[step] == 0 {
			ready <- step
		}
	}

	conc := r.Concurrency
	if conc < 1 {
		conc = 1
	}
	wg := sync.WaitGroup{}
	for i := 0; i < conc; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := range ready {
				mu.Lock()
				skip := failed[step]
				mu.Unlock()
				if skip {
					r.Stats.Count("steps.failed", 1, 1)
					complete(step, nil)
					continue
				}
				if !dirty[step] {
					r.Log.Debugf("up to date %s", step)
					r.Stats.Count("steps.skipped", 1, 1)
					complete(step, nil)
					continue
				}
				start := time.Now()
				err := r.runStep(step)
				if err == nil {
					r.Stats.Count("steps.run", 1, 1)
					r.Stats.Timing(step, time.Since(start), 1)
					err = r.state.Record(step, sums[step])
				} else {
					r.Stats.Count("steps.failed", 1, 1)
				}
				complete(step, err)
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

func (r *Runner) runStep(step string) error {
	u, err := ParseURI(step)
	if err != nil {
		return err
	}
	r.Log.Printf("running %s", step)
	switch u.Kind {
	case KindSnapshot:
		_, err := r.snapshots.Fetch(u.Namespace, u.Version, u.Name)
		return err
	case KindData:
		fn, err := r.lookup(step)
		if err != nil {
			return err
		}
		deps := make([]URI, 0, len(r.dag.Deps(step)))
		for _, dep := range r.dag.Deps(step) {
			du, err := ParseURI(dep)
			if err != nil {
				return err
			}
			deps = append(deps, du)
		}
		return fn(&Context{
			Step:      u,
			Deps:      deps,
			Snapshots: r.snapshots,
			Catalog:   r.catalog,
			Log:       r.Log,
		})
	case KindPublish:
		if r.publish == nil {
			return errors.New("no publish function registered")
		}
		return r.publish(u.Name)
	}
	return errors.Errorf("unhandled step kind %q", u.Kind)
}

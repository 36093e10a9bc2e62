package steps

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// State records the checksum each step had the last time it ran
// successfully. It is persisted as JSON next to the catalog. Record and
// Forget are safe to call from concurrent runner workers.
type State struct {
	mu        sync.Mutex
	filename  string
	Checksums map[string]string `json:"checksums"`
}

// LoadState reads a state file, returning an empty state when the file
// does not exist yet.
func LoadState(filename string) (*State, error) {
	st := &State{filename: filename, Checksums: make(map[string]string)}
	buf, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		return st, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "reading state file")
	}
	if err := json.Unmarshal(buf, st); err != nil {
		return nil, errors.Wrap(err, "unmarshaling state")
	}
	if st.Checksums == nil {
		st.Checksums = make(map[string]string)
	}
	return st, nil
}

// Record stores a step's checksum and persists the state.
func (st *State) Record(step, checksum string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Checksums[step] = checksum
	return st.save()
}

// Forget drops a step's recorded checksum, forcing it dirty.
func (st *State) Forget(step string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.Checksums, step)
	return st.save()
}

// save is called with mu held so the map is never marshaled mid-write.
func (st *State) save() error {
	buf, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling state")
	}
	return errors.Wrap(ioutil.WriteFile(st.filename, buf, 0644), "writing state file")
}

// combine hashes a step URI together with its dependencies' checksums so
// a change anywhere upstream changes the step's own checksum.
func combine(step string, depSums map[string]string) string {
	h := md5.New()
	h.Write([]byte(step))
	deps := make([]string, 0, len(depSums))
	for dep := range depSums {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	for _, dep := range deps {
		h.Write([]byte(dep))
		h.Write([]byte(depSums[dep]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

package steps

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestStateRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "state.json")

	st, err := LoadState(filename)
	if err != nil {
		t.Fatalf("loading missing state: %v", err)
	}
	if len(st.Checksums) != 0 {
		t.Fatalf("missing state file should load empty, got %v", st.Checksums)
	}

	if err := st.Record("data://format/who/2026-08-01/gho", "abc123"); err != nil {
		t.Fatalf("recording: %v", err)
	}

	again, err := LoadState(filename)
	if err != nil {
		t.Fatalf("reloading state: %v", err)
	}
	if again.Checksums["data://format/who/2026-08-01/gho"] != "abc123" {
		t.Fatalf("checksum not persisted: %v", again.Checksums)
	}

	if err := again.Forget("data://format/who/2026-08-01/gho"); err != nil {
		t.Fatalf("forgetting: %v", err)
	}
	final, err := LoadState(filename)
	if err != nil {
		t.Fatalf("reloading state: %v", err)
	}
	if len(final.Checksums) != 0 {
		t.Fatalf("forget not persisted: %v", final.Checksums)
	}
}

func TestStateConcurrentRecord(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "state.json")
	st, err := LoadState(filename)
	if err != nil {
		t.Fatalf("loading state: %v", err)
	}

	// runner workers record checksums concurrently
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				step := fmt.Sprintf("data://format/ns%d/2026-08-01/ds%d", worker, j)
				if err := st.Record(step, "sum"); err != nil {
					t.Errorf("recording %s: %v", step, err)
				}
			}
		}(i)
	}
	wg.Wait()

	again, err := LoadState(filename)
	if err != nil {
		t.Fatalf("reloading state: %v", err)
	}
	if len(again.Checksums) != 8*50 {
		t.Fatalf("expected 400 recorded checksums, got %d", len(again.Checksums))
	}
}

func TestCombine(t *testing.T) {
	a := combine("data://format/who/2026-08-01/gho", map[string]string{"x": "1", "y": "2"})
	b := combine("data://format/who/2026-08-01/gho", map[string]string{"y": "2", "x": "1"})
	if a != b {
		t.Fatalf("combine should be order independent: %s vs %s", a, b)
	}
	c := combine("data://format/who/2026-08-01/gho", map[string]string{"x": "1", "y": "3"})
	if a == c {
		t.Fatalf("a dependency change should change the checksum")
	}
	d := combine("data://format/who/2026-08-01/other", map[string]string{"x": "1", "y": "2"})
	if a == d {
		t.Fatalf("the step URI should factor into the checksum")
	}
}

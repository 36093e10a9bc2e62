package etl

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/statbase/etl/test"
)

func TestMapRegistry(t *testing.T) {
	reg := NewMapRegistry()
	id1, err := reg.GetID("entity", "France")
	test.ErrNil(t, err, "getting id for France")
	id2, err := reg.GetID("entity", "Chad")
	test.ErrNil(t, err, "getting id for Chad")
	if id1 == id2 {
		t.Fatalf("distinct labels got the same id: %d", id1)
	}

	again, err := reg.GetID("entity", "France")
	test.ErrNil(t, err, "getting id for France again")
	if again != id1 {
		t.Fatalf("same label should get same id: %d vs %d", id1, again)
	}

	label, err := reg.Get("entity", id2)
	test.ErrNil(t, err, "looking up label")
	test.MustBe(t, label, "Chad")

	// independent spaces
	other, err := reg.GetID("variable", "France")
	test.ErrNil(t, err, "getting id in another space")
	if other != 0 {
		t.Fatalf("fresh space should start at 0, got %d", other)
	}

	if _, err := reg.Get("entity", 999); err == nil {
		t.Fatalf("expected error for unknown id")
	}
}

func TestConcMapRegistry(t *testing.T) {
	reg := NewMapRegistry()
	wg := &sync.WaitGroup{}
	rets := make([][]uint64, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rets[i] = make([]uint64, 100)
			for j := 0; j < 100; j++ {
				id, err := reg.GetID("entity", fmt.Sprintf("label%d", j))
				if err != nil {
					t.Errorf("getting id: %v", err)
					return
				}
				rets[i][j] = id
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < 8; i++ {
		for j := 0; j < 100; j++ {
			if rets[i][j] != rets[0][j] {
				t.Fatalf("goroutine %d got different id for label%d: %d vs %d", i, j, rets[i][j], rets[0][j])
			}
		}
	}
	ids := make(test.Uint64Slice, 100)
	copy(ids, rets[0])
	sort.Sort(ids)
	for j := 0; j < 100; j++ {
		if ids[j] != uint64(j) {
			t.Fatalf("ids should be dense 0..99, got %v at %d", ids[j], j)
		}
	}
}

func TestLevelRegistryReopen(t *testing.T) {
	dir := t.TempDir()
	lr, err := NewLevelRegistry(dir, "entity")
	test.ErrNil(t, err, "opening level registry")

	id1, err := lr.GetID("entity", "France")
	test.ErrNil(t, err, "getting id for France")
	id2, err := lr.GetID("entity", "Chad")
	test.ErrNil(t, err, "getting id for Chad")
	if id1 == id2 {
		t.Fatalf("distinct labels got the same id")
	}

	test.ErrNil(t, lr.Close(), "closing registry")

	lr, err = NewLevelRegistry(dir, "entity")
	test.ErrNil(t, err, "reopening level registry")
	defer lr.Close()

	again, err := lr.GetID("entity", "France")
	test.ErrNil(t, err, "getting id after reopen")
	if again != id1 {
		t.Fatalf("id not stable across reopen: %d vs %d", id1, again)
	}

	// allocation resumes past existing ids
	id3, err := lr.GetID("entity", "Peru")
	test.ErrNil(t, err, "getting new id after reopen")
	if id3 == id1 || id3 == id2 {
		t.Fatalf("new label reused an existing id: %d", id3)
	}

	label, err := lr.Get("entity", id2)
	test.ErrNil(t, err, "looking up label after reopen")
	test.MustBe(t, label, "Chad")

	if _, err := lr.GetID("nope", "x"); err == nil {
		t.Fatalf("expected error for unknown space")
	}
}

func TestConcLevelRegistry(t *testing.T) {
	lr, err := NewLevelRegistry(t.TempDir(), "entity")
	test.ErrNil(t, err, "opening level registry")
	defer lr.Close()

	wg := &sync.WaitGroup{}
	rets := make([][]uint64, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rets[i] = make([]uint64, 50)
			for j := 0; j < 50; j++ {
				id, err := lr.GetID("entity", fmt.Sprintf("label%d", j))
				if err != nil {
					t.Errorf("getting id: %v", err)
					return
				}
				rets[i][j] = id
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < 8; i++ {
		for j := 0; j < 50; j++ {
			if rets[i][j] != rets[0][j] {
				t.Fatalf("goroutine %d got different id for label%d", i, j)
			}
		}
	}
}

func TestNexter(t *testing.T) {
	n := NewNexter()
	if n.Next() != 0 || n.Next() != 1 {
		t.Fatalf("nexter should count from 0")
	}
	test.MustBe(t, n.Last(), uint64(1))

	at := NewNexterAt(42)
	test.MustBe(t, at.Next(), uint64(42))
}

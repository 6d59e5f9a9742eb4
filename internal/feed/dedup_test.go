package feed

import (
	"sync"
	"testing"
	"time"
)

func TestDedupAdmitOnce(t *testing.T) {
	t.Parallel()
	d := NewDedup()

	if !d.Admit("a1") {
		t.Fatal("first Admit should return true")
	}
	if d.Admit("a1") {
		t.Fatal("second Admit for same uid should return false")
	}
	if !d.Admit("a2") {
		t.Fatal("unseen uid should be admitted")
	}
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
}

func TestDedupEmptyUID(t *testing.T) {
	t.Parallel()
	d := NewDedup()
	if d.Admit("") {
		t.Fatal("empty uid must never be admitted")
	}
}

func TestDedupFilterKeepsOrder(t *testing.T) {
	t.Parallel()
	d := NewDedup()
	d.Admit("b")

	jobs := []Job{{UID: "a"}, {UID: "b"}, {UID: "c"}, {UID: "a"}}
	got := d.Filter(jobs)

	if len(got) != 2 || got[0].UID != "a" || got[1].UID != "c" {
		t.Fatalf("Filter = %+v, want [a c]", got)
	}
}

func TestDedupFilterAcrossBatches(t *testing.T) {
	t.Parallel()
	d := NewDedup()

	first := d.Filter([]Job{{UID: "x"}})
	if len(first) != 1 {
		t.Fatalf("first batch: got %d jobs, want 1", len(first))
	}
	second := d.Filter([]Job{{UID: "x"}})
	if len(second) != 0 {
		t.Fatalf("second batch: got %d jobs, want 0", len(second))
	}
}

func TestDedupConcurrentAdmit(t *testing.T) {
	t.Parallel()
	d := NewDedup()

	const workers = 16
	var wg sync.WaitGroup
	admitted := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- d.Admit("same")
		}()
	}
	wg.Wait()
	close(admitted)

	wins := 0
	for ok := range admitted {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("admitted %d times, want exactly 1", wins)
	}
}

func TestDedupSweep(t *testing.T) {
	t.Parallel()
	d := NewDedup()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }

	d.Admit("old")
	now = base.Add(2 * time.Hour)
	d.Admit("new")

	if n := d.Sweep(time.Hour); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if d.Admit("old") != true {
		t.Fatal("swept uid should be admissible again")
	}
	if d.Admit("new") {
		t.Fatal("recent uid must stay filtered")
	}

	if n := d.Sweep(0); n != 0 {
		t.Fatalf("Sweep(0) removed %d, want 0 (no-op)", n)
	}
}

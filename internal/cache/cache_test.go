package cache

import (
	"sync"
	"testing"
)

func TestUpdate_HistoryBound(t *testing.T) {
	c := New()
	for i := 0; i < 150; i++ {
		c.Update(7, "T", i, Good)
	}

	h := c.HistoryOf(7, 1000)
	if len(h) != HistoryLimit {
		t.Fatalf("expected history capped at %d, got %d", HistoryLimit, len(h))
	}

	cur, ok := c.CurrentOf(7)
	if !ok {
		t.Fatalf("expected current sample to exist")
	}
	if cur.Value != h[len(h)-1].Value {
		t.Fatalf("current != last of history: current=%v last=%v", cur.Value, h[len(h)-1].Value)
	}
}

func TestHistoryOf_OldestToNewest(t *testing.T) {
	c := New()
	for i := 0; i < 150; i++ {
		c.Update(7, "T", i, Good)
	}

	h := c.HistoryOf(7, 3)
	if len(h) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(h))
	}
	want := []int{147, 148, 149}
	for i, s := range h {
		if s.Value != want[i] {
			t.Fatalf("entry %d: got %v want %v", i, s.Value, want[i])
		}
	}
}

func TestHistoryOf_FewerThanRequested(t *testing.T) {
	c := New()
	c.Update(1, "A", 1, Good)
	c.Update(1, "A", 2, Good)

	h := c.HistoryOf(1, 10)
	if len(h) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(h))
	}
}

func TestQualityPropagation(t *testing.T) {
	c := New()
	c.Update(1, "A", 10, Good)
	c.Update(1, "A", nil, Bad)

	snap := c.SnapshotAll()
	if snap[1].Quality != Bad {
		t.Fatalf("expected bad quality in snapshot, got %v", snap[1].Quality)
	}
	if snap[1].Value != nil {
		t.Fatalf("expected nil value on bad quality, got %v", snap[1].Value)
	}
}

func TestNameSticky(t *testing.T) {
	c := New()
	c.Update(1, "Original", 1, Good)
	c.Update(1, "", 2, Good) // empty name must not blank it
	if c.NameOf(1) != "Original" {
		t.Fatalf("name should stay sticky, got %q", c.NameOf(1))
	}

	c.SetName(1, "Renamed")
	if c.NameOf(1) != "Renamed" {
		t.Fatalf("explicit SetName should win, got %q", c.NameOf(1))
	}
}

func TestExists(t *testing.T) {
	c := New()
	if c.Exists(42) {
		t.Fatalf("id should not exist yet")
	}
	c.Update(42, "X", 1, Good)
	if !c.Exists(42) {
		t.Fatalf("id should exist after update")
	}
}

func TestSnapshotAll_ConsistentUnderConcurrency(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		for {
			select {
			case <-stop:
				return
			default:
				c.Update(1, "A", i, Good)
				i++
			}
		}
	}()

	for i := 0; i < 500; i++ {
		snap := c.SnapshotAll()
		if e, ok := snap[1]; ok {
			if e.Quality != Good {
				t.Fatalf("torn read: quality=%v", e.Quality)
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestHistoryOf_UnknownID(t *testing.T) {
	c := New()
	if h := c.HistoryOf(999, 10); h != nil {
		t.Fatalf("expected nil history for unknown id, got %v", h)
	}
}

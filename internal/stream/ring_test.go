package stream

import (
	"testing"

	"niftyscalp/internal/models"
)

func TestTickRing_PushAndWrap(t *testing.T) {
	r := newTickRing(3)
	for i := 1; i <= 5; i++ {
		r.push(models.Tick{Price: float64(i)})
	}

	if r.len() != 3 {
		t.Fatalf("len() = %d, want 3", r.len())
	}

	snap := r.snapshot()
	want := []float64{3, 4, 5}
	for i, w := range want {
		if snap[i].Price != w {
			t.Fatalf("snapshot() = %v, want prices %v", snap, want)
		}
	}
}

func TestTickRing_LastTwo(t *testing.T) {
	r := newTickRing(3)
	if _, _, ok := r.lastTwo(); ok {
		t.Error("lastTwo() on empty ring reported ok")
	}
	r.push(models.Tick{Price: 1})
	if _, _, ok := r.lastTwo(); ok {
		t.Error("lastTwo() with one tick reported ok")
	}

	for i := 2; i <= 7; i++ {
		r.push(models.Tick{Price: float64(i)})
	}
	prev, last, ok := r.lastTwo()
	if !ok || prev.Price != 6 || last.Price != 7 {
		t.Errorf("lastTwo() = (%v, %v, %v), want (6, 7, true)", prev.Price, last.Price, ok)
	}
}

func TestTickRing_SnapshotIsCopy(t *testing.T) {
	r := newTickRing(3)
	r.push(models.Tick{Price: 1})
	snap := r.snapshot()
	snap[0].Price = 99
	if got := r.snapshot()[0].Price; got != 1 {
		t.Errorf("mutating a snapshot changed the ring: %v", got)
	}
}

package heap

import (
	"testing"
	"unsafe"
)

func newTestHeap(t *testing.T, size int) *Heap {
	t.Helper()
	h, err := New(size)
	if err != nil {
		t.Fatalf("failed to map heap region: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRecommendAllocationSize(t *testing.T) {
	h := newTestHeap(t, 4096)
	for _, tc := range []struct{ in, want int }{
		{1, 64},
		{64, 64},
		{65, 128},
		{1000, 1024},
	} {
		if got := h.RecommendAllocationSize(tc.in); got != tc.want {
			t.Errorf("RecommendAllocationSize(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestAllocBlock(t *testing.T) {
	t.Run("rounds block size up to the allocation unit", func(t *testing.T) {
		h := newTestHeap(t, 4096)
		block := h.AllocBlock(100, AllocShortTerm)
		if block == nil {
			t.Fatal("expected a block, got nil")
		}
		if len(block) != 128 {
			t.Errorf("expected 128 byte block, got %d", len(block))
		}
	})

	t.Run("returns nil when no extent fits", func(t *testing.T) {
		h := newTestHeap(t, 4096)
		if block := h.AllocBlock(h.Size()+1, AllocShortTerm); block != nil {
			t.Fatal("expected nil for an oversized request")
		}
		if block := h.AllocBlock(h.Size(), AllocShortTerm); block == nil {
			t.Fatal("expected the whole region to be allocatable")
		}
		if block := h.AllocBlock(1, AllocShortTerm); block != nil {
			t.Fatal("expected nil from an exhausted heap")
		}
	})

	t.Run("long-term blocks sit above short-term blocks", func(t *testing.T) {
		h := newTestHeap(t, 4096)
		short := h.AllocBlock(64, AllocShortTerm)
		long := h.AllocBlock(64, AllocLongTerm)
		if uintptr(unsafe.Pointer(&short[0])) >= uintptr(unsafe.Pointer(&long[0])) {
			t.Fatal("expected the long-term block at a higher address")
		}
	})
}

func TestFreeBlock(t *testing.T) {
	t.Run("freed space is reusable", func(t *testing.T) {
		h := newTestHeap(t, 4096)
		block := h.AllocBlock(h.Size(), AllocShortTerm)
		if h.FreeBytes() != 0 {
			t.Fatalf("expected no free bytes, got %d", h.FreeBytes())
		}
		h.FreeBlock(block)
		if h.FreeBytes() != h.Size() {
			t.Fatalf("expected the whole region free, got %d", h.FreeBytes())
		}
	})

	t.Run("coalesces with both neighbours", func(t *testing.T) {
		h := newTestHeap(t, 4096)
		a := h.AllocBlock(64, AllocShortTerm)
		b := h.AllocBlock(64, AllocShortTerm)
		c := h.AllocBlock(64, AllocShortTerm)

		h.FreeBlock(a)
		h.FreeBlock(c)
		h.FreeBlock(b) // merges a, b, c and the region tail into one extent

		if got := h.AllocBlock(h.Size(), AllocShortTerm); got == nil {
			t.Fatal("expected the whole region to be allocatable after coalescing")
		}
	})

	t.Run("panics on a block outside the region", func(t *testing.T) {
		h := newTestHeap(t, 4096)
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic on freeing a foreign block")
			}
		}()
		h.FreeBlock(make([]byte, 64))
	})
}

func TestClose(t *testing.T) {
	h, err := New(4096)
	if err != nil {
		t.Fatalf("failed to map heap region: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	// Second close is a no-op.
	if err := h.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

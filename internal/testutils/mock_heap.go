package testutils

import (
	"sync/atomic"
	"unsafe"

	"github.com/holmberd/go-poolman/internal/heap"
)

// MockHeap is a Go-allocated counting heap for tests. It retains every
// outstanding block, satisfying the manager's heap contract, and can be told
// to start refusing allocations after a set number of requests.
type MockHeap struct {
	allocCalls atomic.Int64
	freeCalls  atomic.Int64
	blocks     [][]byte

	// FailAfter makes AllocBlock return nil once the number of alloc calls
	// exceeds it. Zero or negative disables failure injection.
	FailAfter int64

	// RoundTo is the RecommendAllocationSize granularity. Zero rounds to 8,
	// the minimum keeping pool bitmaps and records aligned.
	RoundTo int
}

func (h *MockHeap) RecommendAllocationSize(size int) int {
	unit := h.RoundTo
	if unit <= 0 {
		unit = 8
	}
	return (size + unit - 1) / unit * unit
}

func (h *MockHeap) AllocBlock(size int, hint heap.AllocHint) []byte {
	h.allocCalls.Add(1)
	if h.FailAfter > 0 && h.allocCalls.Load() > h.FailAfter {
		return nil
	}
	// Back blocks with []uint64 so they are 8-byte aligned like real heap
	// blocks.
	words := make([]uint64, (size+7)/8)
	block := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	h.blocks = append(h.blocks, block)
	return block
}

func (h *MockHeap) FreeBlock(block []byte) {
	h.freeCalls.Add(1)
	for i := range h.blocks {
		if &h.blocks[i][0] == &block[0] {
			h.blocks = append(h.blocks[:i], h.blocks[i+1:]...)
			return
		}
	}
	panic("mock heap: free of a block it never allocated")
}

func (h *MockHeap) AllocCalls() int64 {
	return h.allocCalls.Load()
}

func (h *MockHeap) FreeCalls() int64 {
	return h.freeCalls.Load()
}

func (h *MockHeap) BlocksInUse() int {
	return len(h.blocks)
}

func (h *MockHeap) Reset() {
	h.allocCalls.Store(0)
	h.freeCalls.Store(0)
	h.blocks = nil
}

package poolman

import "github.com/holmberd/go-poolman/internal/heap"

// AllocHint tells a heap how long the manager expects to keep a block.
// Pool backing blocks and header slabs are long-lived, so the manager always
// passes AllocLongTerm; the placement policy itself is the heap's concern.
type AllocHint = heap.AllocHint

const (
	AllocShortTerm = heap.AllocShortTerm
	AllocLongTerm  = heap.AllocLongTerm
)

// Heap defines the contract for the block allocator backing the pool manager.
//
// The heap must keep its own record of every outstanding block until it is
// freed: the manager stores pool bookkeeping inside block memory, where the
// garbage collector cannot see references held by it.
type Heap interface {
	RecommendAllocationSize(size int) int      // Rounds a size up per the heap's own granularity; result >= size.
	AllocBlock(size int, hint AllocHint) []byte // Returns a block of at least size bytes, or nil when exhausted.
	FreeBlock(block []byte)                     // Reclaims a block previously returned by AllocBlock.
}

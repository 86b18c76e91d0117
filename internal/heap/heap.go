// Package heap implements a block allocator over a single mmap'd region.
//
// Blocks are carved from the region with a first-fit policy over a list of
// free extents. The region is allocated outside the Go heap, which keeps the
// pool chunks served from it invisible to the garbage collector.
package heap

import (
	"fmt"
	"log/slog"
	"slices"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AllocationUnit is the granularity blocks are rounded up to, in bytes.
const AllocationUnit = 64

// AllocHint tells the heap how long the caller expects to keep a block.
type AllocHint uint8

const (
	// AllocShortTerm places blocks at the low end of the region.
	AllocShortTerm AllocHint = iota
	// AllocLongTerm places blocks at the high end of the region, away from
	// short-term churn.
	AllocLongTerm
)

// extent is a free byte range within the region.
type extent struct {
	off  int
	size int
}

// Heap hands out contiguous blocks from one fixed-size mmap'd region.
type Heap struct {
	logger *slog.Logger
	region []byte
	free   []extent // free extents ordered by offset
}

// New maps a region of the given size and returns a heap over it.
func New(size int) (*Heap, error) {
	return NewWithLogger(size, slog.Default())
}

// NewWithLogger is like New with a caller-supplied logger.
func NewWithLogger(size int, logger *slog.Logger) (*Heap, error) {
	size = roundUp(size)
	region, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, fmt.Errorf("cannot map %d byte heap region: %w", size, err)
	}
	return &Heap{
		logger: logger,
		region: region,
		free:   []extent{{off: 0, size: size}},
	}, nil
}

// RecommendAllocationSize rounds a requested size up to the allocation unit.
func (h *Heap) RecommendAllocationSize(size int) int {
	return roundUp(size)
}

func roundUp(size int) int {
	return (size + AllocationUnit - 1) &^ (AllocationUnit - 1)
}

// AllocBlock carves a block of at least size bytes from the region, or
// returns nil when no free extent is large enough. Long-term blocks are
// placed at the highest-offset fit, short-term blocks at the lowest.
func (h *Heap) AllocBlock(size int, hint AllocHint) []byte {
	size = roundUp(size)
	if size == 0 {
		return nil
	}

	i := -1
	if hint == AllocLongTerm {
		for j := len(h.free) - 1; j >= 0; j-- {
			if h.free[j].size >= size {
				i = j
				break
			}
		}
	} else {
		for j := range h.free {
			if h.free[j].size >= size {
				i = j
				break
			}
		}
	}
	if i < 0 {
		return nil
	}

	ext := &h.free[i]
	var off int
	if hint == AllocLongTerm {
		// Take from the tail of the extent.
		off = ext.off + ext.size - size
		ext.size -= size
	} else {
		off = ext.off
		ext.off += size
		ext.size -= size
	}
	if ext.size == 0 {
		h.free = slices.Delete(h.free, i, i+1)
	}
	return h.region[off : off+size : off+size]
}

// FreeBlock returns a block previously obtained from AllocBlock, coalescing
// it with any adjacent free extents.
// It will panic if the block does not belong to this heap's region.
func (h *Heap) FreeBlock(block []byte) {
	off := h.offsetOf(block)
	size := len(block)

	i, _ := slices.BinarySearchFunc(h.free, extent{off: off}, func(a, b extent) int {
		return a.off - b.off
	})
	h.free = slices.Insert(h.free, i, extent{off: off, size: size})

	// Coalesce with the following extent, then the preceding one.
	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = slices.Delete(h.free, i+1, i+2)
	}
	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = slices.Delete(h.free, i, i+1)
	}
}

// offsetOf maps a block back to its offset within the region.
func (h *Heap) offsetOf(block []byte) int {
	if len(block) == 0 {
		panic("heap: free of empty block")
	}
	base := uintptr(unsafe.Pointer(&h.region[0]))
	addr := uintptr(unsafe.Pointer(&block[0]))
	if addr < base || addr+uintptr(len(block)) > base+uintptr(len(h.region)) {
		panic("heap: free of block outside the heap region")
	}
	return int(addr - base)
}

// FreeBytes reports the total bytes currently free in the region.
func (h *Heap) FreeBytes() int {
	n := 0
	for _, ext := range h.free {
		n += ext.size
	}
	return n
}

// Size reports the total size of the region.
func (h *Heap) Size() int { return len(h.region) }

// Close unmaps the region. The heap must not be used afterwards.
func (h *Heap) Close() error {
	if h.region == nil {
		return nil
	}
	err := unix.Munmap(h.region)
	if err != nil {
		h.logger.Error("failed to unmap heap region", "error", err)
	}
	h.region = nil
	h.free = nil
	return err
}

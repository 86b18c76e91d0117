// Package pool implements free-chunk tracking for a single fixed-size chunk
// pool over one backing memory block.
//
// The bookkeeping bitmap is stored at the front of the backing block itself,
// so a pool consumes no memory besides its block and the Pool state struct.
package pool

import (
	"fmt"
	"math/bits"
	"unsafe"
)

const wordSize = 8 // bitmap word size, in bytes

// Pool tracks which fixed-size chunks within one backing block are free.
//
// The backing block must be 8-byte aligned and must stay reachable through
// its allocator for the lifetime of the pool; Pool holds views into it that
// the garbage collector cannot see through.
type Pool struct {
	chunkSize int
	block     []byte   // whole backing block
	bitmap    []uint64 // free bitmap at the front of block; set bit = free chunk
	chunks    []byte   // chunk storage area following the bitmap
	free      int
	total     int
}

// Init lays a pool out over a backing block: a free bitmap at the front and
// as many chunkSize-byte chunks after it as fit. All chunks start free.
func Init(block []byte, chunkSize int) Pool {
	total := capacityFor(len(block), chunkSize)
	words := (total + 63) / 64

	p := Pool{
		chunkSize: chunkSize,
		block:     block,
		free:      total,
		total:     total,
	}
	if total == 0 {
		return p
	}
	p.bitmap = unsafe.Slice((*uint64)(unsafe.Pointer(&block[0])), words)
	p.chunks = block[words*wordSize : words*wordSize+total*chunkSize]

	for i := range p.bitmap {
		p.bitmap[i] = ^uint64(0)
	}
	// Clear bits past the last chunk so Alloc never hands out phantom chunks.
	if rem := total % 64; rem != 0 {
		p.bitmap[words-1] = (1 << rem) - 1
	}
	return p
}

// capacityFor returns the largest chunk count whose bitmap words and chunk
// storage both fit in blockLen bytes.
func capacityFor(blockLen, chunkSize int) int {
	total := blockLen * 8 / (chunkSize*8 + 1)
	for total > 0 {
		words := (total + 63) / 64
		if words*wordSize+total*chunkSize <= blockLen {
			break
		}
		total--
	}
	return total
}

// Alloc marks the first free chunk as used and returns its index.
// The caller must have verified a free chunk exists.
func (p *Pool) Alloc() int {
	for w, word := range p.bitmap {
		if word == 0 {
			continue
		}
		bit := bits.TrailingZeros64(word)
		p.bitmap[w] = word &^ (1 << bit)
		p.free--
		return w*64 + bit
	}
	panic("pool: alloc from a pool with no free chunks")
}

// Release marks the chunk at index i as free again.
func (p *Pool) Release(i int) {
	if i < 0 || i >= p.total {
		panic(fmt.Sprintf("pool: release of out-of-range chunk index %d", i))
	}
	w, bit := i/64, uint(i%64)
	if p.bitmap[w]&(1<<bit) != 0 {
		panic(fmt.Sprintf("pool: double release of chunk index %d", i))
	}
	p.bitmap[w] |= 1 << bit
	p.free++
}

// Chunk returns the storage for the chunk at index i.
func (p *Pool) Chunk(i int) []byte {
	off := i * p.chunkSize
	return p.chunks[off : off+p.chunkSize : off+p.chunkSize]
}

// IndexOf maps a pointer to the index of the chunk containing it.
// The ok result is false when the pointer lies outside the pool's chunk
// storage or is not aligned to a chunk start. The upper bound is exclusive:
// a pointer one past the last chunk does not belong to this pool.
func (p *Pool) IndexOf(ptr *byte) (int, bool) {
	if p.total == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&p.chunks[0]))
	addr := uintptr(unsafe.Pointer(ptr))
	if addr < base || addr >= base+uintptr(p.total*p.chunkSize) {
		return 0, false
	}
	off := int(addr - base)
	if off%p.chunkSize != 0 {
		return 0, false
	}
	return off / p.chunkSize, true
}

// FreeCount returns the number of free chunks.
func (p *Pool) FreeCount() int { return p.free }

// TotalCount returns the total number of chunks the pool holds.
func (p *Pool) TotalCount() int { return p.total }

// ChunkSize returns the fixed chunk size served by this pool, in bytes.
func (p *Pool) ChunkSize() int { return p.chunkSize }

// Block returns the whole backing block the pool was laid out over.
func (p *Pool) Block() []byte { return p.block }

// Package poolman implements a fixed-size chunk sub-allocator on top of a
// coarse block heap. Allocations are served from pools, one backing block
// per pool, grouped into per-size-class chains; a pool's block is returned
// to the heap as soon as every chunk in it has been freed.
//
// Pool metadata is itself pool-allocated: records describing ordinary pools
// live in chunks of dedicated header slabs served by the same single-pool
// mechanism.
//
// A Manager is not safe for concurrent use; the intended caller is a
// single-threaded runtime that owns all allocator state.
package poolman

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/holmberd/go-poolman/internal/heap"
	"github.com/holmberd/go-poolman/internal/pool"
)

const (
	KiB = 1024
	MiB = KiB * KiB

	// DefaultHeapSize is the region size of the private heap New creates.
	DefaultHeapSize = 4 * MiB

	// bookkeepingWord is the per-pool overhead unit added to block size
	// requests, covering one free-bitmap word.
	bookkeepingWord = 8
)

var (
	// ErrHeaderExhausted is returned by Alloc when the heap refuses a block
	// for growing the header pool, leaving no room for a new pool record.
	ErrHeaderExhausted = errors.New("no space for a new pool record")

	// ErrBlockExhausted is returned by Alloc when the heap cannot supply a
	// backing block for a growing size class.
	ErrBlockExhausted = errors.New("heap cannot supply a new backing block")
)

// classState is the per-size-class registry entry.
type classState struct {
	head recordHandle

	// freeChunks mirrors the sum of free counts across every pool in the
	// chain, so Alloc can test "must I grow?" without walking it.
	freeChunks int
}

// Manager routes fixed-size chunk allocations to per-size-class pool chains
// backed by blocks from a Heap.
type Manager[H Heap] struct {
	logger     *slog.Logger
	heap       H
	conf       Config
	classes    [ClassCount]classState
	headers    []pool.Pool // header slabs storing pool records
	headerFree int         // free record slots across all header slabs
	recordSize int         // size-class-rounded byte size of a pool record
	guard      *guard
	ownedHeap  *heap.Heap // set by New; closed by Close

	heapBlockAllocs uint64
	heapBlockFrees  uint64
	growEvents      uint64
	consolidations  uint64
}

// New creates a manager over a private mmap-backed heap of DefaultHeapSize
// with the default configuration. Close unmaps the heap.
func New() (*Manager[*heap.Heap], error) {
	h, err := heap.New(DefaultHeapSize)
	if err != nil {
		return nil, err
	}
	m, err := Custom(h, DefaultConfig())
	if err != nil {
		h.Close()
		return nil, err
	}
	m.ownedHeap = h
	return m, nil
}

// Custom creates a manager over a caller-supplied heap and config. The
// bootstrap header slab is allocated here; a heap refusal at this point is a
// non-recoverable startup failure surfaced as an error.
func Custom[H Heap](hp H, config Config) (*Manager[H], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	recordClass, ok := ClassFor(int(unsafe.Sizeof(poolRecord{})))
	if !ok {
		panic("pool record does not fit the largest size class")
	}

	m := &Manager[H]{
		logger:     config.Logger,
		heap:       hp,
		conf:       config,
		recordSize: ChunkSize(recordClass),
	}
	for c := range m.classes {
		m.classes[c].head = nilRecord
	}
	if config.Guard {
		m.guard = newGuard()
	}
	if err := m.growHeader(); err != nil {
		return nil, fmt.Errorf("cannot allocate bootstrap header slab: %w", err)
	}
	return m, nil
}

// Alloc returns a chunk of the class's fixed size, growing the class's pool
// chain when no free chunk is available anywhere in it. The chunk contents
// are unspecified.
func (m *Manager[H]) Alloc(c SizeClass) ([]byte, error) {
	chunkSize := ChunkSize(c)

	if m.classes[c].freeChunks == 0 {
		if err := m.grow(c, chunkSize); err != nil {
			return nil, err
		}
	}

	// Now at least one pool of the class has a free chunk. Search for it.
	var rec *poolRecord
	for h := m.classes[c].head; ; h = rec.next {
		if h == nilRecord {
			panic(fmt.Sprintf("no pool of class %d has a free chunk despite %d recorded free",
				c, m.classes[c].freeChunks))
		}
		rec = m.record(h)
		if rec.pool.FreeCount() > 0 {
			break
		}
	}

	m.classes[c].freeChunks--
	chunk := rec.pool.Chunk(rec.pool.Alloc())
	if m.guard != nil {
		m.guard.check(chunk)
	}
	return chunk, nil
}

// grow prepends a fresh pool to the class's chain: a record from the header
// pool plus a heap block sized for at least PoolGrowthChunks chunks and a
// bookkeeping word.
func (m *Manager[H]) grow(c SizeClass, chunkSize int) error {
	h, rec, err := m.allocRecord()
	if err != nil {
		return err
	}

	size := m.heap.RecommendAllocationSize(m.conf.PoolGrowthChunks*chunkSize + bookkeepingWord)
	block := m.heap.AllocBlock(size, AllocLongTerm)
	if block == nil {
		// Hand the record slot back before reporting failure so it is not
		// leaked.
		m.freeRecord(h)
		return ErrBlockExhausted
	}
	m.heapBlockAllocs++

	rec.pool = pool.Init(block, chunkSize)
	rec.next = m.classes[c].head
	m.classes[c].head = h
	m.classes[c].freeChunks += rec.pool.TotalCount()
	m.growEvents++
	m.logger.Debug("pool chain grown",
		"class", int(c), "chunkSize", chunkSize, "chunks", rec.pool.TotalCount())
	return nil
}

// Free releases a chunk previously returned by Alloc with the same class.
// Passing anything else corrupts no state: a pointer no pool of the class
// contains is an invariant violation and panics.
//
// When the release leaves the owning pool wholly free, the pool is unlinked
// from its chain, its backing block is returned to the heap and its record
// goes back to the header pool.
func (m *Manager[H]) Free(c SizeClass, chunk []byte) {
	if c >= ClassCount {
		panic(fmt.Sprintf("size class out of range: %d", c))
	}
	if len(chunk) == 0 {
		panic("free of an empty chunk")
	}

	// Search the chain for the pool whose chunk storage contains the chunk.
	prev := nilRecord
	h := m.classes[c].head
	var rec *poolRecord
	var idx int
	for {
		if h == nilRecord {
			panic(fmt.Sprintf("chunk does not belong to any pool of class %d", c))
		}
		rec = m.record(h)
		var ok bool
		if idx, ok = rec.pool.IndexOf(&chunk[0]); ok {
			break
		}
		prev = h
		h = rec.next
	}

	rec.pool.Release(idx)
	m.classes[c].freeChunks++
	if m.guard != nil {
		m.guard.record(chunk)
	}

	if rec.pool.FreeCount() == rec.pool.TotalCount() {
		m.consolidate(c, prev, h, rec)
	}
}

// consolidate reclaims a wholly free pool: unlink, fix the aggregate
// counter, return the backing block, release the record.
func (m *Manager[H]) consolidate(c SizeClass, prev, h recordHandle, rec *poolRecord) {
	if prev != nilRecord {
		m.record(prev).next = rec.next
	} else {
		m.classes[c].head = rec.next
	}
	m.classes[c].freeChunks -= rec.pool.TotalCount()

	if m.guard != nil {
		m.guard.forget(&rec.pool)
	}
	chunks := rec.pool.TotalCount()
	m.heap.FreeBlock(rec.pool.Block())
	m.heapBlockFrees++
	m.freeRecord(h)
	m.consolidations++
	m.logger.Debug("pool consolidated", "class", int(c), "chunks", chunks)
}

// Close returns every outstanding backing block and header slab to the heap.
// A manager created with New also unmaps its private heap. The manager must
// not be used afterwards.
func (m *Manager[H]) Close() error {
	for c := range m.classes {
		for h := m.classes[c].head; h != nilRecord; {
			rec := m.record(h)
			next := rec.next
			m.heap.FreeBlock(rec.pool.Block())
			m.heapBlockFrees++
			h = next
		}
		m.classes[c] = classState{head: nilRecord}
	}
	for i := range m.headers {
		m.heap.FreeBlock(m.headers[i].Block())
		m.heapBlockFrees++
	}
	m.headers = nil
	m.headerFree = 0

	if m.ownedHeap != nil {
		return m.ownedHeap.Close()
	}
	return nil
}

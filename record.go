package poolman

import (
	"unsafe"

	"github.com/holmberd/go-poolman/internal/pool"
)

// recordHandle identifies one pool record slot: header slab index in the
// high bits, chunk index within the slab in the low 16 bits. Handles stay
// valid for the life of the manager because header slabs are never released
// before Close.
type recordHandle int32

const nilRecord recordHandle = -1

func makeHandle(slab, idx int) recordHandle {
	return recordHandle(slab<<16 | idx)
}

func (h recordHandle) slab() int  { return int(h) >> 16 }
func (h recordHandle) index() int { return int(h) & 0xffff }

// poolRecord is the metadata for one ordinary pool: its chunk tracking state
// and the forward link in its size class's chain.
//
// Records are stored inside header slab chunks, which live in heap block
// memory. The struct must therefore reference nothing the heap does not
// itself keep alive.
type poolRecord struct {
	pool pool.Pool
	next recordHandle
}

// record resolves a handle to the record stored in its header slab chunk.
func (m *Manager[H]) record(h recordHandle) *poolRecord {
	chunk := m.headers[h.slab()].Chunk(h.index())
	return (*poolRecord)(unsafe.Pointer(&chunk[0]))
}

// allocRecord carves a record slot out of the header pool, growing it by one
// slab when no slot is free.
func (m *Manager[H]) allocRecord() (recordHandle, *poolRecord, error) {
	if m.headerFree == 0 {
		if err := m.growHeader(); err != nil {
			return nilRecord, nil, err
		}
	}
	for i := range m.headers {
		if m.headers[i].FreeCount() == 0 {
			continue
		}
		m.headerFree--
		h := makeHandle(i, m.headers[i].Alloc())
		return h, m.record(h), nil
	}
	panic("no header slab has a free record slot despite a nonzero free count")
}

// freeRecord returns a record slot to the header pool. Header slabs are kept
// until Close even when wholly free; records are small and churn often.
func (m *Manager[H]) freeRecord(h recordHandle) {
	m.headers[h.slab()].Release(h.index())
	m.headerFree++
}

// growHeader appends one header slab sized for at least
// HeaderGrowthRecords records plus a bookkeeping word.
func (m *Manager[H]) growHeader() error {
	size := m.heap.RecommendAllocationSize(m.conf.HeaderGrowthRecords*m.recordSize + bookkeepingWord)
	block := m.heap.AllocBlock(size, AllocLongTerm)
	if block == nil {
		return ErrHeaderExhausted
	}
	m.heapBlockAllocs++
	m.headers = append(m.headers, pool.Init(block, m.recordSize))
	slab := &m.headers[len(m.headers)-1]
	m.headerFree += slab.TotalCount()
	m.logger.Debug("header pool grown", "slabs", len(m.headers), "records", slab.TotalCount())
	return nil
}

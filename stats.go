package poolman

// ClassStats represents the state of one size class's pool chain.
type ClassStats struct {
	Pools       int // live pools in the chain
	FreeChunks  int // aggregate free-chunk counter
	TotalChunks int // chunk capacity across the chain
}

// Stats represents pool manager stats.
type Stats struct {
	Classes           [ClassCount]ClassStats
	HeaderSlabs       int
	HeaderFreeRecords int

	// Cumulative counters since the manager was created.
	HeapBlocksAllocated uint64
	HeapBlocksFreed     uint64
	GrowEvents          uint64
	Consolidations      uint64
}

// Reset resets stats for re-use.
func (s *Stats) Reset() {
	*s = Stats{}
}

// UpdateStats fills s with the manager's current state.
func (m *Manager[H]) UpdateStats(s *Stats) {
	s.Reset()
	for c := range m.classes {
		cs := &s.Classes[c]
		cs.FreeChunks = m.classes[c].freeChunks
		for h := m.classes[c].head; h != nilRecord; {
			rec := m.record(h)
			cs.Pools++
			cs.TotalChunks += rec.pool.TotalCount()
			h = rec.next
		}
	}
	s.HeaderSlabs = len(m.headers)
	s.HeaderFreeRecords = m.headerFree
	s.HeapBlocksAllocated = m.heapBlockAllocs
	s.HeapBlocksFreed = m.heapBlockFrees
	s.GrowEvents = m.growEvents
	s.Consolidations = m.consolidations
}

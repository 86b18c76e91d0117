package poolman

import (
	"fmt"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/holmberd/go-poolman/internal/pool"
)

// guard detects writes through stale chunk pointers: Free digests the
// chunk's bytes and the digest is verified when the chunk is next handed
// out. A mismatch means something wrote to the chunk while it was free.
type guard struct {
	digests map[uintptr]uint64 // chunk address -> xxhash of contents at free time
}

func newGuard() *guard {
	return &guard{digests: make(map[uintptr]uint64)}
}

func chunkKey(chunk []byte) uintptr {
	return uintptr(unsafe.Pointer(&chunk[0]))
}

// record digests a chunk's contents at free time.
func (g *guard) record(chunk []byte) {
	g.digests[chunkKey(chunk)] = xxhash.Sum64(chunk)
}

// check verifies a chunk about to be handed out was not modified while free.
func (g *guard) check(chunk []byte) {
	k := chunkKey(chunk)
	want, ok := g.digests[k]
	if !ok {
		return
	}
	delete(g.digests, k)
	if got := xxhash.Sum64(chunk); got != want {
		panic(fmt.Sprintf("chunk at %#x was modified while free", k))
	}
}

// forget drops the digests of every chunk in a pool whose backing block is
// about to be reclaimed; the addresses may be reused by future blocks.
func (g *guard) forget(p *pool.Pool) {
	for i := 0; i < p.TotalCount(); i++ {
		delete(g.digests, chunkKey(p.Chunk(i)))
	}
}

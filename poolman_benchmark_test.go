package poolman

import (
	"fmt"
	"testing"

	"github.com/holmberd/go-poolman/internal/testutils"
)

func BenchmarkAllocFree(b *testing.B) {
	for c := SizeClass(0); c < ClassCount; c++ {
		b.Run(fmt.Sprintf("class-%d", c), func(b *testing.B) {
			m, err := Custom(&testutils.MockHeap{}, DefaultConfig())
			if err != nil {
				b.Fatal(err)
			}
			defer m.Close()

			// Pin one chunk so the round trip below exercises the fast path
			// instead of consolidating and regrowing every iteration.
			if _, err := m.Alloc(c); err != nil {
				b.Fatal(err)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				chunk, err := m.Alloc(c)
				if err != nil {
					b.Fatal(err)
				}
				m.Free(c, chunk)
			}
		})
	}
}

func BenchmarkGrowConsolidate(b *testing.B) {
	m, err := Custom(&testutils.MockHeap{}, DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	defer m.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		chunk, err := m.Alloc(0)
		if err != nil {
			b.Fatal(err)
		}
		m.Free(0, chunk) // consolidates the freshly grown pool
	}
}

func BenchmarkAllocBatch(b *testing.B) {
	const batch = 64

	m, err := Custom(&testutils.MockHeap{}, DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	defer m.Close()

	chunks := make([][]byte, 0, batch)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		chunks = chunks[:0]
		for j := 0; j < batch; j++ {
			chunk, err := m.Alloc(3)
			if err != nil {
				b.Fatal(err)
			}
			chunks = append(chunks, chunk)
		}
		for _, chunk := range chunks {
			m.Free(3, chunk)
		}
	}
}

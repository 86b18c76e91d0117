package poolman

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	m, _ := newTestManager(t)
	col := NewCollector(m)

	chunk, err := m.Alloc(0)
	require.NoError(t, err)

	require.Equal(t, 3*ClassCount+5, testutil.CollectAndCount(col))

	// One growth so far; the header slab and the pool block are the only two
	// heap requests.
	expected := `# HELP poolman_grow_events_total Pool chain growth events.
# TYPE poolman_grow_events_total counter
poolman_grow_events_total 1
# HELP poolman_heap_block_allocs_total Backing blocks requested from the heap.
# TYPE poolman_heap_block_allocs_total counter
poolman_heap_block_allocs_total 2
`
	require.NoError(t, testutil.CollectAndCompare(col, strings.NewReader(expected),
		"poolman_grow_events_total", "poolman_heap_block_allocs_total"))

	m.Free(0, chunk)

	expected = `# HELP poolman_consolidations_total Wholly free pools reclaimed.
# TYPE poolman_consolidations_total counter
poolman_consolidations_total 1
`
	require.NoError(t, testutil.CollectAndCompare(col, strings.NewReader(expected),
		"poolman_consolidations_total"))
}

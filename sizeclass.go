package poolman

import (
	"errors"
	"fmt"
)

// SizeClass selects one of the supported fixed chunk sizes.
type SizeClass uint8

// ClassCount is the number of supported size classes.
// Chunk sizes run from 4 bytes (class 0) to 128 bytes (class ClassCount-1).
const ClassCount = 6

func init() {
	// Runtime assertion.
	for c := SizeClass(1); c < ClassCount; c++ {
		if ChunkSize(c) != 2*ChunkSize(c-1) {
			panic(errors.New("chunk sizes must be ascending powers of two"))
		}
	}
}

// ChunkSize returns the chunk size in bytes served by the given size class.
// It is a pure function of the class and can be used by callers to pick the
// class for a request.
// It will panic if the class is out of range.
func ChunkSize(c SizeClass) int {
	if c >= ClassCount {
		panic(fmt.Sprintf("size class out of range: %d", c))
	}
	return 1 << (c + 2)
}

// ClassFor returns the smallest size class whose chunk size holds size bytes.
// The ok result is false when size exceeds the largest supported chunk size.
func ClassFor(size int) (SizeClass, bool) {
	if size <= 0 {
		return 0, false
	}
	for c := SizeClass(0); c < ClassCount; c++ {
		if ChunkSize(c) >= size {
			return c, true
		}
	}
	return 0, false
}

// Package sizing bounds and converts byte counts taken from untrusted metadata.
package sizing

import (
	"io"
	"math"
)

// ToInt converts size to int, returning overflowErr if it doesn't fit.
func ToInt(size uint64, overflowErr error) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// Within reports whether size is at most limit. A zero limit means no limit.
func Within(size, limit uint64) bool {
	return limit == 0 || size <= limit
}

// ReadAllWithLimit reads r to EOF and returns overflowErr as soon as more
// than limit bytes are available. A zero limit reads without bound.
func ReadAllWithLimit(r io.Reader, limit uint64, overflowErr error) ([]byte, error) {
	if limit == 0 {
		return io.ReadAll(r)
	}
	if limit > uint64(math.MaxInt64-1) {
		return nil, overflowErr
	}
	lr := &io.LimitedReader{R: r, N: int64(limit) + 1} //nolint:gosec // checked above
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > limit {
		return nil, overflowErr
	}
	return data, nil
}

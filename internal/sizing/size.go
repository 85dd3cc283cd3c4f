// Package sizing provides overflow-checked size arithmetic and alignment.
package sizing

import (
	"errors"
	"io"
	"math"
)

// ErrOverflow is returned when a size does not fit the destination type.
var ErrOverflow = errors.New("sizing: size overflow")

// ToInt converts a uint64 to int.
func ToInt(size uint64) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, ErrOverflow
	}
	return int(size), nil
}

// ToInt64 converts a uint64 to int64.
func ToInt64(size uint64) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, ErrOverflow
	}
	return int64(size), nil
}

// ToUint32 converts a length to uint32.
func ToUint32(n int) (uint32, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return 0, ErrOverflow
	}
	return uint32(n), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// AlignUp rounds n up to a multiple of align, which must be a power of two.
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// Padding returns the number of zero bytes needed to align n.
func Padding(n, align uint64) uint64 {
	return AlignUp(n, align) - n
}

// ReadAllWithLimit reads up to maxSize bytes from r.
func ReadAllWithLimit(r io.Reader, maxSize uint64) ([]byte, error) {
	if maxSize > uint64(math.MaxInt-1) {
		return nil, ErrOverflow
	}
	lr := &io.LimitedReader{R: r, N: int64(maxSize) + 1} //nolint:gosec // checked above
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > maxSize {
		return nil, ErrOverflow
	}
	return data, nil
}

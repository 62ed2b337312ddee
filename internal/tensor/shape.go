package tensor

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"slices"
)

// ErrShapeOverflow is returned when a shape's element count or byte size
// does not fit in 64 bits.
var ErrShapeOverflow = errors.New("shape size overflows")

// Shape represents the dimensions of a tensor.
type Shape []int64

// NumElements returns the total number of elements in the tensor.
// The result is only meaningful for shapes that pass Validate.
func (s Shape) NumElements() int64 {
	n := int64(1) // Scalar has 1 element
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that no dimension is negative and that the element count
// fits in an int64. Zero-sized dimensions are allowed and describe empty tensors.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	if slices.Contains(s, 0) {
		return nil
	}
	n := int64(1)
	for _, dim := range s {
		if n > math.MaxInt64/dim {
			return fmt.Errorf("%w: %v elements", ErrShapeOverflow, []int64(s))
		}
		n *= dim
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// DataSize returns the number of bytes a densely packed tensor of the given
// shape and type occupies.
func DataSize(shape Shape, dtype DataType) (uint64, error) {
	if err := shape.Validate(); err != nil {
		return 0, err
	}
	hi, size := bits.Mul64(uint64(shape.NumElements()), dtype.ElemBytes())
	if hi != 0 {
		return 0, fmt.Errorf("%w: %v of %s", ErrShapeOverflow, []int64(shape), dtype)
	}
	return size, nil
}

// Package tensor provides the tensor descriptors used by the memory layer:
// devices, data types and shapes.
package tensor

import (
	"errors"
	"fmt"
)

// AllocAlignment is the minimum alignment, in bytes, of every device allocation.
const AllocAlignment = 64

// ErrInvalidDataType is returned when a DataType is malformed.
var ErrInvalidDataType = errors.New("invalid data type")

// TypeCode is the numeric class of a data type.
type TypeCode uint8

// Supported type codes.
const (
	Int TypeCode = iota
	UInt
	Float
	BFloat
)

// String returns the type code prefix used when printing data types.
func (c TypeCode) String() string {
	switch c {
	case Int:
		return "int"
	case UInt:
		return "uint"
	case Float:
		return "float"
	case BFloat:
		return "bfloat"
	default:
		return "unknown"
	}
}

// DataType describes the element type of a tensor: a code, a bit width
// and a number of vector lanes.
type DataType struct {
	Code  TypeCode
	Bits  uint8
	Lanes uint16
}

// Common data types.
func Float16() DataType  { return DataType{Code: Float, Bits: 16, Lanes: 1} }
func Float32() DataType  { return DataType{Code: Float, Bits: 32, Lanes: 1} }
func Float64() DataType  { return DataType{Code: Float, Bits: 64, Lanes: 1} }
func BFloat16() DataType { return DataType{Code: BFloat, Bits: 16, Lanes: 1} }
func Int8() DataType     { return DataType{Code: Int, Bits: 8, Lanes: 1} }
func Int32() DataType    { return DataType{Code: Int, Bits: 32, Lanes: 1} }
func Int64() DataType    { return DataType{Code: Int, Bits: 64, Lanes: 1} }
func Uint8() DataType    { return DataType{Code: UInt, Bits: 8, Lanes: 1} }

// Bool is stored as a one-bit unsigned integer.
func Bool() DataType { return DataType{Code: UInt, Bits: 1, Lanes: 1} }

// Vector returns dt with the given number of lanes.
func Vector(dt DataType, lanes uint16) DataType {
	dt.Lanes = lanes
	return dt
}

// Verify checks that the data type is well formed: at least one lane, a bit
// width that is a power of two and a multiple of 8. One-bit unsigned
// integers are accepted as booleans.
func (dt DataType) Verify() error {
	if dt.Lanes < 1 {
		return fmt.Errorf("%w: %s has %d lanes", ErrInvalidDataType, dt, dt.Lanes)
	}
	if dt.Bits == 0 {
		return fmt.Errorf("%w: %s has zero bits", ErrInvalidDataType, dt)
	}
	if dt.Bits%8 != 0 && (dt.Code != UInt || dt.Bits != 1) {
		return fmt.Errorf("%w: %s bit width is not a multiple of 8", ErrInvalidDataType, dt)
	}
	if dt.Bits&(dt.Bits-1) != 0 {
		return fmt.Errorf("%w: %s bit width is not a power of two", ErrInvalidDataType, dt)
	}
	return nil
}

// ElemBytes returns the number of bytes one element occupies, rounding
// sub-byte types up.
func (dt DataType) ElemBytes() uint64 {
	return (uint64(dt.Bits)*uint64(dt.Lanes) + 7) / 8
}

// Alignment returns the allocation alignment required for tensors of this
// type: the element size, but never less than AllocAlignment.
func (dt DataType) Alignment() uint64 {
	align := uint64(dt.Bits/8) * uint64(dt.Lanes)
	if align < AllocAlignment {
		return AllocAlignment
	}
	return align
}

// String returns a human-readable name such as "float32" or "int8x4".
func (dt DataType) String() string {
	if dt.Code == UInt && dt.Bits == 1 && dt.Lanes == 1 {
		return "bool"
	}
	s := fmt.Sprintf("%s%d", dt.Code, dt.Bits)
	if dt.Lanes != 1 {
		s += fmt.Sprintf("x%d", dt.Lanes)
	}
	return s
}

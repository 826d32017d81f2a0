// Package array provides a dense, row-major n-dimensional pixel array.
//
// Frames decoded from a video are H×W×C arrays; selections of frames are
// N×H×W×C arrays. Only the operations needed for per-axis indexing are
// implemented: gather along one axis, drop a length-1 axis, stack and
// luma reduction.
package array

import (
	"encoding/binary"
	"fmt"
)

// DType is the element type of an Array
type DType int

const (
	Uint8 DType = iota
	Uint16
)

// Size returns the element size in bytes
func (d DType) Size() int {
	switch d {
	case Uint16:
		return 2
	default:
		return 1
	}
}

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// ParseDType parses "uint8" or "uint16"
func ParseDType(s string) (DType, error) {
	switch s {
	case "uint8", "u8":
		return Uint8, nil
	case "uint16", "u16":
		return Uint16, nil
	}
	return 0, fmt.Errorf("unknown dtype %q", s)
}

// Array is a contiguous row-major array. Uint16 elements are stored little-endian.
type Array struct {
	shape []int
	dtype DType
	data  []byte
}

// New allocates a zeroed array
func New(dtype DType, shape ...int) *Array {
	return &Array{
		shape: append([]int(nil), shape...),
		dtype: dtype,
		data:  make([]byte, count(shape)*dtype.Size()),
	}
}

// FromBytes wraps data without copying. The length must match the shape.
func FromBytes(dtype DType, data []byte, shape ...int) (*Array, error) {
	if want := count(shape) * dtype.Size(); len(data) != want {
		return nil, fmt.Errorf("data length %d does not match shape %v (%s, want %d bytes)",
			len(data), shape, dtype, want)
	}
	return &Array{shape: append([]int(nil), shape...), dtype: dtype, data: data}, nil
}

// Shape returns a copy of the array's shape
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// NDim returns the number of axes
func (a *Array) NDim() int { return len(a.shape) }

// Len returns the length of the first axis, or 0 for a 0-d array
func (a *Array) Len() int {
	if len(a.shape) == 0 {
		return 0
	}
	return a.shape[0]
}

// Size returns the number of elements
func (a *Array) Size() int { return count(a.shape) }

// DType returns the element type
func (a *Array) DType() DType { return a.dtype }

// Bytes returns the backing buffer. Callers must not resize it.
func (a *Array) Bytes() []byte { return a.data }

// At returns the element at idx as an unsigned value
func (a *Array) At(idx ...int) uint16 {
	off := a.offset(idx)
	if a.dtype == Uint16 {
		return binary.LittleEndian.Uint16(a.data[off:])
	}
	return uint16(a.data[off])
}

// Set stores v at idx. For Uint8 arrays v is truncated to 8 bits.
func (a *Array) Set(v uint16, idx ...int) {
	off := a.offset(idx)
	if a.dtype == Uint16 {
		binary.LittleEndian.PutUint16(a.data[off:], v)
		return
	}
	a.data[off] = byte(v)
}

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("array: %d indices for %d-d array", len(idx), len(a.shape)))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= a.shape[i] {
			panic(fmt.Sprintf("array: index %d out of range for axis %d with size %d", x, i, a.shape[i]))
		}
		off = off*a.shape[i] + x
	}
	return off * a.dtype.Size()
}

// Clone returns a deep copy
func (a *Array) Clone() *Array {
	return &Array{
		shape: a.Shape(),
		dtype: a.dtype,
		data:  append([]byte(nil), a.data...),
	}
}

// Equal reports whether both arrays have the same dtype, shape and contents
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.dtype != b.dtype || !SameShape(a.shape, b.shape) {
		return false
	}
	return string(a.data) == string(b.data)
}

// Take gathers the given positions along axis. Positions may repeat and
// appear in any order; they must already be in range.
func (a *Array) Take(axis int, positions []int) *Array {
	if axis < 0 || axis >= len(a.shape) {
		panic(fmt.Sprintf("array: axis %d out of range for %d-d array", axis, len(a.shape)))
	}
	outer := count(a.shape[:axis])
	inner := count(a.shape[axis+1:]) * a.dtype.Size()
	n := a.shape[axis]

	shape := a.Shape()
	shape[axis] = len(positions)
	out := New(a.dtype, shape...)

	for o := 0; o < outer; o++ {
		src := a.data[o*n*inner:]
		dst := out.data[o*len(positions)*inner:]
		for j, p := range positions {
			if p < 0 || p >= n {
				panic(fmt.Sprintf("array: position %d out of range for axis %d with size %d", p, axis, n))
			}
			copy(dst[j*inner:(j+1)*inner], src[p*inner:(p+1)*inner])
		}
	}
	return out
}

// Squeeze removes axis, which must have length 1. The data is shared.
func (a *Array) Squeeze(axis int) *Array {
	if axis < 0 || axis >= len(a.shape) || a.shape[axis] != 1 {
		panic(fmt.Sprintf("array: cannot squeeze axis %d of shape %v", axis, a.shape))
	}
	shape := make([]int, 0, len(a.shape)-1)
	shape = append(shape, a.shape[:axis]...)
	shape = append(shape, a.shape[axis+1:]...)
	return &Array{shape: shape, dtype: a.dtype, data: a.data}
}

// ExpandDims inserts a length-1 axis before position axis, which may equal
// NDim to append one. The data is shared.
func (a *Array) ExpandDims(axis int) *Array {
	if axis < 0 || axis > len(a.shape) {
		panic(fmt.Sprintf("array: cannot insert axis %d into shape %v", axis, a.shape))
	}
	shape := make([]int, 0, len(a.shape)+1)
	shape = append(shape, a.shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, a.shape[axis:]...)
	return &Array{shape: shape, dtype: a.dtype, data: a.data}
}

// Stack joins items along a new leading axis. itemShape is used when items
// is empty so that a zero-length selection still has the right trailing shape.
func Stack(dtype DType, itemShape []int, items []*Array) (*Array, error) {
	if len(items) > 0 {
		itemShape = items[0].shape
	}
	shape := append([]int{len(items)}, itemShape...)
	out := New(dtype, shape...)
	stride := count(itemShape) * dtype.Size()
	for i, it := range items {
		if it.dtype != dtype || !SameShape(it.shape, itemShape) {
			return nil, fmt.Errorf("stack item %d has shape %v (%s), want %v (%s)",
				i, it.shape, it.dtype, itemShape, dtype)
		}
		copy(out.data[i*stride:], it.data)
	}
	return out, nil
}

// SameShape reports whether two shapes are identical
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func count(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

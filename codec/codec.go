package codec

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/wasm-transform/errors"
)

// Element is the set of Go types that can live in a shared buffer.
type Element interface {
	uint8 | uint16 | uint32 | uint64 | int8 | int16 | int32 | int64 | float32 | float64
}

// TypeOf returns the ElementType for the type parameter T.
func TypeOf[T Element]() ElementType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case float32:
		return Float32
	default:
		return Float64
	}
}

// offset returns the byte offset of element index, panicking when the
// element does not fit entirely inside b.
func offset(b []byte, index, size int, phase errors.Phase) int {
	if index < 0 || index >= len(b)/size {
		panic(errors.OutOfBounds(phase, nil, index, len(b)/size))
	}
	return index * size
}

// Decode reads the little-endian element at index.
// An index past the end of b is a precondition violation and panics with *errors.Error.
func Decode[T Element](b []byte, index int) T {
	var v T
	switch p := any(&v).(type) {
	case *uint8:
		*p = b[offset(b, index, 1, errors.PhaseDecode)]
	case *int8:
		*p = int8(b[offset(b, index, 1, errors.PhaseDecode)])
	case *uint16:
		*p = binary.LittleEndian.Uint16(b[offset(b, index, 2, errors.PhaseDecode):])
	case *int16:
		*p = int16(binary.LittleEndian.Uint16(b[offset(b, index, 2, errors.PhaseDecode):]))
	case *uint32:
		*p = binary.LittleEndian.Uint32(b[offset(b, index, 4, errors.PhaseDecode):])
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(b[offset(b, index, 4, errors.PhaseDecode):]))
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(b[offset(b, index, 4, errors.PhaseDecode):]))
	case *uint64:
		*p = binary.LittleEndian.Uint64(b[offset(b, index, 8, errors.PhaseDecode):])
	case *int64:
		*p = int64(binary.LittleEndian.Uint64(b[offset(b, index, 8, errors.PhaseDecode):]))
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(b[offset(b, index, 8, errors.PhaseDecode):]))
	}
	return v
}

// Encode writes v little-endian at index.
// An index past the end of b is a precondition violation and panics with *errors.Error;
// nothing is written in that case.
func Encode[T Element](b []byte, index int, v T) {
	switch x := any(v).(type) {
	case uint8:
		b[offset(b, index, 1, errors.PhaseEncode)] = x
	case int8:
		b[offset(b, index, 1, errors.PhaseEncode)] = uint8(x)
	case uint16:
		binary.LittleEndian.PutUint16(b[offset(b, index, 2, errors.PhaseEncode):], x)
	case int16:
		binary.LittleEndian.PutUint16(b[offset(b, index, 2, errors.PhaseEncode):], uint16(x))
	case uint32:
		binary.LittleEndian.PutUint32(b[offset(b, index, 4, errors.PhaseEncode):], x)
	case int32:
		binary.LittleEndian.PutUint32(b[offset(b, index, 4, errors.PhaseEncode):], uint32(x))
	case float32:
		binary.LittleEndian.PutUint32(b[offset(b, index, 4, errors.PhaseEncode):], math.Float32bits(x))
	case uint64:
		binary.LittleEndian.PutUint64(b[offset(b, index, 8, errors.PhaseEncode):], x)
	case int64:
		binary.LittleEndian.PutUint64(b[offset(b, index, 8, errors.PhaseEncode):], uint64(x))
	case float64:
		binary.LittleEndian.PutUint64(b[offset(b, index, 8, errors.PhaseEncode):], math.Float64bits(x))
	}
}

// Zero clears the element at index.
func Zero(b []byte, index, size int) {
	off := offset(b, index, size, errors.PhaseEncode)
	clear(b[off : off+size])
}

package codec

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-transform/errors"
)

// ElementType identifies the numeric representation stored in a shared buffer.
// It is fixed per plugin build; the integer tag is only used at the ABI boundary.
type ElementType uint8

const (
	Invalid ElementType = iota
	Uint8
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
)

var elementNames = [...]string{
	Invalid: "invalid",
	Uint8:   "u8",
	Uint16:  "u16",
	Uint32:  "u32",
	Uint64:  "u64",
	Int8:    "s8",
	Int16:   "s16",
	Int32:   "s32",
	Int64:   "s64",
	Float32: "f32",
	Float64: "f64",
}

// ElementTypeFromTag converts a boundary tag (0..10) into an ElementType.
// Tag 0 and unknown tags are rejected.
func ElementTypeFromTag(tag int32) (ElementType, error) {
	if tag <= 0 || tag > int32(Float64) {
		return Invalid, errors.InvalidEnum(errors.PhaseNegotiate, nil, tag, "element-type")
	}
	return ElementType(tag), nil
}

// ParseElementType parses a WIT primitive name such as "f64" or "s32".
func ParseElementType(name string) (ElementType, error) {
	for i, n := range elementNames {
		if i > 0 && n == name {
			return ElementType(i), nil
		}
	}
	return Invalid, errors.InvalidEnum(errors.PhaseNegotiate, nil, name, "element-type")
}

// Tag returns the boundary encoding of the element type.
func (e ElementType) Tag() int32 {
	return int32(e)
}

// Valid reports whether e names a concrete element type.
func (e ElementType) Valid() bool {
	return e > Invalid && e <= Float64
}

// Size returns the number of bytes one element occupies, or 0 for Invalid.
func (e ElementType) Size() int {
	switch e {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether e is a floating point type.
func (e ElementType) IsFloat() bool {
	return e == Float32 || e == Float64
}

// IsSigned reports whether e is a signed integer type.
func (e ElementType) IsSigned() bool {
	return e >= Int8 && e <= Int64
}

func (e ElementType) String() string {
	if int(e) < len(elementNames) {
		return elementNames[e]
	}
	return "invalid"
}

// WitType returns the WIT primitive matching e, or nil for Invalid.
func (e ElementType) WitType() wit.Type {
	switch e {
	case Uint8:
		return wit.U8{}
	case Uint16:
		return wit.U16{}
	case Uint32:
		return wit.U32{}
	case Uint64:
		return wit.U64{}
	case Int8:
		return wit.S8{}
	case Int16:
		return wit.S16{}
	case Int32:
		return wit.S32{}
	case Int64:
		return wit.S64{}
	case Float32:
		return wit.F32{}
	case Float64:
		return wit.F64{}
	default:
		return nil
	}
}

// Shape is the input shape a plugin consumes.
type Shape uint8

const (
	ShapeInvalid Shape = iota
	// Vector is a 1-D instant vector, one value per series.
	Vector
	// Matrix is a 2-D range vector (series × samples) flattened into the buffer.
	Matrix
)

// ShapeFromTag converts a boundary tag (0..2) into a Shape.
func ShapeFromTag(tag int32) (Shape, error) {
	switch tag {
	case 1:
		return Vector, nil
	case 2:
		return Matrix, nil
	default:
		return ShapeInvalid, errors.InvalidEnum(errors.PhaseNegotiate, nil, tag, "input-type")
	}
}

// Tag returns the boundary encoding of the shape.
func (s Shape) Tag() int32 {
	return int32(s)
}

func (s Shape) String() string {
	switch s {
	case Vector:
		return "vector"
	case Matrix:
		return "matrix"
	default:
		return "invalid"
	}
}

package codec

import (
	"math"

	"github.com/wippyai/wasm-transform/errors"
)

// bounds returns the inclusive range of integer element types as float64.
// The upper bound of 64-bit types is exclusive and handled by the caller.
func bounds(e ElementType) (lo, hi float64) {
	switch e {
	case Uint8:
		return 0, math.MaxUint8
	case Uint16:
		return 0, math.MaxUint16
	case Uint32:
		return 0, math.MaxUint32
	case Uint64:
		return 0, 1 << 64
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Int64:
		return math.MinInt64, 1 << 63
	}
	return 0, 0
}

func inBounds(e ElementType, v float64) bool {
	lo, hi := bounds(e)
	if e == Uint64 || e == Int64 {
		return v >= lo && v < hi
	}
	return v >= lo && v <= hi
}

func checkIndex(e ElementType, b []byte, index int, phase errors.Phase) error {
	if !e.Valid() {
		return errors.InvalidEnum(phase, nil, e.Tag(), "element-type")
	}
	if n := len(b) / e.Size(); index < 0 || index >= n {
		return errors.OutOfBounds(phase, nil, index, n)
	}
	return nil
}

// DecodeFloat64 reads element index of type e and widens it to float64.
// 64-bit integers beyond 2^53 lose precision.
func DecodeFloat64(e ElementType, b []byte, index int) (float64, error) {
	if err := checkIndex(e, b, index, errors.PhaseDecode); err != nil {
		return 0, err
	}
	switch e {
	case Uint8:
		return float64(Decode[uint8](b, index)), nil
	case Uint16:
		return float64(Decode[uint16](b, index)), nil
	case Uint32:
		return float64(Decode[uint32](b, index)), nil
	case Uint64:
		return float64(Decode[uint64](b, index)), nil
	case Int8:
		return float64(Decode[int8](b, index)), nil
	case Int16:
		return float64(Decode[int16](b, index)), nil
	case Int32:
		return float64(Decode[int32](b, index)), nil
	case Int64:
		return float64(Decode[int64](b, index)), nil
	case Float32:
		return float64(Decode[float32](b, index)), nil
	default:
		return Decode[float64](b, index), nil
	}
}

// EncodeFloat64 narrows v to element type e and writes it at index.
// Integer types truncate toward zero; NaN, infinities and values outside the
// type's range are rejected before anything is written.
func EncodeFloat64(e ElementType, b []byte, index int, v float64) error {
	if err := checkIndex(e, b, index, errors.PhaseEncode); err != nil {
		return err
	}
	if e.IsFloat() {
		if e == Float32 {
			Encode(b, index, float32(v))
		} else {
			Encode(b, index, v)
		}
		return nil
	}

	t := math.Trunc(v)
	if math.IsNaN(t) || math.IsInf(t, 0) || !inBounds(e, t) {
		return errors.New(errors.PhaseEncode, errors.KindOverflow).
			GoType("float64").
			WitType(e.String()).
			Value(v).
			Detail("value %v overflows %s", v, e).
			Build()
	}

	switch e {
	case Uint8:
		Encode(b, index, uint8(t))
	case Uint16:
		Encode(b, index, uint16(t))
	case Uint32:
		Encode(b, index, uint32(t))
	case Uint64:
		Encode(b, index, uint64(t))
	case Int8:
		Encode(b, index, int8(t))
	case Int16:
		Encode(b, index, int16(t))
	case Int32:
		Encode(b, index, int32(t))
	case Int64:
		Encode(b, index, int64(t))
	}
	return nil
}

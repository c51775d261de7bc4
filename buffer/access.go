package buffer

import (
	"fmt"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
)

func check[T codec.Element](b *Buffer, i int, phase errors.Phase) error {
	if et := codec.TypeOf[T](); et != b.elem {
		var zero T
		return errors.TypeMismatch(phase, nil, fmt.Sprintf("%T", zero), b.elem.String())
	}
	if i < 0 || i >= b.length {
		return errors.OutOfBounds(phase, nil, i, b.length)
	}
	return nil
}

// Load returns element i of the logical view.
func Load[T codec.Element](b *Buffer, i int) (T, error) {
	if err := check[T](b, i, errors.PhaseDecode); err != nil {
		var zero T
		return zero, err
	}
	return codec.Decode[T](b.storage, i), nil
}

// Store writes element i of the logical view.
func Store[T codec.Element](b *Buffer, i int, v T) error {
	if err := check[T](b, i, errors.PhaseEncode); err != nil {
		return err
	}
	codec.Encode(b.storage, i, v)
	return nil
}

// Values decodes the whole logical view.
func Values[T codec.Element](b *Buffer) ([]T, error) {
	if et := codec.TypeOf[T](); et != b.elem {
		var zero T
		return nil, errors.TypeMismatch(errors.PhaseDecode, nil, fmt.Sprintf("%T", zero), b.elem.String())
	}
	out := make([]T, b.length)
	for i := range out {
		out[i] = codec.Decode[T](b.storage, i)
	}
	return out, nil
}

// Copy writes src into [0, len(src)). src must fit in the logical view;
// nothing is written otherwise.
func Copy[T codec.Element](b *Buffer, src []T) error {
	if len(src) == 0 {
		return nil
	}
	if err := check[T](b, len(src)-1, errors.PhaseEncode); err != nil {
		return err
	}
	for i, v := range src {
		codec.Encode(b.storage, i, v)
	}
	return nil
}

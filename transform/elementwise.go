package transform

import (
	"github.com/wippyai/wasm-transform/buffer"
	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
)

// Elementwise applies a pure function to every element of an instant vector.
// There is no carried state, so iteration order does not affect the result.
type Elementwise[T codec.Element] struct {
	name string
	fn   func(T) T
}

// NewElementwise returns a vector kernel computing buf[i] = fn(buf[i]).
func NewElementwise[T codec.Element](name string, fn func(T) T) *Elementwise[T] {
	return &Elementwise[T]{name: name, fn: fn}
}

// Signed is the set of element types NegateHalf accepts.
type Signed interface {
	int8 | int16 | int32 | int64 | float32 | float64
}

// NegateHalf returns the kernel f(x) = -x / 2.
// For integer types the division truncates toward zero, so [5] becomes [-2].
func NegateHalf[T Signed](name string) *Elementwise[T] {
	return NewElementwise(name, func(x T) T { return -x / 2 })
}

// Square returns the kernel f(x) = x * x, wrapping on overflow for integers.
func Square[T codec.Element](name string) *Elementwise[T] {
	return NewElementwise(name, func(x T) T { return x * x })
}

func (k *Elementwise[T]) Name() string                   { return k.name }
func (k *Elementwise[T]) ElementType() codec.ElementType { return codec.TypeOf[T]() }
func (k *Elementwise[T]) Shape() codec.Shape             { return codec.Vector }
func (k *Elementwise[T]) ScalarArgs() int                { return 0 }

// Apply transforms [0, Length()) in place.
func (k *Elementwise[T]) Apply(buf *buffer.Buffer) error {
	if et := buf.ElementType(); et != k.ElementType() {
		return errors.TypeMismatch(errors.PhaseApply, []string{k.name}, k.ElementType().String(), et.String())
	}
	storage := buf.Storage()
	for i := 0; i < buf.Length(); i++ {
		codec.Encode(storage, i, k.fn(codec.Decode[T](storage, i)))
	}
	return nil
}

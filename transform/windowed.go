package transform

import (
	"math"

	"github.com/wippyai/wasm-transform/buffer"
	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
)

// Alpha is the fixed smoothing factor of WindowedAverage, 1/e.
var Alpha = 1 / math.E

// Float is the set of element types WindowedAverage accepts.
type Float interface {
	float32 | float64
}

// WindowedAverage reduces a dim0×dim1 range vector (dim0 series of dim1
// samples) to one exponential moving average per series.
//
// For series m the average is seeded with sample 0 and updated as
// avg = Alpha*x + (1-Alpha)*avg for samples 1..dim1-1. Only the slot of the
// last sample is overwritten; every other slot keeps its input value.
//
// Every index the layout touches must lie below the length, which is
// stricter than staying within capacity. Under codec.StrideByDim0 any input
// with dim0 > dim1 > 0 (3×2 with length 6, say) is rejected rather than
// reading the zeroed slots past the length.
type WindowedAverage[T Float] struct {
	name   string
	layout codec.SeriesLayout
}

// WindowedOption configures a WindowedAverage.
type WindowedOption func(*windowedOptions)

type windowedOptions struct {
	layout codec.SeriesLayout
}

// WithLayout selects how (m, t) maps onto the buffer.
// The default is codec.StrideByDim0.
func WithLayout(l codec.SeriesLayout) WindowedOption {
	return func(o *windowedOptions) {
		o.layout = l
	}
}

// NewWindowedAverage returns a matrix kernel.
func NewWindowedAverage[T Float](name string, opts ...WindowedOption) *WindowedAverage[T] {
	o := windowedOptions{layout: codec.StrideByDim0}
	for _, opt := range opts {
		opt(&o)
	}
	return &WindowedAverage[T]{name: name, layout: o.layout}
}

func (k *WindowedAverage[T]) Name() string                   { return k.name }
func (k *WindowedAverage[T]) ElementType() codec.ElementType { return codec.TypeOf[T]() }
func (k *WindowedAverage[T]) Shape() codec.Shape             { return codec.Matrix }
func (k *WindowedAverage[T]) ScalarArgs() int                { return 0 }

// Layout returns the series layout the kernel indexes with.
func (k *WindowedAverage[T]) Layout() codec.SeriesLayout { return k.layout }

// Apply collapses every series in place. The call is rejected before any
// write when dimensions are unset, do not multiply to the length, or the
// layout would touch an index at or beyond the length.
func (k *WindowedAverage[T]) Apply(buf *buffer.Buffer) error {
	if et := buf.ElementType(); et != k.ElementType() {
		return errors.TypeMismatch(errors.PhaseApply, []string{k.name}, k.ElementType().String(), et.String())
	}
	dim0, dim1, ok := buf.Dimensions()
	if !ok || dim0*dim1 != buf.Length() {
		return errors.ShapeMismatch(errors.PhaseApply, dim0, dim1, buf.Length())
	}
	if dim0 == 0 || dim1 == 0 {
		return nil
	}
	if last := k.layout.MaxIndex(dim0, dim1); last >= buf.Length() {
		return errors.OutOfBounds(errors.PhaseApply, []string{k.name, k.layout.String()}, last, buf.Length())
	}

	storage := buf.Storage()
	for m := 0; m < dim0; m++ {
		avg := float64(codec.Decode[T](storage, k.layout.Index(m, 0, dim0, dim1)))
		for t := 1; t < dim1; t++ {
			x := float64(codec.Decode[T](storage, k.layout.Index(m, t, dim0, dim1)))
			avg = smooth(avg, x)
		}
		codec.Encode(storage, k.layout.Index(m, dim1-1, dim0, dim1), T(avg))
	}
	return nil
}

// smooth is one EMA step. The conversions round each product so the result
// does not depend on whether the platform fuses multiply-add.
func smooth(avg, x float64) float64 {
	return float64(Alpha*x) + float64((1-Alpha)*avg)
}

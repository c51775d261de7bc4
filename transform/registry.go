package transform

import (
	"sort"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
)

// Reference kernel names.
const (
	NegateHalfF64 = "negate-half-f64"
	NegateHalfI64 = "negate-half-i64"
	SquareU32     = "square-u32"
	ExpAvgF64     = "exp-avg-f64"
	ExpAvgF64Rows = "exp-avg-f64-rows"
)

var registry = map[string]func() Kernel{
	NegateHalfF64: func() Kernel { return NegateHalf[float64](NegateHalfF64) },
	NegateHalfI64: func() Kernel { return NegateHalf[int64](NegateHalfI64) },
	SquareU32:     func() Kernel { return Square[uint32](SquareU32) },
	ExpAvgF64:     func() Kernel { return NewWindowedAverage[float64](ExpAvgF64) },
	ExpAvgF64Rows: func() Kernel {
		return NewWindowedAverage[float64](ExpAvgF64Rows, WithLayout(codec.StrideByDim1))
	},
}

// Lookup returns a fresh instance of the named reference kernel.
func Lookup(name string) (Kernel, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "kernel", name)
	}
	return ctor(), nil
}

// Names lists the reference kernels in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

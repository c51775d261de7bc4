package transform

import (
	"github.com/wippyai/wasm-transform/buffer"
	"github.com/wippyai/wasm-transform/codec"
)

// Kernel is the in-place computation behind a plugin's apply entry point.
//
// ElementType, Shape and ScalarArgs are fixed for a kernel and are what the
// host negotiates at load time. Apply must validate every precondition before
// its first write so that a rejected call leaves the buffer untouched.
type Kernel interface {
	Name() string
	ElementType() codec.ElementType
	Shape() codec.Shape
	ScalarArgs() int
	Apply(buf *buffer.Buffer) error
}

// SeriesKernel is a matrix kernel that reads series with a fixed layout.
// Plugins built on one declare the layout so hosts place series to match.
type SeriesKernel interface {
	Kernel
	Layout() codec.SeriesLayout
}

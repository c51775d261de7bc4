package guest

import (
	"fmt"

	"github.com/wippyai/wasm-transform/errors"
	"github.com/wippyai/wasm-transform/transform"
)

// Exports adapts a transform.Plugin to the int32 entry points of the
// shared-buffer protocol.
//
// Errors have no representation at the boundary. Every failure panics with
// the *errors.Error, which a wasm build turns into a trap the host observes as
// a failed call. The Plugin is not modified by a call that panics before the
// forwarded operation runs.
type Exports struct {
	plugin *transform.Plugin
}

// New binds exports to p.
func New(p *transform.Plugin) *Exports {
	return &Exports{plugin: p}
}

// Plugin returns the bound plugin.
func (e *Exports) Plugin() *transform.Plugin {
	return e.plugin
}

func (e *Exports) Length() int32 {
	return int32(e.plugin.Length())
}

func (e *Exports) Resize(n int32) {
	if n < 0 {
		trap(errors.InvalidInput(errors.PhaseResize, fmt.Sprintf("negative length %d", n)))
	}
	check(e.plugin.Resize(int(n)))
}

func (e *Exports) SetDimensions(dim0, dim1 int32) {
	if dim0 < 0 || dim1 < 0 {
		trap(errors.InvalidInput(errors.PhaseResize, fmt.Sprintf("negative dimensions %dx%d", dim0, dim1)))
	}
	check(e.plugin.SetDimensions(int(dim0), int(dim1)))
}

// BufferPointer returns the storage address as a wasm32 linear memory offset.
// Native builds truncate the address; the value is only meaningful on wasm32.
func (e *Exports) BufferPointer() uint32 {
	return uint32(e.plugin.Buffer().Addr())
}

func (e *Exports) InputType() int32 {
	return e.plugin.Shape().Tag()
}

func (e *Exports) ElementTypeTag() int32 {
	return e.plugin.ElementType().Tag()
}

func (e *Exports) ScalarArgsCount() int32 {
	return int32(e.plugin.ScalarArgs())
}

func (e *Exports) Capacity() int32 {
	return int32(e.plugin.Capacity())
}

// SeriesLayout returns the layout tag of a matrix kernel. Vector kernels
// report the reference layout, which hosts ignore.
func (e *Exports) SeriesLayout() int32 {
	l, _ := e.plugin.Layout()
	return l.Tag()
}

func (e *Exports) Apply() {
	check(e.plugin.Apply())
}

func check(err error) {
	if err != nil {
		trap(err)
	}
}

func trap(err error) {
	panic(err)
}

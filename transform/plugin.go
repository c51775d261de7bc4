package transform

import (
	"fmt"
	"sync/atomic"

	"github.com/wippyai/wasm-transform/buffer"
	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
)

// State is the lifecycle position of a Plugin's apply entry point.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Descriptor is the metadata a host negotiates once per loaded plugin.
type Descriptor struct {
	Name        string
	ElementType codec.ElementType
	Shape       codec.Shape
	ScalarArgs  int
	Capacity    int
	// Layout is where series m, sample t sits for matrix plugins.
	Layout      codec.SeriesLayout
}

func (d Descriptor) String() string {
	if d.Shape == codec.Matrix {
		return fmt.Sprintf("%s(%s %s, args=%d, capacity=%d, layout=%s)", d.Name, d.Shape, d.ElementType, d.ScalarArgs, d.Capacity, d.Layout)
	}
	return fmt.Sprintf("%s(%s %s, args=%d, capacity=%d)", d.Name, d.Shape, d.ElementType, d.ScalarArgs, d.Capacity)
}

// Plugin binds one Kernel to the Buffer it owns.
//
// A Plugin serves a single caller at a time. Apply detects re-entrance and
// rejects it with a busy error; it does not block.
type Plugin struct {
	kernel Kernel
	buf    *buffer.Buffer
	state  atomic.Int32
}

// New allocates a buffer of maxLength elements for kernel.
func New(kernel Kernel, maxLength int) (*Plugin, error) {
	buf, err := buffer.New(kernel.ElementType(), maxLength)
	if err != nil {
		return nil, err
	}
	return &Plugin{kernel: kernel, buf: buf}, nil
}

// Kernel returns the kernel behind Apply.
func (p *Plugin) Kernel() Kernel { return p.kernel }

// Buffer returns the owned shared buffer.
func (p *Plugin) Buffer() *buffer.Buffer { return p.buf }

// State reports whether an Apply is in progress.
func (p *Plugin) State() State { return State(p.state.Load()) }

func (p *Plugin) ElementType() codec.ElementType { return p.kernel.ElementType() }
func (p *Plugin) Shape() codec.Shape             { return p.kernel.Shape() }
func (p *Plugin) ScalarArgs() int                { return p.kernel.ScalarArgs() }
func (p *Plugin) Length() int                    { return p.buf.Length() }
func (p *Plugin) Capacity() int                  { return p.buf.Capacity() }

// Layout reports the series layout of a SeriesKernel.
func (p *Plugin) Layout() (codec.SeriesLayout, bool) {
	if k, ok := p.kernel.(SeriesKernel); ok {
		return k.Layout(), true
	}
	return codec.StrideByDim0, false
}

// Dimensions returns the buffer's dimensions; see buffer.Buffer.Dimensions.
func (p *Plugin) Dimensions() (dim0, dim1 int, ok bool) {
	return p.buf.Dimensions()
}

// Describe bundles the fixed metadata.
func (p *Plugin) Describe() Descriptor {
	d := Descriptor{
		Name:        p.kernel.Name(),
		ElementType: p.kernel.ElementType(),
		Shape:       p.kernel.Shape(),
		ScalarArgs:  p.kernel.ScalarArgs(),
		Capacity:    p.buf.Capacity(),
	}
	d.Layout, _ = p.Layout()
	return d
}

// Resize forwards to the buffer while no Apply is running.
func (p *Plugin) Resize(n int) error {
	if p.State() == Running {
		return errors.Busy(errors.PhaseResize, "apply")
	}
	return p.buf.Resize(n)
}

// SetDimensions forwards to the buffer while no Apply is running.
func (p *Plugin) SetDimensions(dim0, dim1 int) error {
	if p.State() == Running {
		return errors.Busy(errors.PhaseResize, "apply")
	}
	return p.buf.SetDimensions(dim0, dim1)
}

// Apply runs the kernel over the buffer: Idle -> Running -> Idle.
// Codec panics raised inside the kernel are returned as errors.
func (p *Plugin) Apply() (err error) {
	if !p.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return errors.Busy(errors.PhaseApply, "apply")
	}
	defer p.state.Store(int32(Idle))
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*errors.Error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	return p.kernel.Apply(p.buf)
}

package host

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
	"github.com/wippyai/wasm-transform/protocol"
	"github.com/wippyai/wasm-transform/transform"
)

// Instance is one instantiated plugin.
//
// The protocol assumes a single caller driving resize, write, apply and read
// in lock-step. Instance serializes its methods with a mutex so interleaved
// callers cannot observe each other's buffer contents mid-sequence.
type Instance struct {
	module *Module
	mod    api.Module
	mem    *Memory
	fns    map[string]api.Function
	desc   transform.Descriptor
	ptr    uint32
	mu     sync.Mutex
}

func (i *Instance) negotiate(ctx context.Context) error {
	tag, err := i.callI32(ctx, errors.PhaseNegotiate, protocol.ElementTypeTag)
	if err != nil {
		return err
	}
	et, err := codec.ElementTypeFromTag(tag)
	if err != nil {
		return err
	}

	tag, err = i.callI32(ctx, errors.PhaseNegotiate, protocol.InputType)
	if err != nil {
		return err
	}
	shape, err := codec.ShapeFromTag(tag)
	if err != nil {
		return err
	}

	args, err := i.optionalCount(ctx, protocol.ScalarArgsCount)
	if err != nil {
		return err
	}
	capacity, err := i.optionalCount(ctx, protocol.Capacity)
	if err != nil {
		return err
	}

	layout, err := i.seriesLayout(ctx, shape)
	if err != nil {
		return err
	}

	ptr, err := i.call(ctx, errors.PhaseNegotiate, protocol.BufferPointer)
	if err != nil {
		return err
	}

	i.ptr = uint32(ptr)
	i.desc = transform.Descriptor{
		Name:        i.module.name,
		ElementType: et,
		Shape:       shape,
		ScalarArgs:  args,
		Capacity:    capacity,
		Layout:      layout,
	}
	return nil
}

// seriesLayout settles where ApplyMatrix places series. A declared layout
// must agree with the expected one. A matrix plugin that declares nothing is
// driven with the reference layout, so expecting dim1 from it is refused.
func (i *Instance) seriesLayout(ctx context.Context, shape codec.Shape) (codec.SeriesLayout, error) {
	want := i.module.layout
	if i.fns[protocol.SeriesLayout] == nil {
		if shape == codec.Matrix && want != nil && *want != codec.StrideByDim0 {
			return 0, errors.New(errors.PhaseNegotiate, errors.KindShapeMismatch).
				Path(protocol.SeriesLayout).
				Detail("plugin declares no series layout, cannot place series by %s", *want).
				Build()
		}
		return codec.StrideByDim0, nil
	}

	tag, err := i.callI32(ctx, errors.PhaseNegotiate, protocol.SeriesLayout)
	if err != nil {
		return 0, err
	}
	declared, err := codec.SeriesLayoutFromTag(tag)
	if err != nil {
		return 0, err
	}
	if shape == codec.Matrix && want != nil && *want != declared {
		return 0, errors.New(errors.PhaseNegotiate, errors.KindShapeMismatch).
			Path(protocol.SeriesLayout).
			Detail("plugin reads series by %s, expected %s", declared, *want).
			Build()
	}
	return declared, nil
}

// optionalCount queries a non-negative count export, defaulting to 0 when
// the plugin does not export it.
func (i *Instance) optionalCount(ctx context.Context, primary string) (int, error) {
	if i.fns[primary] == nil {
		return 0, nil
	}
	v, err := i.callI32(ctx, errors.PhaseNegotiate, primary)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.InvalidData(errors.PhaseNegotiate, []string{primary}, fmt.Sprintf("negative count %d", v))
	}
	return int(v), nil
}

func (i *Instance) call(ctx context.Context, phase errors.Phase, primary string, args ...uint64) (uint64, error) {
	fn := i.fns[primary]
	if fn == nil {
		return 0, errors.NotFound(phase, "export", primary)
	}

	res, err := fn.Call(ctx, args...)
	i.module.runtime.metrics.observe(i.module.name, primary, err)
	if err != nil {
		i.module.runtime.logger.Warn("plugin call failed",
			zap.String("plugin", i.module.name),
			zap.String("export", i.module.exports[primary]),
			zap.Error(err))
		return 0, errors.Trap(phase, i.module.exports[primary], err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

func (i *Instance) callI32(ctx context.Context, phase errors.Phase, primary string, args ...uint64) (int32, error) {
	v, err := i.call(ctx, phase, primary, args...)
	return api.DecodeI32(v), err
}

// Descriptor returns the metadata negotiated at instantiation.
func (i *Instance) Descriptor() transform.Descriptor {
	return i.desc
}

// Memory returns a view of the instance's linear memory.
func (i *Instance) Memory() *Memory {
	return i.mem
}

// Length returns the plugin's logical length.
func (i *Instance) Length(ctx context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.length(ctx)
}

func (i *Instance) length(ctx context.Context) (int, error) {
	n, err := i.callI32(ctx, errors.PhaseDecode, protocol.Length)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.InvalidData(errors.PhaseDecode, []string{protocol.Length}, fmt.Sprintf("negative length %d", n))
	}
	return int(n), nil
}

// Resize sets the logical length to n and clears the buffer. Requests
// above a known capacity are rejected before the plugin is called.
func (i *Instance) Resize(ctx context.Context, n int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.resize(ctx, n)
}

func (i *Instance) resize(ctx context.Context, n int) error {
	if n < 0 || n > math.MaxInt32 {
		return errors.InvalidInput(errors.PhaseResize, fmt.Sprintf("length %d out of range", n))
	}
	if c := i.desc.Capacity; c > 0 && n > c {
		return errors.Capacity(errors.PhaseResize, n, c)
	}
	_, err := i.call(ctx, errors.PhaseResize, protocol.Resize, api.EncodeI32(int32(n)))
	return err
}

// SetDimensions sets the range vector dimensions and resizes to dim0*dim1.
func (i *Instance) SetDimensions(ctx context.Context, dim0, dim1 int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.setDimensions(ctx, dim0, dim1)
}

func (i *Instance) setDimensions(ctx context.Context, dim0, dim1 int) error {
	if dim0 < 0 || dim1 < 0 {
		return errors.InvalidInput(errors.PhaseResize, fmt.Sprintf("negative dimensions %dx%d", dim0, dim1))
	}
	if dim0 != 0 && dim1 > math.MaxInt32/dim0 {
		return errors.Overflow(errors.PhaseResize, []string{"dimensions"}, fmt.Sprintf("%dx%d", dim0, dim1), "s32")
	}
	if c := i.desc.Capacity; c > 0 && dim0*dim1 > c {
		return errors.Capacity(errors.PhaseResize, dim0*dim1, c)
	}
	_, err := i.call(ctx, errors.PhaseResize, protocol.SetDimensions, api.EncodeI32(int32(dim0)), api.EncodeI32(int32(dim1)))
	return err
}

// BufferPointer queries the plugin for the buffer's offset in linear memory.
func (i *Instance) BufferPointer(ctx context.Context) (uint32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	v, err := i.call(ctx, errors.PhaseDecode, protocol.BufferPointer)
	return uint32(v), err
}

// Apply runs the plugin's transform over the current buffer contents.
func (i *Instance) Apply(ctx context.Context) (err error) {
	ctx, span := i.startSpan(ctx, "Apply", -1)
	defer func() { endSpan(span, err) }()

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.apply(ctx)
}

func (i *Instance) apply(ctx context.Context) error {
	start := time.Now()
	_, err := i.call(ctx, errors.PhaseApply, protocol.Apply)
	i.module.runtime.metrics.observeApply(i.module.name, start)
	return err
}

// Write encodes values into the first len(values) elements of the buffer.
func (i *Instance) Write(ctx context.Context, values []float64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	n, err := i.length(ctx)
	if err != nil {
		return err
	}
	if len(values) > n {
		return errors.OutOfBounds(errors.PhaseEncode, []string{"buffer"}, len(values)-1, n)
	}
	return i.write(values, func(idx int) int { return idx })
}

// write encodes values into a scratch region and copies it into guest
// memory in one step, so a value that fails to encode leaves the buffer as
// it was. index maps the position in values to the element index.
func (i *Instance) write(values []float64, index func(int) int) error {
	et := i.desc.ElementType
	extent := 0
	for idx := range values {
		extent = max(extent, index(idx)+1)
	}
	scratch := make([]byte, extent*et.Size())
	for idx, v := range values {
		if err := codec.EncodeFloat64(et, scratch, index(idx), v); err != nil {
			return err
		}
	}
	return i.mem.Write(i.ptr, scratch)
}

// Read decodes the buffer's current logical contents.
func (i *Instance) Read(ctx context.Context) ([]float64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	n, err := i.length(ctx)
	if err != nil {
		return nil, err
	}
	return i.read(n, func(idx int) int { return idx })
}

func (i *Instance) read(count int, index func(int) int) ([]float64, error) {
	et := i.desc.ElementType
	extent := 0
	for idx := 0; idx < count; idx++ {
		extent = max(extent, index(idx)+1)
	}
	view, err := i.mem.Read(i.ptr, uint32(extent*et.Size()))
	if err != nil {
		return nil, err
	}
	out := make([]float64, count)
	for idx := range out {
		if out[idx], err = codec.DecodeFloat64(et, view, index(idx)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ApplyVector runs one instant vector through a vector-shaped plugin:
// resize, verify the new length, write, apply, read back.
func (i *Instance) ApplyVector(ctx context.Context, values []float64) (out []float64, err error) {
	ctx, span := i.startSpan(ctx, "ApplyVector", len(values))
	defer func() { endSpan(span, err) }()

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.expectShape(codec.Vector); err != nil {
		return nil, err
	}
	if err := i.resize(ctx, len(values)); err != nil {
		return nil, err
	}
	if err := i.verifyLength(ctx, len(values)); err != nil {
		return nil, err
	}
	identity := func(idx int) int { return idx }
	if err := i.write(values, identity); err != nil {
		return nil, err
	}
	if err := i.apply(ctx); err != nil {
		return nil, err
	}
	return i.read(len(values), identity)
}

// ApplyMatrix runs a range vector through a matrix-shaped plugin. series
// holds dim0 series of dim1 samples each. The samples are placed with the
// negotiated layout and the result holds one value per series, read from the
// slot of its last sample.
func (i *Instance) ApplyMatrix(ctx context.Context, series [][]float64) (out []float64, err error) {
	dim0, dim1 := len(series), 0
	if dim0 > 0 {
		dim1 = len(series[0])
	}
	ctx, span := i.startSpan(ctx, "ApplyMatrix", dim0*dim1)
	defer func() { endSpan(span, err) }()

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.expectShape(codec.Matrix); err != nil {
		return nil, err
	}
	for m, s := range series {
		if len(s) != dim1 {
			return nil, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("series %d has %d samples, want %d", m, len(s), dim1))
		}
	}
	if dim0 > 0 && dim1 == 0 {
		return nil, errors.InvalidInput(errors.PhaseEncode, "series have no samples")
	}

	layout := i.desc.Layout
	n := dim0 * dim1
	if n > 0 {
		if last := layout.MaxIndex(dim0, dim1); last >= n {
			return nil, errors.OutOfBounds(errors.PhaseEncode, []string{"layout", layout.String()}, last, n)
		}
		if !layout.Injective(dim0, dim1) {
			return nil, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("layout %s overlaps series for %dx%d", layout, dim0, dim1))
		}
	}

	if err := i.setDimensions(ctx, dim0, dim1); err != nil {
		return nil, err
	}
	if err := i.verifyLength(ctx, n); err != nil {
		return nil, err
	}

	flat := make([]float64, 0, n)
	for _, s := range series {
		flat = append(flat, s...)
	}
	if err := i.write(flat, func(idx int) int {
		return layout.Index(idx/dim1, idx%dim1, dim0, dim1)
	}); err != nil {
		return nil, err
	}
	if err := i.apply(ctx); err != nil {
		return nil, err
	}
	return i.read(dim0, func(m int) int {
		return layout.Index(m, dim1-1, dim0, dim1)
	})
}

func (i *Instance) expectShape(want codec.Shape) error {
	if i.desc.Shape == want {
		return nil
	}
	return errors.New(errors.PhaseApply, errors.KindShapeMismatch).
		Path(i.module.name).
		Detail("plugin consumes %s input, call needs %s", i.desc.Shape, want).
		Build()
}

func (i *Instance) verifyLength(ctx context.Context, want int) error {
	got, err := i.length(ctx)
	if err != nil {
		return err
	}
	if got != want {
		return errors.InvalidData(errors.PhaseResize, []string{protocol.Length}, fmt.Sprintf("length %d after resizing to %d", got, want))
	}
	return nil
}

func (i *Instance) startSpan(ctx context.Context, op string, values int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("wasm_transform.plugin", i.module.name),
		attribute.String("wasm_transform.element_type", i.desc.ElementType.String()),
		attribute.String("wasm_transform.shape", i.desc.Shape.String()),
	}
	if values >= 0 {
		attrs = append(attrs, attribute.Int("wasm_transform.values", values))
	}
	return i.module.runtime.tracer.Start(ctx, "wasm_transform."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Close releases the instance's memory.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mod.Close(ctx)
}

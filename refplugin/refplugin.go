package refplugin

import (
	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
	"github.com/wippyai/wasm-transform/internal/wasm"
	"github.com/wippyai/wasm-transform/protocol"
	"github.com/wippyai/wasm-transform/transform"
)

const (
	// DefaultMaxLength is the buffer capacity in elements when Options.MaxLength is 0.
	DefaultMaxLength = 512

	// BufferOffset is the linear memory address of the shared buffer.
	BufferOffset = 1024

	pageSize = 65536
)

// global indices
const (
	gLength uint32 = iota
	gDim0
	gDim1
)

// Options configures an emitted plugin.
type Options struct {
	// MaxLength is the buffer capacity in elements.
	MaxLength int

	// Legacy exports get_wasm_memory_buffer_ptr, user_level_type and
	// input_type instead of the primary names, and omits capacity and
	// series_layout.
	Legacy bool

	// Omit drops the listed exports (primary or legacy names).
	Omit []string
}

// Names lists the plugins Build can emit.
func Names() []string {
	return transform.Names()
}

// Build emits the core wasm module for the named reference kernel.
func Build(name string, opts Options) ([]byte, error) {
	k, err := transform.Lookup(name)
	if err != nil {
		return nil, err
	}
	maxLength := opts.MaxLength
	if maxLength == 0 {
		maxLength = DefaultMaxLength
	}
	size := k.ElementType().Size()
	if maxLength < 0 || maxLength > (1<<31-1-BufferOffset)/size {
		return nil, errors.InvalidInput(errors.PhaseLoad, "max length out of range")
	}

	b := &builder{
		mod:       &wasm.Module{},
		kernel:    k,
		size:      int32(size),
		maxLength: int32(maxLength),
	}
	if err := b.build(name); err != nil {
		return nil, err
	}
	b.export(opts)
	return b.mod.Encode(), nil
}

type builder struct {
	mod       *wasm.Module
	kernel    transform.Kernel
	size      int32
	maxLength int32
	funcs     map[string]uint32
}

var (
	typeGetter = wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	typeUnary  = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}}
	typeBinary = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}}
	typeVoid   = wasm.FuncType{}
)

func (b *builder) build(name string) error {
	pages := (BufferOffset + int(b.maxLength)*int(b.size) + pageSize - 1) / pageSize
	b.mod.Memories = append(b.mod.Memories, wasm.Limits{Min: uint32(pages)})

	b.mod.AddGlobal(true, 0) // length
	b.mod.AddGlobal(true, 0) // dim0
	b.mod.AddGlobal(true, 0) // dim1

	b.funcs = make(map[string]uint32)
	b.funcs[protocol.Length] = b.mod.AddFunc(typeGetter, body(wasm.NewCode().GlobalGet(gLength)))
	b.funcs[protocol.Resize] = b.mod.AddFunc(typeUnary, b.resize())
	b.funcs[protocol.SetDimensions] = b.mod.AddFunc(typeBinary, b.setDimensions(b.funcs[protocol.Resize]))
	b.funcs[protocol.BufferPointer] = b.constant(BufferOffset)
	b.funcs[protocol.InputType] = b.constant(b.kernel.Shape().Tag())
	b.funcs[protocol.ElementTypeTag] = b.constant(b.kernel.ElementType().Tag())
	b.funcs[protocol.ScalarArgsCount] = b.constant(int32(b.kernel.ScalarArgs()))
	b.funcs[protocol.Capacity] = b.constant(b.maxLength)
	if k, ok := b.kernel.(transform.SeriesKernel); ok {
		b.funcs[protocol.SeriesLayout] = b.constant(k.Layout().Tag())
	}

	apply, err := b.apply(name)
	if err != nil {
		return err
	}
	b.funcs[protocol.Apply] = b.mod.AddFunc(typeVoid, apply)
	return nil
}

func (b *builder) export(opts Options) {
	omit := make(map[string]bool, len(opts.Omit))
	for _, name := range opts.Omit {
		omit[name] = true
	}
	add := func(name string, kind byte, idx uint32) {
		if !omit[name] {
			b.mod.Export(name, kind, idx)
		}
	}

	add(protocol.Memory, wasm.KindMemory, 0)
	for _, e := range protocol.Exports {
		idx, ok := b.funcs[e.Name]
		if !ok {
			continue
		}
		name := e.Name
		if opts.Legacy {
			switch e.Name {
			case protocol.Capacity, protocol.SeriesLayout:
				continue
			case protocol.BufferPointer, protocol.ElementTypeTag:
				name = e.Aliases[len(e.Aliases)-1]
			}
		}
		add(name, wasm.KindFunc, idx)
	}
}

func body(c *wasm.Code, locals ...wasm.LocalEntry) wasm.FuncBody {
	c.End()
	return wasm.FuncBody{Locals: locals, Code: c.Bytes()}
}

func (b *builder) constant(v int32) uint32 {
	return b.mod.AddFunc(typeGetter, body(wasm.NewCode().I32Const(v)))
}

// resize traps on n < 0 or n > capacity before touching state, then clears
// the whole buffer, stores the length and drops dimensions whose product
// differs from n.
func (b *builder) resize() wasm.FuncBody {
	c := wasm.NewCode()
	c.LocalGet(0).I32Const(0).Op(wasm.OpI32LtS).TrapIf()
	c.LocalGet(0).I32Const(b.maxLength).Op(wasm.OpI32GtS).TrapIf()

	c.I32Const(BufferOffset).I32Const(0).I32Const(b.maxLength * b.size).MemoryFill()
	c.LocalGet(0).GlobalSet(gLength)

	c.GlobalGet(gDim0).GlobalGet(gDim1).Op(wasm.OpI32Mul).LocalGet(0).Op(wasm.OpI32Ne).If()
	c.I32Const(0).GlobalSet(gDim0)
	c.I32Const(0).GlobalSet(gDim1)
	c.End()
	return body(c)
}

// setDimensions validates n*m against capacity without overflowing, then
// records the dimensions and calls resize.
func (b *builder) setDimensions(resize uint32) wasm.FuncBody {
	c := wasm.NewCode()
	c.LocalGet(0).I32Const(0).Op(wasm.OpI32LtS).TrapIf()
	c.LocalGet(1).I32Const(0).Op(wasm.OpI32LtS).TrapIf()

	// n > 0 && m > capacity/n
	c.LocalGet(0).If()
	c.LocalGet(1).I32Const(b.maxLength).LocalGet(0).Op(wasm.OpI32DivU).Op(wasm.OpI32GtU).TrapIf()
	c.End()

	c.LocalGet(0).GlobalSet(gDim0)
	c.LocalGet(1).GlobalSet(gDim1)
	c.LocalGet(0).LocalGet(1).Op(wasm.OpI32Mul).Call(resize)
	return body(c)
}

func (b *builder) apply(name string) (wasm.FuncBody, error) {
	switch name {
	case transform.NegateHalfF64:
		return b.elementwise(wasm.OpF64Store, func(c *wasm.Code, addr uint32) {
			c.LocalGet(addr).Load(wasm.OpF64Load, 8).Op(wasm.OpF64Neg).F64Const(2).Op(wasm.OpF64Div)
		}), nil
	case transform.NegateHalfI64:
		return b.elementwise(wasm.OpI64Store, func(c *wasm.Code, addr uint32) {
			c.I64Const(0).LocalGet(addr).Load(wasm.OpI64Load, 8).Op(wasm.OpI64Sub).I64Const(2).Op(wasm.OpI64DivS)
		}), nil
	case transform.SquareU32:
		return b.elementwise(wasm.OpI32Store, func(c *wasm.Code, addr uint32) {
			c.LocalGet(addr).Load(wasm.OpI32Load, 4).LocalGet(addr).Load(wasm.OpI32Load, 4).Op(wasm.OpI32Mul)
		}), nil
	case transform.ExpAvgF64:
		return b.windowed(codec.StrideByDim0), nil
	case transform.ExpAvgF64Rows:
		return b.windowed(codec.StrideByDim1), nil
	}
	return wasm.FuncBody{}, errors.NotFound(errors.PhaseLoad, "plugin", name)
}

// elementwise emits: for i in [0, length): buf[i] = f(buf[i]).
// value pushes f(element at local addr).
func (b *builder) elementwise(store byte, value func(c *wasm.Code, addr uint32)) wasm.FuncBody {
	const i, addr = 0, 1
	size := int(b.size)

	c := wasm.NewCode()
	c.Block().Loop()
	c.LocalGet(i).GlobalGet(gLength).Op(wasm.OpI32GeS).BrIf(1)

	c.LocalGet(i).I32Const(b.size).Op(wasm.OpI32Mul).I32Const(BufferOffset).Op(wasm.OpI32Add).LocalSet(addr)
	c.LocalGet(addr)
	value(c, addr)
	c.Store(store, size)

	c.LocalGet(i).I32Const(1).Op(wasm.OpI32Add).LocalSet(i)
	c.Br(0)
	c.End().End()

	return body(c, wasm.LocalEntry{Count: 2, ValType: wasm.ValI32})
}

// windowed emits the exponential moving average reduction over f64 series.
// It traps before any store when dim0*dim1 != length or when the last index
// the layout touches is not below length, even if it is below capacity.
func (b *builder) windowed(layout codec.SeriesLayout) wasm.FuncBody {
	const m, t, base, avg = 0, 1, 2, 3
	stride := gDim0
	if layout == codec.StrideByDim1 {
		stride = gDim1
	}

	c := wasm.NewCode()
	c.GlobalGet(gDim0).GlobalGet(gDim1).Op(wasm.OpI32Mul).GlobalGet(gLength).Op(wasm.OpI32Ne).TrapIf()
	c.GlobalGet(gDim0).Op(wasm.OpI32Eqz).If().Op(wasm.OpReturn).End()
	c.GlobalGet(gDim1).Op(wasm.OpI32Eqz).If().Op(wasm.OpReturn).End()

	// (dim0-1)*stride + dim1-1 >= length, in 64-bit to avoid wrapping
	c.GlobalGet(gDim0).Op(wasm.OpI64ExtendI32U).I64Const(1).Op(wasm.OpI64Sub)
	c.GlobalGet(stride).Op(wasm.OpI64ExtendI32U).Op(wasm.OpI64Mul)
	c.GlobalGet(gDim1).Op(wasm.OpI64ExtendI32U).Op(wasm.OpI64Add).I64Const(1).Op(wasm.OpI64Sub)
	c.GlobalGet(gLength).Op(wasm.OpI64ExtendI32U).Op(wasm.OpI64GeS).TrapIf()

	c.Block().Loop()
	c.LocalGet(m).GlobalGet(gDim0).Op(wasm.OpI32GeS).BrIf(1)

	c.LocalGet(m).GlobalGet(stride).Op(wasm.OpI32Mul).I32Const(8).Op(wasm.OpI32Mul).
		I32Const(BufferOffset).Op(wasm.OpI32Add).LocalSet(base)
	c.LocalGet(base).Load(wasm.OpF64Load, 8).LocalSet(avg)

	c.I32Const(1).LocalSet(t)
	c.Block().Loop()
	c.LocalGet(t).GlobalGet(gDim1).Op(wasm.OpI32GeS).BrIf(1)
	c.F64Const(transform.Alpha)
	c.LocalGet(base).LocalGet(t).I32Const(8).Op(wasm.OpI32Mul).Op(wasm.OpI32Add).Load(wasm.OpF64Load, 8)
	c.Op(wasm.OpF64Mul)
	c.F64Const(1 - transform.Alpha).LocalGet(avg).Op(wasm.OpF64Mul)
	c.Op(wasm.OpF64Add).LocalSet(avg)
	c.LocalGet(t).I32Const(1).Op(wasm.OpI32Add).LocalSet(t)
	c.Br(0)
	c.End().End()

	c.LocalGet(base).GlobalGet(gDim1).I32Const(1).Op(wasm.OpI32Sub).I32Const(8).Op(wasm.OpI32Mul).Op(wasm.OpI32Add)
	c.LocalGet(avg).Store(wasm.OpF64Store, 8)

	c.LocalGet(m).I32Const(1).Op(wasm.OpI32Add).LocalSet(m)
	c.Br(0)
	c.End().End()

	return body(c,
		wasm.LocalEntry{Count: 3, ValType: wasm.ValI32},
		wasm.LocalEntry{Count: 1, ValType: wasm.ValF64},
	)
}

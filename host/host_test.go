package host

import (
	"context"
	stderrors "errors"
	"slices"
	"testing"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
	"github.com/wippyai/wasm-transform/internal/wasm"
	"github.com/wippyai/wasm-transform/protocol"
	"github.com/wippyai/wasm-transform/refplugin"
	"github.com/wippyai/wasm-transform/transform"
)

func newRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })
	return rt
}

func build(t *testing.T, name string, opts refplugin.Options) []byte {
	t.Helper()
	bin, err := refplugin.Build(name, opts)
	if err != nil {
		t.Fatalf("Build(%q): %v", name, err)
	}
	return bin
}

func instantiate(t *testing.T, rt *Runtime, name string, opts refplugin.Options, loadOpts ...LoadOption) *Instance {
	t.Helper()
	ctx := context.Background()
	mod, err := rt.Load(ctx, name, build(t, name, opts), loadOpts...)
	if err != nil {
		t.Fatalf("Load(%q): %v", name, err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate(%q): %v", name, err)
	}
	return inst
}

func isKind(err error, phase errors.Phase, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Phase: phase, Kind: kind})
}

func smooth(avg, x float64) float64 {
	return float64(transform.Alpha*x) + float64((1-transform.Alpha)*avg)
}

func TestDescriptor(t *testing.T) {
	rt := newRuntime(t, Config{})
	tests := []struct {
		name  string
		elem  codec.ElementType
		shape codec.Shape
	}{
		{transform.NegateHalfF64, codec.Float64, codec.Vector},
		{transform.NegateHalfI64, codec.Int64, codec.Vector},
		{transform.SquareU32, codec.Uint32, codec.Vector},
		{transform.ExpAvgF64, codec.Float64, codec.Matrix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := instantiate(t, rt, tt.name, refplugin.Options{MaxLength: 64}).Descriptor()
			if d.Name != tt.name || d.ElementType != tt.elem || d.Shape != tt.shape {
				t.Errorf("descriptor = %s", d)
			}
			if d.Capacity != 64 || d.ScalarArgs != 0 {
				t.Errorf("capacity=%d args=%d", d.Capacity, d.ScalarArgs)
			}
		})
	}
}

func TestApplyVector(t *testing.T) {
	rt := newRuntime(t, Config{})
	ctx := context.Background()

	tests := []struct {
		plugin string
		in     []float64
		want   []float64
	}{
		{transform.NegateHalfF64, []float64{4, -3, 0}, []float64{-2, 1.5, 0}},
		{transform.NegateHalfI64, []float64{5, -5, 1, -1, 0}, []float64{-2, 2, 0, 0, 0}},
		{transform.SquareU32, []float64{3, 70000}, []float64{9, 605032704}},
		{transform.NegateHalfF64, []float64{}, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.plugin, func(t *testing.T) {
			inst := instantiate(t, rt, tt.plugin, refplugin.Options{})
			got, err := inst.ApplyVector(ctx, tt.in)
			if err != nil {
				t.Fatalf("ApplyVector: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyTwice(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, newRuntime(t, Config{}), transform.NegateHalfF64, refplugin.Options{})

	if _, err := inst.ApplyVector(ctx, []float64{4, -3}); err != nil {
		t.Fatal(err)
	}
	if err := inst.Apply(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := inst.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []float64{1, -0.75}) {
		t.Errorf("got %v", got)
	}
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, newRuntime(t, Config{}), transform.SquareU32, refplugin.Options{})

	if err := inst.Resize(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := inst.Write(ctx, []float64{1, 2}); err != nil {
		t.Fatal(err)
	}
	got, err := inst.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []float64{1, 2, 0}) {
		t.Errorf("got %v", got)
	}

	if err := inst.Write(ctx, []float64{1, 2, 3, 4}); !isKind(err, errors.PhaseEncode, errors.KindOutOfBounds) {
		t.Errorf("write past length: %v", err)
	}
	if err := inst.Write(ctx, []float64{7, -1}); !isKind(err, errors.PhaseEncode, errors.KindOverflow) {
		t.Errorf("negative u32: %v", err)
	}
	got, _ = inst.Read(ctx)
	if !slices.Equal(got, []float64{1, 2, 0}) {
		t.Errorf("failed write changed buffer: %v", got)
	}
}

func TestResize(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	t.Run("clears", func(t *testing.T) {
		inst := instantiate(t, rt, transform.NegateHalfF64, refplugin.Options{MaxLength: 8})
		inst.Resize(ctx, 2)
		inst.Write(ctx, []float64{5, 6})
		if err := inst.Resize(ctx, 4); err != nil {
			t.Fatal(err)
		}
		got, _ := inst.Read(ctx)
		if !slices.Equal(got, []float64{0, 0, 0, 0}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("capacity checked by host", func(t *testing.T) {
		inst := instantiate(t, rt, transform.NegateHalfF64, refplugin.Options{MaxLength: 8})
		inst.Resize(ctx, 2)
		inst.Write(ctx, []float64{5, 6})

		if err := inst.Resize(ctx, 9); !isKind(err, errors.PhaseResize, errors.KindCapacity) {
			t.Fatalf("err = %v", err)
		}
		got, _ := inst.Read(ctx)
		if !slices.Equal(got, []float64{5, 6}) {
			t.Errorf("failed resize changed state: %v", got)
		}
	})

	t.Run("capacity unknown traps in guest", func(t *testing.T) {
		inst := instantiate(t, rt, transform.NegateHalfF64, refplugin.Options{MaxLength: 8, Omit: []string{protocol.Capacity}})
		if inst.Descriptor().Capacity != 0 {
			t.Fatalf("capacity = %d", inst.Descriptor().Capacity)
		}
		if err := inst.Resize(ctx, 9); !isKind(err, errors.PhaseResize, errors.KindTrap) {
			t.Fatalf("err = %v", err)
		}
		if n, _ := inst.Length(ctx); n != 0 {
			t.Errorf("length = %d", n)
		}
	})

	t.Run("negative", func(t *testing.T) {
		inst := instantiate(t, rt, transform.NegateHalfF64, refplugin.Options{})
		if err := inst.Resize(ctx, -1); !isKind(err, errors.PhaseResize, errors.KindInvalidInput) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestBufferPointer(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, newRuntime(t, Config{}), transform.NegateHalfF64, refplugin.Options{})

	before, err := inst.BufferPointer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	inst.Resize(ctx, 100)
	after, _ := inst.BufferPointer(ctx)
	if before != refplugin.BufferOffset || after != before {
		t.Errorf("pointer %d then %d", before, after)
	}
}

func TestApplyMatrix(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	t.Run("single sample", func(t *testing.T) {
		inst := instantiate(t, rt, transform.ExpAvgF64, refplugin.Options{})
		got, err := inst.ApplyMatrix(ctx, [][]float64{{7}})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(got, []float64{7}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("2x2", func(t *testing.T) {
		inst := instantiate(t, rt, transform.ExpAvgF64, refplugin.Options{})
		got, err := inst.ApplyMatrix(ctx, [][]float64{{1, 3}, {2, 4}})
		if err != nil {
			t.Fatal(err)
		}
		want := []float64{smooth(1, 3), smooth(2, 4)}
		if !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}

		// slots other than each series' last sample keep their input
		all, _ := inst.Read(ctx)
		if all[0] != 1 || all[2] != 2 {
			t.Errorf("buffer = %v", all)
		}
	})

	t.Run("one series", func(t *testing.T) {
		inst := instantiate(t, rt, transform.ExpAvgF64, refplugin.Options{})
		got, err := inst.ApplyMatrix(ctx, [][]float64{{1, 2, 3}})
		if err != nil {
			t.Fatal(err)
		}
		if want := smooth(smooth(1, 2), 3); got[0] != want {
			t.Errorf("got %v, want %v", got[0], want)
		}
	})

	t.Run("rows layout", func(t *testing.T) {
		inst := instantiate(t, rt, transform.ExpAvgF64Rows, refplugin.Options{})
		if l := inst.Descriptor().Layout; l != codec.StrideByDim1 {
			t.Fatalf("negotiated layout = %v", l)
		}
		got, err := inst.ApplyMatrix(ctx, [][]float64{{1, 2}, {3, 4}, {5, 6}})
		if err != nil {
			t.Fatal(err)
		}
		want := []float64{smooth(1, 2), smooth(3, 4), smooth(5, 6)}
		if !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("empty", func(t *testing.T) {
		inst := instantiate(t, rt, transform.ExpAvgF64, refplugin.Options{})
		got, err := inst.ApplyMatrix(ctx, nil)
		if err != nil || len(got) != 0 {
			t.Errorf("got %v, %v", got, err)
		}
	})
}

func TestSeriesLayoutNegotiation(t *testing.T) {
	ctx := context.Background()
	dim1 := codec.StrideByDim1
	strict := newRuntime(t, Config{Layout: &dim1})

	t.Run("declared layout disagrees", func(t *testing.T) {
		mod, err := strict.Load(ctx, transform.ExpAvgF64, build(t, transform.ExpAvgF64, refplugin.Options{}))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := mod.Instantiate(ctx); !isKind(err, errors.PhaseNegotiate, errors.KindShapeMismatch) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("declared layout agrees", func(t *testing.T) {
		inst := instantiate(t, strict, transform.ExpAvgF64Rows, refplugin.Options{})
		got, err := inst.ApplyMatrix(ctx, [][]float64{{1, 2, 3}, {10, 20, 30}})
		if err != nil {
			t.Fatal(err)
		}
		want := []float64{smooth(smooth(1, 2), 3), smooth(smooth(10, 20), 30)}
		if !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("per module override", func(t *testing.T) {
		rt := newRuntime(t, Config{})
		mod, err := rt.Load(ctx, "rows", build(t, transform.ExpAvgF64Rows, refplugin.Options{}), WithLayout(codec.StrideByDim0))
		if err != nil {
			t.Fatal(err)
		}
		if l, ok := mod.Layout(); !ok || l != codec.StrideByDim0 {
			t.Errorf("Layout = %v, %v", l, ok)
		}
		if _, err := mod.Instantiate(ctx); !isKind(err, errors.PhaseNegotiate, errors.KindShapeMismatch) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("undeclared matrix plugin", func(t *testing.T) {
		bin := build(t, transform.ExpAvgF64, refplugin.Options{Legacy: true})
		mod, err := strict.Load(ctx, "legacy", bin)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := mod.Instantiate(ctx); !isKind(err, errors.PhaseNegotiate, errors.KindShapeMismatch) {
			t.Errorf("err = %v", err)
		}

		inst := instantiate(t, newRuntime(t, Config{}), transform.ExpAvgF64, refplugin.Options{Legacy: true})
		if l := inst.Descriptor().Layout; l != codec.StrideByDim0 {
			t.Errorf("layout = %v", l)
		}
		got, err := inst.ApplyMatrix(ctx, [][]float64{{1, 3}, {2, 4}})
		if err != nil || !slices.Equal(got, []float64{smooth(1, 3), smooth(2, 4)}) {
			t.Errorf("got %v, %v", got, err)
		}
	})

	t.Run("vector plugin ignores layout", func(t *testing.T) {
		inst := instantiate(t, strict, transform.NegateHalfF64, refplugin.Options{})
		got, err := inst.ApplyVector(ctx, []float64{4})
		if err != nil || !slices.Equal(got, []float64{-2}) {
			t.Errorf("got %v, %v", got, err)
		}
	})
}

func TestApplyMatrix_Rejects(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	tests := []struct {
		name   string
		series [][]float64
		phase  errors.Phase
		kind   errors.Kind
	}{
		{"reference layout past length", [][]float64{{1, 2}, {3, 4}, {5, 6}}, errors.PhaseEncode, errors.KindOutOfBounds},
		{"reference layout overlaps", [][]float64{{1, 2, 3}, {4, 5, 6}}, errors.PhaseEncode, errors.KindInvalidInput},
		{"ragged", [][]float64{{1, 2}, {3}}, errors.PhaseEncode, errors.KindInvalidInput},
		{"no samples", [][]float64{{}, {}}, errors.PhaseEncode, errors.KindInvalidInput},
		{"above capacity", [][]float64{make([]float64, 3), make([]float64, 3), make([]float64, 3)}, errors.PhaseResize, errors.KindCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := instantiate(t, rt, transform.ExpAvgF64, refplugin.Options{MaxLength: 8})
			_, err := inst.ApplyMatrix(ctx, tt.series)
			if !isKind(err, tt.phase, tt.kind) {
				t.Fatalf("err = %v", err)
			}
			if n, _ := inst.Length(ctx); n != 0 {
				t.Errorf("plugin touched: length = %d", n)
			}
		})
	}
}

func TestShapeMismatch(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	vec := instantiate(t, rt, transform.NegateHalfF64, refplugin.Options{})
	if _, err := vec.ApplyMatrix(ctx, [][]float64{{1}}); !isKind(err, errors.PhaseApply, errors.KindShapeMismatch) {
		t.Errorf("ApplyMatrix on vector plugin: %v", err)
	}
	mat := instantiate(t, rt, transform.ExpAvgF64, refplugin.Options{})
	if _, err := mat.ApplyVector(ctx, []float64{1}); !isKind(err, errors.PhaseApply, errors.KindShapeMismatch) {
		t.Errorf("ApplyVector on matrix plugin: %v", err)
	}
}

func TestApply_GuestTrap(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, newRuntime(t, Config{}), transform.ExpAvgF64, refplugin.Options{})

	// length without dimensions
	if err := inst.Resize(ctx, 3); err != nil {
		t.Fatal(err)
	}
	err := inst.Apply(ctx)
	if !isKind(err, errors.PhaseApply, errors.KindTrap) {
		t.Fatalf("err = %v", err)
	}

	// the instance stays usable after a trap
	got, err := inst.ApplyMatrix(ctx, [][]float64{{2}})
	if err != nil || got[0] != 2 {
		t.Errorf("after trap: %v, %v", got, err)
	}
}

func TestLoad_Legacy(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	mod, err := rt.Load(ctx, "legacy", build(t, transform.NegateHalfF64, refplugin.Options{Legacy: true}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if name, _ := mod.Export(protocol.BufferPointer); name != "get_wasm_memory_buffer_ptr" {
		t.Errorf("buffer pointer resolved to %q", name)
	}
	if name, _ := mod.Export(protocol.ElementTypeTag); name != "user_level_type" {
		t.Errorf("element type tag resolved to %q", name)
	}
	if _, ok := mod.Export(protocol.Capacity); ok {
		t.Error("capacity resolved")
	}

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got, err := inst.ApplyVector(ctx, []float64{4})
	if err != nil || !slices.Equal(got, []float64{-2}) {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestLoad_MissingExports(t *testing.T) {
	rt := newRuntime(t, Config{})
	bin := build(t, transform.NegateHalfF64, refplugin.Options{Omit: []string{protocol.Length, protocol.Apply, protocol.Capacity}})

	_, err := rt.Load(context.Background(), "partial", bin)
	var missing *errors.MissingExportsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("err = %v", err)
	}
	if missing.Module != "partial" || !slices.Equal(missing.Exports, []string{protocol.Apply, protocol.Length}) {
		t.Errorf("missing = %+v", missing)
	}
}

type stubOptions struct {
	elementTag   int32
	shapeTag     int32
	seriesLayout int32 // exported when non-zero
	applyParam   bool
	noMemory     bool
}

// stub emits a module that exports the required entry points with constant
// results and no buffer behavior.
func stub(o stubOptions) []byte {
	mod := &wasm.Module{}
	if !o.noMemory {
		mod.Memories = append(mod.Memories, wasm.Limits{Min: 1})
		mod.Export(protocol.Memory, wasm.KindMemory, 0)
	}

	constant := func(v int32) uint32 {
		c := wasm.NewCode()
		c.I32Const(v)
		c.End()
		return mod.AddFunc(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}, wasm.FuncBody{Code: c.Bytes()})
	}
	nop := func(params ...wasm.ValType) uint32 {
		c := wasm.NewCode()
		c.End()
		return mod.AddFunc(wasm.FuncType{Params: params}, wasm.FuncBody{Code: c.Bytes()})
	}

	mod.Export(protocol.Length, wasm.KindFunc, constant(0))
	mod.Export(protocol.Resize, wasm.KindFunc, nop(wasm.ValI32))
	mod.Export(protocol.BufferPointer, wasm.KindFunc, constant(16))
	mod.Export(protocol.InputType, wasm.KindFunc, constant(o.shapeTag))
	mod.Export(protocol.ElementTypeTag, wasm.KindFunc, constant(o.elementTag))
	if o.seriesLayout != 0 {
		mod.Export(protocol.SeriesLayout, wasm.KindFunc, constant(o.seriesLayout))
	}
	if o.applyParam {
		mod.Export(protocol.Apply, wasm.KindFunc, nop(wasm.ValI32))
	} else {
		mod.Export(protocol.Apply, wasm.KindFunc, nop())
	}
	return mod.Encode()
}

func TestLoad_Rejects(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	t.Run("signature", func(t *testing.T) {
		_, err := rt.Load(ctx, "stub", stub(stubOptions{elementTag: 10, shapeTag: 1, applyParam: true}))
		if !isKind(err, errors.PhaseLoad, errors.KindSignature) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("no memory", func(t *testing.T) {
		_, err := rt.Load(ctx, "stub", stub(stubOptions{elementTag: 10, shapeTag: 1, noMemory: true}))
		var missing *errors.MissingExportsError
		if !stderrors.As(err, &missing) || !slices.Equal(missing.Exports, []string{protocol.Memory}) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("not wasm", func(t *testing.T) {
		_, err := rt.Load(ctx, "junk", []byte("not wasm"))
		if !isKind(err, errors.PhaseLoad, errors.KindInvalidData) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestInstantiate_InvalidTags(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	tests := []struct {
		name string
		opts stubOptions
	}{
		{"element type zero", stubOptions{elementTag: 0, shapeTag: 1}},
		{"element type unknown", stubOptions{elementTag: 11, shapeTag: 1}},
		{"shape invalid", stubOptions{elementTag: 10, shapeTag: 0}},
		{"shape unknown", stubOptions{elementTag: 10, shapeTag: 3}},
		{"series layout unknown", stubOptions{elementTag: 10, shapeTag: 2, seriesLayout: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := rt.Load(ctx, "stub", stub(tt.opts))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if _, err := mod.Instantiate(ctx); !isKind(err, errors.PhaseNegotiate, errors.KindInvalidEnum) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestApplyVector_LengthNotApplied(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	mod, err := rt.Load(ctx, "stub", stub(stubOptions{elementTag: 10, shapeTag: 1}))
	if err != nil {
		t.Fatal(err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inst.ApplyVector(ctx, []float64{1, 2}); !isKind(err, errors.PhaseResize, errors.KindInvalidData) {
		t.Errorf("err = %v", err)
	}
	if _, err := inst.ApplyMatrix(ctx, [][]float64{{1}}); !isKind(err, errors.PhaseApply, errors.KindShapeMismatch) {
		t.Errorf("err = %v", err)
	}
}

func TestRuntime_MemoryLimit(t *testing.T) {
	rt := newRuntime(t, Config{MemoryLimitPages: 1})
	// an 8-element buffer at BufferOffset fits in one page
	inst := instantiate(t, rt, transform.NegateHalfF64, refplugin.Options{MaxLength: 8})
	if _, err := inst.ApplyVector(context.Background(), []float64{2}); err != nil {
		t.Fatal(err)
	}
}

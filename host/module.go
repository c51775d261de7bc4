package host

import (
	"context"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
	"github.com/wippyai/wasm-transform/protocol"
)

// Module is a compiled plugin whose exports passed the protocol checks.
// It is safe for concurrent use; each Instantiate yields an independent
// Instance with its own memory and buffer.
type Module struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	// exports maps protocol primary names to the name the module exports.
	exports map[string]string
	name    string
	start   []string
	layout  *codec.SeriesLayout
	wasi    bool
}

// Name returns the name the module was loaded under.
func (m *Module) Name() string { return m.name }

// Layout returns the series layout the module was loaded to expect, if any.
// The layout ApplyMatrix uses is the one negotiated into Instance.Descriptor.
func (m *Module) Layout() (codec.SeriesLayout, bool) {
	if m.layout == nil {
		return codec.StrideByDim0, false
	}
	return *m.layout, true
}

// Export returns the name the module exports for a protocol entry point.
func (m *Module) Export(primary string) (string, bool) {
	name, ok := m.exports[primary]
	return name, ok
}

func checkSignature(name string, e protocol.Export, def api.FunctionDefinition) error {
	params, err := protocol.CoreTypes(e.Params)
	if err != nil {
		return err
	}
	results, err := protocol.CoreTypes(e.Results)
	if err != nil {
		return err
	}
	if slices.Equal(params, def.ParamTypes()) && slices.Equal(results, def.ResultTypes()) {
		return nil
	}
	return errors.Signature(name, protocol.FormatCore(params, results), protocol.FormatCore(def.ParamTypes(), def.ResultTypes()))
}

// Instantiate creates an instance and negotiates its metadata. Invalid
// shape or element type tags fail the instantiation.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	if m.wasi {
		if err := m.runtime.initWASI(ctx); err != nil {
			return nil, err
		}
	}

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions(m.start...)
	mod, err := m.runtime.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &Instance{
		module: m,
		mod:    mod,
		mem:    &Memory{mem: mod.Memory()},
		fns:    make(map[string]api.Function, len(m.exports)),
	}
	for primary, name := range m.exports {
		inst.fns[primary] = mod.ExportedFunction(name)
	}

	if err := inst.negotiate(ctx); err != nil {
		mod.Close(ctx)
		return nil, err
	}

	m.runtime.logger.Debug("plugin instantiated",
		zap.String("plugin", m.name),
		zap.Stringer("descriptor", inst.desc),
		zap.Uint32("pointer", inst.ptr))
	return inst, nil
}

// Close releases the compiled module. Live instances are unaffected.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

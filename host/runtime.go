package host

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
	"github.com/wippyai/wasm-transform/protocol"
)

const tracerName = "github.com/wippyai/wasm-transform/host"

// Config holds configuration for runtime creation
type Config struct {
	// Logger overrides the package logger for this runtime.
	Logger *zap.Logger

	// Registerer receives the invocation metrics. nil disables registration;
	// the collectors are still maintained.
	Registerer prometheus.Registerer

	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Layout is the series layout expected of matrix plugins loaded without
	// WithLayout. A plugin that declares a different one through
	// series_layout fails to instantiate. nil accepts the declared layout.
	Layout *codec.SeriesLayout
}

// Runtime compiles and instantiates transform plugins.
type Runtime struct {
	runtime  wazero.Runtime
	logger   *zap.Logger
	metrics  *metrics
	tracer   trace.Tracer
	layout   *codec.SeriesLayout
	wasiMu   sync.Mutex
	wasiDone atomic.Bool
}

// New creates a runtime from cfg.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "register metrics")
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Runtime{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		logger:  log,
		metrics: m,
		tracer:  tp.Tracer(tracerName),
		layout:  cfg.Layout,
	}, nil
}

// LoadOption configures a single Load.
type LoadOption func(*Module)

// WithLayout overrides the runtime's expected series layout for one module.
func WithLayout(l codec.SeriesLayout) LoadOption {
	return func(m *Module) { m.layout = &l }
}

// Load compiles wasm and verifies it exports the protocol: a memory named
// "memory", every required entry point under its name or an accepted alias,
// and protocol core signatures for everything it exports.
func (r *Runtime) Load(ctx context.Context, name string, wasm []byte, opts ...LoadOption) (*Module, error) {
	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("compile %q", name), err)
	}

	m, err := r.check(name, compiled)
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}
	for _, opt := range opts {
		opt(m)
	}

	r.logger.Debug("plugin loaded",
		zap.String("plugin", name),
		zap.Int("exports", len(m.exports)),
		zap.Bool("wasi", m.wasi),
		zap.String("layout", layoutName(m.layout)))
	return m, nil
}

func layoutName(l *codec.SeriesLayout) string {
	if l == nil {
		return "declared"
	}
	return l.String()
}

func (r *Runtime) check(name string, compiled wazero.CompiledModule) (*Module, error) {
	fns := compiled.ExportedFunctions()
	has := func(export string) bool {
		_, ok := fns[export]
		return ok
	}

	missing := protocol.Missing(has)
	if _, ok := compiled.ExportedMemories()[protocol.Memory]; !ok {
		missing = append(missing, protocol.Memory)
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingExportsError(name, missing)
	}

	m := &Module{
		runtime:  r,
		name:     name,
		compiled: compiled,
		exports:  make(map[string]string, len(protocol.Exports)),
		layout:   r.layout,
	}
	for _, e := range protocol.Exports {
		resolved, ok := e.Resolve(has)
		if !ok {
			continue
		}
		if err := checkSignature(resolved, e, fns[resolved]); err != nil {
			return nil, err
		}
		m.exports[e.Name] = resolved
	}

	for _, imp := range compiled.ImportedFunctions() {
		module, fn, _ := imp.Import()
		if module != wasi_snapshot_preview1.ModuleName {
			return nil, errors.Load(fmt.Sprintf("%q imports unsupported function %s.%s", name, module, fn), nil)
		}
		m.wasi = true
	}
	if has("_initialize") {
		m.start = []string{"_initialize"}
	}
	return m, nil
}

func (r *Runtime) initWASI(ctx context.Context) error {
	if r.wasiDone.Load() {
		return nil
	}

	r.wasiMu.Lock()
	defer r.wasiMu.Unlock()

	if r.wasiDone.Load() {
		return nil
	}
	if r.runtime.Module(wasi_snapshot_preview1.ModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
			return errors.Instantiation(err)
		}
	}
	r.wasiDone.Store(true)
	return nil
}

// Close releases every module compiled or instantiated by r.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

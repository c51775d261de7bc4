package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/host"
	"github.com/wippyai/wasm-transform/internal/config"
	"github.com/wippyai/wasm-transform/refplugin"
)

type options struct {
	configPath  string
	wasmFile    string
	dir         string
	plugin      string
	values      string
	layout      string
	emit        string
	metrics     string
	pool        int
	list        bool
	interactive bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to YAML config (optional)")
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to plugin wasm file")
	flag.StringVar(&opts.dir, "dir", "", "Directory of plugin wasm files (overrides plugins.dir)")
	flag.StringVar(&opts.plugin, "plugin", "", "Plugin to run (defaults to the only one loaded)")
	flag.StringVar(&opts.values, "values", "", "Input rows: comma-separated values, rows separated by ';'")
	flag.StringVar(&opts.layout, "layout", "", "Require this series layout of matrix plugins (dim0|dim1)")
	flag.StringVar(&opts.emit, "emit", "", "Write the built-in plugins to this directory and exit")
	flag.StringVar(&opts.metrics, "metrics", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
	flag.IntVar(&opts.pool, "pool", 0, "Instances used for multi-row vector input (overrides runtime.pool_size)")
	flag.BoolVar(&opts.list, "list", false, "List plugins and exit")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(&cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.emit != "" {
		return emit(opts.emit, cfg.Plugins.MaxLength)
	}

	logger, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	host.SetLogger(logger)

	layout, err := cfg.SeriesLayout()
	if err != nil {
		return err
	}
	rt, err := host.New(ctx, host.Config{
		Logger:           logger,
		Registerer:       prometheus.DefaultRegisterer,
		MemoryLimitPages: cfg.Runtime.MemoryLimitPages,
		Layout:           layout,
	})
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	lib := host.NewLibrary(rt)
	if err := openLibrary(ctx, lib, cfg, opts); err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	switch {
	case opts.list:
		return list(ctx, lib)
	case opts.interactive:
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(lib)
	}

	name, err := pick(lib, opts.plugin)
	if err != nil {
		return err
	}
	rows, err := parseRows(opts.values)
	if err != nil {
		return err
	}
	if err := apply(ctx, lib, name, rows, cfg.Runtime.PoolSize); err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		fmt.Printf("\nServing metrics on %s, interrupt to exit\n", cfg.Metrics.Addr)
		<-ctx.Done()
	}
	return nil
}

func applyFlags(cfg *config.Config, opts options) {
	if opts.dir != "" {
		cfg.Plugins.Dir = opts.dir
	}
	if opts.layout != "" {
		cfg.Runtime.Layout = opts.layout
	}
	if opts.metrics != "" {
		cfg.Metrics.Addr = opts.metrics
	}
	if opts.pool > 0 {
		cfg.Runtime.PoolSize = opts.pool
	}
}

// openLibrary loads -wasm, the plugin directory, or the built-in plugins,
// in that order of preference.
func openLibrary(ctx context.Context, lib *host.Library, cfg config.Config, opts options) error {
	switch {
	case opts.wasmFile != "":
		data, err := os.ReadFile(opts.wasmFile)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(opts.wasmFile), ".wasm")
		_, err = lib.Load(ctx, name, data)
		return err

	case cfg.Plugins.Dir != "":
		_, err := lib.LoadDir(ctx, cfg.Plugins.Dir)
		return err
	}

	for _, name := range refplugin.Names() {
		bin, err := refplugin.Build(name, refplugin.Options{MaxLength: cfg.Plugins.MaxLength})
		if err != nil {
			return err
		}
		if _, err := lib.Load(ctx, name, bin); err != nil {
			return err
		}
	}
	return nil
}

func emit(dir string, maxLength int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range refplugin.Names() {
		bin, err := refplugin.Build(name, refplugin.Options{MaxLength: maxLength})
		if err != nil {
			return err
		}
		path := filepath.Join(dir, name+".wasm")
		if err := os.WriteFile(path, bin, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Println(path)
	}
	return nil
}

func list(ctx context.Context, lib *host.Library) error {
	for _, name := range lib.Names() {
		mod, err := lib.Get(name)
		if err != nil {
			return err
		}
		inst, err := mod.Instantiate(ctx)
		if err != nil {
			fmt.Printf("  %s: %v\n", name, err)
			continue
		}
		fmt.Printf("  %s\n", inst.Descriptor())
		inst.Close(ctx)
	}
	return nil
}

func pick(lib *host.Library, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	names := lib.Names()
	if len(names) != 1 {
		return "", fmt.Errorf("use -plugin to choose one of: %s", strings.Join(names, ", "))
	}
	return names[0], nil
}

// parseRows parses "1,2,3;4,5,6" into rows of values.
func parseRows(s string) ([][]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("no input values; use -values")
	}
	var rows [][]float64
	for _, row := range strings.Split(s, ";") {
		row = strings.TrimSpace(row)
		values := []float64{}
		if row != "" {
			for _, field := range strings.Split(row, ",") {
				v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
				if err != nil {
					return nil, fmt.Errorf("parse value %q: %w", field, err)
				}
				values = append(values, v)
			}
		}
		rows = append(rows, values)
	}
	return rows, nil
}

func apply(ctx context.Context, lib *host.Library, name string, rows [][]float64, poolSize int) error {
	mod, err := lib.Get(name)
	if err != nil {
		return err
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	desc := inst.Descriptor()
	fmt.Printf("Plugin: %s\n", desc)

	if desc.Shape == codec.Matrix {
		out, err := inst.ApplyMatrix(ctx, rows)
		if err != nil {
			return fmt.Errorf("apply: %w", err)
		}
		fmt.Printf("Result: %s\n", formatValues(out))
		return nil
	}

	if len(rows) == 1 {
		out, err := inst.ApplyVector(ctx, rows[0])
		if err != nil {
			return fmt.Errorf("apply: %w", err)
		}
		fmt.Printf("Result: %s\n", formatValues(out))
		return nil
	}

	pool, err := host.NewPool(ctx, mod, min(poolSize, len(rows)))
	if err != nil {
		return err
	}
	defer pool.Close(ctx)

	out, err := pool.ApplyVectors(ctx, rows)
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	for i, values := range out {
		fmt.Printf("Result[%d]: %s\n", i, formatValues(values))
	}
	return nil
}

func formatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint stopped", zap.Error(err))
	}
}

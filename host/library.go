package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-transform/errors"
)

// Library holds loaded modules keyed by name.
type Library struct {
	runtime *Runtime
	modules map[string]*Module
	mu      sync.RWMutex
}

// NewLibrary creates an empty library backed by r.
func NewLibrary(r *Runtime) *Library {
	return &Library{
		runtime: r,
		modules: make(map[string]*Module),
	}
}

// Load compiles wasm and registers it under name, replacing any module
// already registered under that name.
func (l *Library) Load(ctx context.Context, name string, wasm []byte, opts ...LoadOption) (*Module, error) {
	m, err := l.runtime.Load(ctx, name, wasm, opts...)
	if err != nil {
		return nil, err
	}
	l.Add(m)
	return m, nil
}

// Add registers m under its name.
func (l *Library) Add(m *Module) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules[m.name] = m
}

// LoadDir loads every *.wasm file in dir, keyed by file name without the
// extension. Files load in name order and the first failure stops the scan.
func (l *Library) LoadDir(ctx context.Context, dir string, opts ...LoadOption) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("read plugin directory %q", dir), err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wasm" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		wasm, err := os.ReadFile(path)
		if err != nil {
			return names, errors.Load(fmt.Sprintf("read %q", path), err)
		}

		name := strings.TrimSuffix(entry.Name(), ".wasm")
		if _, err := l.Load(ctx, name, wasm, opts...); err != nil {
			return names, err
		}
		names = append(names, name)
	}

	l.runtime.logger.Info("plugin directory loaded",
		zap.String("dir", dir),
		zap.Strings("plugins", names))
	return names, nil
}

// Get returns the module registered under name.
func (l *Library) Get(name string) (*Module, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.modules[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "plugin", name)
	}
	return m, nil
}

// Names returns the registered names in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.modules))
	for name := range l.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered module and empties the library.
func (l *Library) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for name, m := range l.modules {
		if err := m.Close(ctx); err != nil && first == nil {
			first = err
		}
		delete(l.modules, name)
	}
	return first
}

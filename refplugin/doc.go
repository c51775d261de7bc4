// Package refplugin emits the reference transform plugins as core
// WebAssembly binaries.
//
// Each binary implements the full protocol with no imports: an exported
// memory holding the buffer at BufferOffset, mutable globals for the length
// and dimensions, and one function per entry point. resize traps on requests
// above capacity before mutating anything and clears the whole buffer with
// memory.fill. The windowed kernels trap on a shape mismatch before any store.
//
//	bin, _ := refplugin.Build(transform.ExpAvgF64, refplugin.Options{MaxLength: 1024})
//	os.WriteFile("exp-avg-f64.wasm", bin, 0o644)
package refplugin

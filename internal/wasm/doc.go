// Package wasm encodes small core WebAssembly modules.
//
// It covers what the reference plugins need: function types, one memory,
// i32 globals, exports and function bodies built with Code. There is no
// decoder and no validation; wazero validates at compile time.
package wasm

// Package wasmtransform implements small numeric transform plugins that run in a
// WebAssembly sandbox and exchange data with their host only through one block
// of shared linear memory.
//
// The host writes input elements into the block, asks the plugin to describe
// itself, invokes a single in-place transform, and reads the results back from
// the same bytes. No references or object graphs cross the boundary.
//
// # Architecture Overview
//
//	wasmtransform/       Root package with the Memory interface
//	├── codec/           Element types, shape tags, little-endian element codec
//	├── buffer/          Fixed-capacity shared buffer with stable address
//	├── transform/       Kernels (elementwise, windowed average) and Plugin
//	├── guest/           int32 ABI binding over a Plugin
//	├── protocol/        Export names, WIT description, core signatures
//	├── refplugin/       Reference plugins emitted as core wasm binaries
//	├── host/            wazero host: negotiation, instances, library, pool
//	├── errors/          Structured error types
//	└── cmd/             run (CLI) and plugin (Go guest build)
//
// # Invocation Cycle
//
//	rt, _ := host.New(ctx, host.Config{})
//	mod, _ := rt.Load(ctx, "negate", wasmBytes)
//	inst, _ := mod.Instantiate(ctx)
//	out, _ := inst.ApplyVector(ctx, []float64{4, -3, 0}) // [-2 1.5 -0]
//
// ApplyVector performs the protocol steps: resize, verify the reported length,
// write the elements through the buffer pointer, apply, read back.
//
// # Thread Safety
//
// A plugin instance serves one caller at a time; host.Instance serializes
// callers with a mutex. Use host.Pool for concurrency across instances.
package wasmtransform

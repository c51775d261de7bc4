// Package guest is the boundary layer between a transform.Plugin and the
// wasm export table.
//
// Exports translates between the protocol's int32 values and typed Go values:
// shape and element type are tags only here, lengths are checked for sign,
// and errors become traps. cmd/plugin wires an Exports to //go:wasmexport
// functions.
package guest

// Package buffer implements the shared buffer of a transform plugin: one
// fixed-capacity byte region plus a mutable logical length and, for matrix
// input, two dimensions.
//
// Invariants:
//
//   - Length() <= Capacity() at all times.
//   - After Resize or SetDimensions every element of the logical view is zero.
//   - Pointer() is the same address for the lifetime of the Buffer.
//   - Element access is always aligned to the element size.
//
// Failed Resize and SetDimensions calls leave length, dimensions and contents
// unchanged.
package buffer

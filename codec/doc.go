// Package codec converts fixed-size numeric elements to and from the
// little-endian bytes of a shared buffer.
//
// Element i of a buffer occupies Size() bytes at offset i*Size(). Byte order is
// always little-endian because WebAssembly linear memory is little-endian,
// independent of the host CPU.
//
//	b := make([]byte, 3*8)
//	codec.Encode(b, 1, -1.5)
//	x := codec.Decode[float64](b, 1) // -1.5
//
// Decode and Encode treat an index outside the slice as a precondition
// violation and panic with an *errors.Error. DecodeFloat64 and EncodeFloat64
// are the checked, type-erased variants used by hosts that do not know the
// element type at compile time.
//
// The ElementType and Shape enums carry the boundary tags that plugins report
// through their metadata exports:
//
//	0 invalid, 1 u8, 2 u16, 3 u32, 4 u64, 5 s8, 6 s16, 7 s32, 8 s64, 9 f32, 10 f64
//	0 invalid, 1 vector, 2 matrix
package codec

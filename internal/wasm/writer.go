package wasm

import (
	"encoding/binary"
	"math"
)

// Writer accumulates the bytes of a module, section or function body.
// The zero value is ready to use.
type Writer struct {
	b []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated bytes. The slice aliases the Writer.
func (w *Writer) Bytes() []byte { return w.b }

func (w *Writer) Len() int { return len(w.b) }

func (w *Writer) Byte(b byte) { w.b = append(w.b, b) }

func (w *Writer) WriteBytes(data []byte) { w.b = append(w.b, data...) }

// WriteU32 emits v as unsigned LEB128: vector lengths, indices, section sizes.
func (w *Writer) WriteU32(v uint32) {
	w.b = appendULEB(w.b, uint64(v))
}

// WriteS32 emits v as signed LEB128, the i32.const immediate.
func (w *Writer) WriteS32(v int32) {
	w.b = appendSLEB(w.b, int64(v))
}

// WriteS64 emits v as signed LEB128, the i64.const immediate.
func (w *Writer) WriteS64(v int64) {
	w.b = appendSLEB(w.b, v)
}

// WriteF64 emits the f64.const immediate: raw IEEE 754 bits, little-endian.
func (w *Writer) WriteF64(v float64) {
	w.b = binary.LittleEndian.AppendUint64(w.b, math.Float64bits(v))
}

// WriteName emits a length-prefixed UTF-8 export name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.b = append(w.b, s...)
}

// WriteU32LE emits a fixed-width word; only the preamble uses it.
func (w *Writer) WriteU32LE(v uint32) {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
}

func appendULEB(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// appendSLEB stops once the remaining bits are all copies of the sign bit
// already carried by bit 6 of the last group.
func appendSLEB(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

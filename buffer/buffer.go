package buffer

import (
	"fmt"

	wasmtransform "github.com/wippyai/wasm-transform"
	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/errors"
)

// Buffer is a fixed-capacity region of elements shared with a host.
//
// Storage is allocated once by New and never reallocated, so the address
// returned by Pointer is stable for the lifetime of the Buffer. Only the
// logical length (and, for matrix input, the two dimensions) changes.
//
// A Buffer has a single owner at a time. It performs no locking.
type Buffer struct {
	storage   []byte
	elem      codec.ElementType
	maxLength int
	length    int
	dim0      int
	dim1      int
	hasDims   bool
}

// New allocates a buffer of maxLength elements of type elem with length 0.
func New(elem codec.ElementType, maxLength int) (*Buffer, error) {
	if !elem.Valid() {
		return nil, errors.InvalidEnum(errors.PhaseResize, nil, elem.Tag(), "element-type")
	}
	if maxLength <= 0 {
		return nil, errors.InvalidInput(errors.PhaseResize, fmt.Sprintf("max length must be positive, got %d", maxLength))
	}
	return &Buffer{
		storage:   make([]byte, maxLength*elem.Size()),
		elem:      elem,
		maxLength: maxLength,
	}, nil
}

// ElementType returns the element type fixed at construction.
func (b *Buffer) ElementType() codec.ElementType {
	return b.elem
}

// ElementSize returns the size in bytes of one element.
func (b *Buffer) ElementSize() int {
	return b.elem.Size()
}

// Length returns the current logical length in elements.
func (b *Buffer) Length() int {
	return b.length
}

// Capacity returns the maximum logical length.
func (b *Buffer) Capacity() int {
	return b.maxLength
}

// Dimensions returns dim0 (series) and dim1 (samples per series).
// ok is false when no dimensions are set for the current length.
func (b *Buffer) Dimensions() (dim0, dim1 int, ok bool) {
	return b.dim0, b.dim1, b.hasDims
}

// Resize sets the logical length to n elements and zero-fills the storage.
//
// Every element of [0, n) reads as zero afterwards, including data written
// before the call. Requests above Capacity are rejected before any state
// changes. Dimensions that no longer multiply to n are dropped.
func (b *Buffer) Resize(n int) error {
	if err := b.checkLength(n); err != nil {
		return err
	}
	b.resize(n)
	if b.hasDims && b.dim0*b.dim1 != n {
		b.dim0, b.dim1, b.hasDims = 0, 0, false
	}
	return nil
}

// SetDimensions records a dim0×dim1 range vector and resizes to dim0*dim1.
// The product is validated against Capacity before anything is mutated.
func (b *Buffer) SetDimensions(dim0, dim1 int) error {
	if dim0 < 0 || dim1 < 0 {
		return errors.InvalidInput(errors.PhaseResize, fmt.Sprintf("negative dimensions %dx%d", dim0, dim1))
	}
	if dim0 > 0 && dim1 > b.maxLength/dim0 {
		return errors.New(errors.PhaseResize, errors.KindCapacity).
			Detail("dimensions %dx%d exceed capacity %d", dim0, dim1, b.maxLength).
			Build()
	}
	n := dim0 * dim1
	if err := b.checkLength(n); err != nil {
		return err
	}
	b.dim0, b.dim1, b.hasDims = dim0, dim1, true
	b.resize(n)
	return nil
}

func (b *Buffer) checkLength(n int) error {
	if n < 0 {
		return errors.InvalidInput(errors.PhaseResize, fmt.Sprintf("negative length %d", n))
	}
	if n > b.maxLength {
		return errors.Capacity(errors.PhaseResize, n, b.maxLength)
	}
	return nil
}

// resize clears the whole storage, which covers [0, n) and any stale bytes
// left beyond the new logical view.
func (b *Buffer) resize(n int) {
	clear(b.storage)
	b.length = n
}

// Bytes returns the logical view [0, Length()*ElementSize()).
// The slice aliases the storage.
func (b *Buffer) Bytes() []byte {
	return b.storage[:b.length*b.elem.Size()]
}

// Storage returns the full storage, including bytes beyond the logical length.
func (b *Buffer) Storage() []byte {
	return b.storage
}

// Read implements wasmtransform.Memory over the storage address space.
func (b *Buffer) Read(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(b.storage)) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, []string{"buffer"}, int(end), len(b.storage))
	}
	return b.storage[offset:end], nil
}

// Write implements wasmtransform.Memory over the storage address space.
func (b *Buffer) Write(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(b.storage)) {
		return errors.OutOfBounds(errors.PhaseEncode, []string{"buffer"}, int(end), len(b.storage))
	}
	copy(b.storage[offset:], data)
	return nil
}

// Size implements wasmtransform.Memory.
func (b *Buffer) Size() uint32 {
	return uint32(len(b.storage))
}

var _ wasmtransform.Memory = (*Buffer)(nil)

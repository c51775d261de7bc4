package buffer

import "unsafe"

// Pointer returns the address of the first storage byte.
//
// This is the only place raw addresses leave the package. The storage is
// allocated once and never reallocated, and the Go collector does not move
// heap objects, so the address is the same for every call on the same Buffer.
// Callers writing through it must stay within Capacity()*ElementSize() bytes.
func (b *Buffer) Pointer() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b.storage))
}

// Addr returns Pointer as an integer, as handed to a host across the ABI.
func (b *Buffer) Addr() uintptr {
	return uintptr(b.Pointer())
}

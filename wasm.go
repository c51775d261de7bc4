package wasmtransform

// Memory is a byte-addressed view of a plugin's shared storage.
// Offsets are absolute within the view: guest linear memory on the host side,
// or the buffer storage itself for in-process plugins.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	Size() uint32
}

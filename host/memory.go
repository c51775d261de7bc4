package host

import (
	"github.com/tetratelabs/wazero/api"

	wasmtransform "github.com/wippyai/wasm-transform"
	"github.com/wippyai/wasm-transform/errors"
)

// Memory is a view of a plugin's exported linear memory.
// Slices returned by Read alias guest memory and are valid until the next
// call into the instance.
type Memory struct {
	mem api.Memory
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseDecode, []string{"memory"}, int(uint64(offset)+uint64(length)), int(m.mem.Size()))
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseEncode, []string{"memory"}, int(uint64(offset)+uint64(len(data))), int(m.mem.Size()))
	}
	return nil
}

func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

var _ wasmtransform.Memory = (*Memory)(nil)

package wasm

// Code accumulates an instruction sequence. Methods append one instruction
// with its immediates; structured instructions must be closed with End.
type Code struct {
	w Writer
}

// NewCode returns an empty instruction sequence.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.w.Bytes()
}

// Op appends an instruction without immediates.
func (c *Code) Op(ops ...byte) *Code {
	for _, op := range ops {
		c.w.Byte(op)
	}
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
	return c
}

func (c *Code) F64Const(v float64) *Code {
	c.w.Byte(OpF64Const)
	c.w.WriteF64(v)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code  { return c.index(OpLocalGet, idx) }
func (c *Code) LocalSet(idx uint32) *Code  { return c.index(OpLocalSet, idx) }
func (c *Code) LocalTee(idx uint32) *Code  { return c.index(OpLocalTee, idx) }
func (c *Code) GlobalGet(idx uint32) *Code { return c.index(OpGlobalGet, idx) }
func (c *Code) GlobalSet(idx uint32) *Code { return c.index(OpGlobalSet, idx) }
func (c *Code) Call(idx uint32) *Code      { return c.index(OpCall, idx) }
func (c *Code) Br(depth uint32) *Code      { return c.index(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code    { return c.index(OpBrIf, depth) }

func (c *Code) index(op byte, idx uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(idx)
	return c
}

// Load appends a load with natural alignment for size bytes.
func (c *Code) Load(op byte, size int) *Code {
	return c.mem(op, size)
}

// Store appends a store with natural alignment for size bytes.
func (c *Code) Store(op byte, size int) *Code {
	return c.mem(op, size)
}

func (c *Code) mem(op byte, size int) *Code {
	var align uint32
	for s := size; s > 1; s >>= 1 {
		align++
	}
	c.w.Byte(op)
	c.w.WriteU32(align)
	c.w.WriteU32(0)
	return c
}

// Block, Loop and If open a structured instruction with an empty block type.
func (c *Code) Block() *Code { return c.Op(OpBlock, BlockTypeVoid) }
func (c *Code) Loop() *Code  { return c.Op(OpLoop, BlockTypeVoid) }
func (c *Code) If() *Code    { return c.Op(OpIf, BlockTypeVoid) }
func (c *Code) End() *Code   { return c.Op(OpEnd) }

// TrapIf pops an i32 and traps when it is non-zero.
func (c *Code) TrapIf() *Code {
	return c.If().Op(OpUnreachable).End()
}

// MemoryFill appends memory.fill on memory 0.
func (c *Code) MemoryFill() *Code {
	c.w.Byte(OpPrefixMisc)
	c.w.WriteU32(MiscMemoryFill)
	c.w.Byte(0)
	return c
}

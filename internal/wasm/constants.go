package wasm

// WebAssembly binary format magic number and version.
const (
	Magic   uint32 = 0x6D736100
	Version uint32 = 0x01
)

// Section IDs, in the order they must appear.
const (
	SectionType     byte = 1
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionCode     byte = 10
)

// Export descriptor kinds.
const (
	KindFunc   byte = 0
	KindMemory byte = 2
	KindGlobal byte = 3
)

// ValType is a core value type encoding.
type ValType byte

const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

// FuncTypeByte prefixes a function type in the type section.
const FuncTypeByte byte = 0x60

// BlockTypeVoid is the empty block type.
const BlockTypeVoid byte = 0x40

// LimitsHasMax flags a limits entry with a maximum.
const LimitsHasMax byte = 0x01

// Opcodes used by the plugin emitters.
const (
	OpUnreachable byte = 0x00
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A

	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24

	OpI32Load  byte = 0x28
	OpI64Load  byte = 0x29
	OpF32Load  byte = 0x2A
	OpF64Load  byte = 0x2B
	OpI32Store byte = 0x36
	OpI64Store byte = 0x37
	OpF32Store byte = 0x38
	OpF64Store byte = 0x39

	OpI32Const byte = 0x41
	OpI64Const byte = 0x42
	OpF64Const byte = 0x44

	OpI32Eqz byte = 0x45
	OpI32Ne  byte = 0x47
	OpI32LtS byte = 0x48
	OpI32GtS byte = 0x4A
	OpI32GtU byte = 0x4B
	OpI32GeS byte = 0x4E
	OpI64GeS byte = 0x59

	OpI32Add  byte = 0x6A
	OpI32Sub  byte = 0x6B
	OpI32Mul  byte = 0x6C
	OpI32DivU byte = 0x6E
	OpI64Add  byte = 0x7C
	OpI64Sub  byte = 0x7D
	OpI64Mul  byte = 0x7E
	OpI64DivS byte = 0x7F

	OpF64Neg byte = 0x9A
	OpF64Add byte = 0xA0
	OpF64Sub byte = 0xA1
	OpF64Mul byte = 0xA2
	OpF64Div byte = 0xA3

	OpI64ExtendI32U byte = 0xAD

	OpPrefixMisc byte = 0xFC
)

// Misc (0xFC prefix) sub-opcodes.
const (
	MiscMemoryFill uint32 = 0x0B
)

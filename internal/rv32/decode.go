package rv32

// Instruction holds every field a decoder might need; execute.go reads
// only the fields relevant to the instruction's format.
type Instruction struct {
	Raw    uint32
	Opcode uint32
	Rd     uint32
	Rs1    uint32
	Rs2    uint32
	Funct3 uint32
	Funct7 uint32

	ImmI int32
	ImmS int32
	ImmB int32
	ImmU int32
	ImmJ int32

	// CSR-instruction fields.
	CSRAddr uint32
	CSRUimm uint32
}

// Decode extracts every field from a 32-bit instruction word. Formats that
// don't use a given field simply leave it at its decoded-but-unused value;
// execute.go picks the right ones per opcode/funct3/funct7.
func Decode(raw uint32) Instruction {
	ins := Instruction{
		Raw:    raw,
		Opcode: raw & 0x7f,
		Rd:     (raw >> 7) & 0x1f,
		Funct3: (raw >> 12) & 0x7,
		Rs1:    (raw >> 15) & 0x1f,
		Rs2:    (raw >> 20) & 0x1f,
		Funct7: (raw >> 25) & 0x7f,
	}

	ins.ImmI = signExtend(raw>>20, 12)

	sImm := ((raw >> 25) << 5) | ((raw >> 7) & 0x1f)
	ins.ImmS = signExtend(sImm, 12)

	bImm := (((raw >> 31) & 1) << 12) |
		(((raw >> 7) & 1) << 11) |
		(((raw >> 25) & 0x3f) << 5) |
		(((raw >> 8) & 0xf) << 1)
	ins.ImmB = signExtend(bImm, 13)

	ins.ImmU = int32(raw & 0xfffff000)

	jImm := (((raw >> 31) & 1) << 20) |
		(((raw >> 12) & 0xff) << 12) |
		(((raw >> 20) & 1) << 11) |
		(((raw >> 21) & 0x3ff) << 1)
	ins.ImmJ = signExtend(jImm, 21)

	ins.CSRAddr = raw >> 20
	ins.CSRUimm = ins.Rs1

	return ins
}

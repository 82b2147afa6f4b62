package rv32

// insResult is the internal result of executing one instruction: which
// register/CSR/PC updates to commit, mirroring the teacher's write-back
// convention of deferring those updates until after a trap check. Memory
// stores, the LR.W reservation and the MRET/SRET status and privilege
// changes take effect during execution instead.
type insResult struct {
	regValid bool
	reg      uint32
	regVal   uint32

	pcValid bool
	pcVal   uint32

	csrValid bool
	csrAddr  uint32
	csrVal   uint32
}

func (r *insResult) wrRD(rd, val uint32) {
	r.regValid = true
	r.reg = rd
	r.regVal = val
}

func (r *insResult) wrPC(pc uint32) {
	r.pcValid = true
	r.pcVal = pc
}

func (r *insResult) wrCSR(addr, val uint32) {
	r.csrValid = true
	r.csrAddr = addr
	r.csrVal = val
}

// execute decodes and runs one instruction against the machine's current
// hart state, mirroring the teacher's staged mask/match dispatch: each
// tier masks off a fixed set of bits and switches on what remains, from
// the 7-bit opcode-only tier up to a full 32-bit exact match for the
// handful of instructions that share an opcode/funct3/funct7 with no
// register fields distinguishing them.
func (m *Machine) execute(ins Instruction, raw uint32) (insResult, error) {
	var r insResult
	h := &m.Hart

	if raw&0x7f == 0x73 {
		// every CSR/system instruction shares this low 7 bits; CSR reads
		// happen unconditionally up front so csrrw/csrrs/.../csrrci all see
		// the same pre-write value, matching getCsr's side-effect-free read.
		if isCSRInstruction(raw) {
			val, err := h.ReadCSR(ins.CSRAddr, m)
			if err != nil {
				return r, err
			}
			return m.execCSR(ins, raw, val)
		}
	}

	switch raw & 0x7f {
	case 0x17:
		r.wrRD(ins.Rd, uint32(int32(h.PC)+ins.ImmU))
		return r, nil
	case 0x6f:
		r.wrRD(ins.Rd, h.PC+4)
		r.wrPC(uint32(int32(h.PC) + ins.ImmJ))
		return r, nil
	case 0x37:
		r.wrRD(ins.Rd, uint32(ins.ImmU))
		return r, nil
	}

	switch raw & 0x707f {
	case 0x13: // addi
		r.wrRD(ins.Rd, uint32(int32(h.X[ins.Rs1])+ins.ImmI))
		return r, nil
	case 0x7013: // andi
		r.wrRD(ins.Rd, h.X[ins.Rs1]&uint32(ins.ImmI))
		return r, nil
	case 0x63: // beq
		if h.X[ins.Rs1] == h.X[ins.Rs2] {
			r.wrPC(uint32(int32(h.PC) + ins.ImmB))
		}
		return r, nil
	case 0x5063: // bge
		if int32(h.X[ins.Rs1]) >= int32(h.X[ins.Rs2]) {
			r.wrPC(uint32(int32(h.PC) + ins.ImmB))
		}
		return r, nil
	case 0x7063: // bgeu
		if h.X[ins.Rs1] >= h.X[ins.Rs2] {
			r.wrPC(uint32(int32(h.PC) + ins.ImmB))
		}
		return r, nil
	case 0x4063: // blt
		if int32(h.X[ins.Rs1]) < int32(h.X[ins.Rs2]) {
			r.wrPC(uint32(int32(h.PC) + ins.ImmB))
		}
		return r, nil
	case 0x6063: // bltu
		if h.X[ins.Rs1] < h.X[ins.Rs2] {
			r.wrPC(uint32(int32(h.PC) + ins.ImmB))
		}
		return r, nil
	case 0x1063: // bne
		if h.X[ins.Rs1] != h.X[ins.Rs2] {
			r.wrPC(uint32(int32(h.PC) + ins.ImmB))
		}
		return r, nil
	case 0xf, 0x100f: // fence, fence.i
		return r, nil
	case 0x67: // jalr
		r.wrRD(ins.Rd, h.PC+4)
		r.wrPC(uint32(int32(h.X[ins.Rs1])+ins.ImmI) &^ 1)
		return r, nil
	case 0x3: // lb
		v, err := m.ReadMem(uint32(int32(h.X[ins.Rs1])+ins.ImmI), 1)
		if err != nil {
			return r, err
		}
		r.wrRD(ins.Rd, uint32(signExtend(v, 8)))
		return r, nil
	case 0x4003: // lbu
		v, err := m.ReadMem(uint32(int32(h.X[ins.Rs1])+ins.ImmI), 1)
		if err != nil {
			return r, err
		}
		r.wrRD(ins.Rd, v)
		return r, nil
	case 0x1003: // lh
		v, err := m.ReadMem(uint32(int32(h.X[ins.Rs1])+ins.ImmI), 2)
		if err != nil {
			return r, err
		}
		r.wrRD(ins.Rd, uint32(signExtend(v, 16)))
		return r, nil
	case 0x5003: // lhu
		v, err := m.ReadMem(uint32(int32(h.X[ins.Rs1])+ins.ImmI), 2)
		if err != nil {
			return r, err
		}
		r.wrRD(ins.Rd, v)
		return r, nil
	case 0x2003: // lw
		v, err := m.ReadMem(uint32(int32(h.X[ins.Rs1])+ins.ImmI), 4)
		if err != nil {
			return r, err
		}
		r.wrRD(ins.Rd, v)
		return r, nil
	case 0x6013: // ori
		r.wrRD(ins.Rd, h.X[ins.Rs1]|uint32(ins.ImmI))
		return r, nil
	case 0x23: // sb
		return r, m.WriteMem(uint32(int32(h.X[ins.Rs1])+ins.ImmS), 1, h.X[ins.Rs2])
	case 0x1023: // sh
		return r, m.WriteMem(uint32(int32(h.X[ins.Rs1])+ins.ImmS), 2, h.X[ins.Rs2])
	case 0x2013: // slti
		r.wrRD(ins.Rd, boolU32(int32(h.X[ins.Rs1]) < ins.ImmI))
		return r, nil
	case 0x3013: // sltiu
		r.wrRD(ins.Rd, boolU32(h.X[ins.Rs1] < uint32(ins.ImmI)))
		return r, nil
	case 0x2023: // sw
		return r, m.WriteMem(uint32(int32(h.X[ins.Rs1])+ins.ImmS), 4, h.X[ins.Rs2])
	case 0x4013: // xori
		r.wrRD(ins.Rd, h.X[ins.Rs1]^uint32(ins.ImmI))
		return r, nil
	}

	if raw&0xf9f0707f == 0x1000202f { // lr.w (checked before the f800707f AMO tier, as its mask is tighter)
		addr := h.X[ins.Rs1]
		v, err := m.ReadMem(addr, 4)
		if err != nil {
			return r, err
		}
		h.Reservation = Reservation{Valid: true, Addr: addr}
		r.wrRD(ins.Rd, v)
		return r, nil
	}

	if res, handled, err := m.execAMO(raw, ins); handled {
		return res, err
	}

	switch raw & 0xfc00707f {
	case 0x1013: // slli
		r.wrRD(ins.Rd, h.X[ins.Rs1]<<(ins.Rs2&0x1f))
		return r, nil
	case 0x40005013: // srai
		r.wrRD(ins.Rd, sra(h.X[ins.Rs1], ins.Rs2&0x1f))
		return r, nil
	case 0x5013: // srli
		r.wrRD(ins.Rd, h.X[ins.Rs1]>>(ins.Rs2&0x1f))
		return r, nil
	}

	switch raw & 0xfe00707f {
	case 0x33: // add
		r.wrRD(ins.Rd, uint32(int32(h.X[ins.Rs1])+int32(h.X[ins.Rs2])))
		return r, nil
	case 0x7033: // and
		r.wrRD(ins.Rd, h.X[ins.Rs1]&h.X[ins.Rs2])
		return r, nil
	case 0x2004033: // div
		r.wrRD(ins.Rd, divRV32(h.X[ins.Rs1], h.X[ins.Rs2]))
		return r, nil
	case 0x2005033: // divu
		r.wrRD(ins.Rd, divuRV32(h.X[ins.Rs1], h.X[ins.Rs2]))
		return r, nil
	case 0x2000033: // mul
		r.wrRD(ins.Rd, h.X[ins.Rs1]*h.X[ins.Rs2])
		return r, nil
	case 0x2001033: // mulh
		r.wrRD(ins.Rd, mulh(h.X[ins.Rs1], h.X[ins.Rs2]))
		return r, nil
	case 0x2002033: // mulhsu
		r.wrRD(ins.Rd, mulhsu(h.X[ins.Rs1], h.X[ins.Rs2]))
		return r, nil
	case 0x2003033: // mulhu
		r.wrRD(ins.Rd, mulhu(h.X[ins.Rs1], h.X[ins.Rs2]))
		return r, nil
	case 0x6033: // or
		r.wrRD(ins.Rd, h.X[ins.Rs1]|h.X[ins.Rs2])
		return r, nil
	case 0x2006033: // rem
		r.wrRD(ins.Rd, remRV32(h.X[ins.Rs1], h.X[ins.Rs2]))
		return r, nil
	case 0x2007033: // remu
		r.wrRD(ins.Rd, remuRV32(h.X[ins.Rs1], h.X[ins.Rs2]))
		return r, nil
	case 0x1033: // sll
		r.wrRD(ins.Rd, h.X[ins.Rs1]<<(h.X[ins.Rs2]&0x1f))
		return r, nil
	case 0x2033: // slt
		r.wrRD(ins.Rd, boolU32(int32(h.X[ins.Rs1]) < int32(h.X[ins.Rs2])))
		return r, nil
	case 0x3033: // sltu
		r.wrRD(ins.Rd, boolU32(h.X[ins.Rs1] < h.X[ins.Rs2]))
		return r, nil
	case 0x40005033: // sra
		r.wrRD(ins.Rd, sra(h.X[ins.Rs1], h.X[ins.Rs2]&0x1f))
		return r, nil
	case 0x5033: // srl
		r.wrRD(ins.Rd, h.X[ins.Rs1]>>(h.X[ins.Rs2]&0x1f))
		return r, nil
	case 0x40000033: // sub
		r.wrRD(ins.Rd, uint32(int32(h.X[ins.Rs1])-int32(h.X[ins.Rs2])))
		return r, nil
	case 0x4033: // xor
		r.wrRD(ins.Rd, h.X[ins.Rs1]^h.X[ins.Rs2])
		return r, nil
	}

	if raw&0xfe007fff == 0x12000073 { // sfence.vma
		return r, nil
	}

	switch raw {
	case 0x00100073: // ebreak
		return r, Exception(CauseBreakpoint, h.PC)
	case 0x00000073: // ecall
		return r, m.execECall()
	case 0x30200073: // mret
		return m.execMRET()
	case 0x10200073: // sret
		return m.execSRET()
	case 0x00200073: // uret
		return r, nil
	case 0x10500073: // wfi
		return r, nil
	}

	return r, Exception(CauseIllegalInstruction, raw)
}

func isCSRInstruction(raw uint32) bool {
	switch raw & 0x707f {
	case 0x1073, 0x2073, 0x3073, 0x5073, 0x6073, 0x7073:
		return true
	}
	return false
}

func (m *Machine) execCSR(ins Instruction, raw uint32, csrVal uint32) (insResult, error) {
	var r insResult
	switch raw & 0x707f {
	case 0x1073: // csrrw
		r.wrCSR(ins.CSRAddr, m.Hart.X[ins.Rs1])
	case 0x2073: // csrrs
		if m.Hart.X[ins.Rs1] != 0 {
			r.wrCSR(ins.CSRAddr, csrVal|m.Hart.X[ins.Rs1])
		}
	case 0x3073: // csrrc
		if m.Hart.X[ins.Rs1] != 0 {
			r.wrCSR(ins.CSRAddr, csrVal&^m.Hart.X[ins.Rs1])
		}
	case 0x5073: // csrrwi
		r.wrCSR(ins.CSRAddr, ins.CSRUimm)
	case 0x6073: // csrrsi
		if ins.CSRUimm != 0 {
			r.wrCSR(ins.CSRAddr, csrVal|ins.CSRUimm)
		}
	case 0x7073: // csrrci
		if ins.CSRUimm != 0 {
			r.wrCSR(ins.CSRAddr, csrVal&^ins.CSRUimm)
		}
	}
	r.wrRD(ins.Rd, csrVal)
	return r, nil
}

func (m *Machine) execECall() error {
	h := &m.Hart
	if m.ExitOnECall && h.X[17] == 93 {
		m.ExitRequested = true
		m.ExitCode = int(int32(h.X[10]) >> 1)
		return nil
	}
	switch h.Priv {
	case PrivUser:
		return Exception(CauseECallFromU, h.PC)
	case PrivSupervisor:
		return Exception(CauseECallFromS, h.PC)
	default:
		return Exception(CauseECallFromM, h.PC)
	}
}

// execMRET reconstructs MSTATUS and drops privilege per mstatus.MPP, using
// the corrected bitwise-NOT mask (the original source's equivalent
// expression is a correct bitwise complement here, unlike its trap-delivery
// counterpart).
func (m *Machine) execMRET() (insResult, error) {
	var r insResult
	h := &m.Hart
	newpc, err := h.ReadCSR(CSRMepc, m)
	if err != nil {
		return r, err
	}
	status := h.CSR[CSRMstatus]
	mpie := (status >> 7) & 1
	mpp := (status >> 11) & 0x3
	mprv := uint32(0)
	if Priv(mpp) == PrivMachine {
		mprv = (status >> 17) & 1
	}
	newStatus := (status &^ 0x21888) | (mprv << 17) | (mpie << 3) | (1 << 7)
	h.CSR[CSRMstatus] = newStatus
	h.Priv = Priv(mpp)
	r.wrPC(newpc)
	return r, nil
}

// execSRET mirrors execMRET for S-mode, reconstructing SSTATUS.
func (m *Machine) execSRET() (insResult, error) {
	var r insResult
	h := &m.Hart
	newpc, err := h.ReadCSR(CSRSepc, m)
	if err != nil {
		return r, err
	}
	status := h.CSR[CSRMstatus] & sstatusMask
	spie := (status >> 5) & 1
	spp := (status >> 8) & 1
	mprv := uint32(0)
	if Priv(spp) == PrivMachine {
		mprv = (status >> 17) & 1
	}
	newStatus := (status &^ 0x20122) | (mprv << 17) | (spie << 1) | (1 << 5)
	h.CSR[CSRMstatus] = (h.CSR[CSRMstatus] &^ sstatusMask) | (newStatus & sstatusMask)
	h.Priv = Priv(spp)
	r.wrPC(newpc)
	return r, nil
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// sra replicates the original's sign-extending shift: shifting the
// bitwise complement right (filling with zero) then complementing back
// is equivalent to an arithmetic right shift, and avoids relying on Go's
// (implementation-defined in intent, though actually well-defined) signed
// shift behavior.
func sra(v, shamt uint32) uint32 {
	if v&0x80000000 == 0 {
		return v >> shamt
	}
	return ^(^v >> shamt)
}

func mulh(a, b uint32) uint32 {
	return uint32((int64(int32(a)) * int64(int32(b))) >> 32)
}

func mulhsu(a, b uint32) uint32 {
	return uint32((int64(int32(a)) * int64(uint64(b))) >> 32)
}

func mulhu(a, b uint32) uint32 {
	return uint32((uint64(a) * uint64(b)) >> 32)
}

func divRV32(dividend, divisor uint32) uint32 {
	switch {
	case divisor == 0:
		return 0xFFFFFFFF
	case dividend == 0x80000000 && divisor == 0xFFFFFFFF:
		return dividend
	default:
		return uint32(int32(dividend) / int32(divisor))
	}
}

func divuRV32(dividend, divisor uint32) uint32 {
	if divisor == 0 {
		return 0xFFFFFFFF
	}
	return dividend / divisor
}

func remRV32(dividend, divisor uint32) uint32 {
	switch {
	case divisor == 0:
		return dividend
	case dividend == 0x80000000 && divisor == 0xFFFFFFFF:
		return 0
	default:
		return uint32(int32(dividend) % int32(divisor))
	}
}

func remuRV32(dividend, divisor uint32) uint32 {
	if divisor == 0 {
		return dividend
	}
	return dividend % divisor
}

package rv32

import "testing"

func TestDivBoundaryCases(t *testing.T) {
	if got := divRV32(10, 0); got != 0xFFFFFFFF {
		t.Fatalf("div by zero = %#x, want 0xFFFFFFFF", got)
	}
	if got := divuRV32(10, 0); got != 0xFFFFFFFF {
		t.Fatalf("divu by zero = %#x, want 0xFFFFFFFF", got)
	}
	if got := divRV32(0x80000000, 0xFFFFFFFF); got != 0x80000000 {
		t.Fatalf("div overflow = %#x, want 0x80000000", got)
	}
}

func TestRemBoundaryCases(t *testing.T) {
	if got := remRV32(7, 0); got != 7 {
		t.Fatalf("rem by zero = %#x, want dividend 7", got)
	}
	if got := remuRV32(7, 0); got != 7 {
		t.Fatalf("remu by zero = %#x, want dividend 7", got)
	}
	if got := remRV32(0x80000000, 0xFFFFFFFF); got != 0 {
		t.Fatalf("rem overflow = %#x, want 0", got)
	}
}

func TestSRAPreservesSign(t *testing.T) {
	if got := sra(0x80000000, 4); got != 0xF8000000 {
		t.Fatalf("sra = %#x, want 0xF8000000", got)
	}
	if got := sra(0x40000000, 4); got != 0x04000000 {
		t.Fatalf("sra = %#x, want 0x04000000", got)
	}
}

func TestRegisterZeroNeverWritten(t *testing.T) {
	m := newTestMachine(t)
	m.Hart.PC = 0x80000000
	storeWord(t, m, 0x80000000, 0x00100013) // addi x0, x0, 1
	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if m.Hart.X[0] != 0 {
		t.Fatalf("x0 = %#x, want 0", m.Hart.X[0])
	}
}

func TestMisalignedFetchFaultsWithoutAdvancingPC(t *testing.T) {
	m := newTestMachine(t)
	m.Hart.PC = 0x80000001
	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if m.Hart.CSR[CSRMcause] != CauseInstrAddrMisaligned {
		t.Fatalf("mcause = %#x, want %#x", m.Hart.CSR[CSRMcause], CauseInstrAddrMisaligned)
	}
	if m.Hart.CSR[CSRMtval] != 0x80000001 {
		t.Fatalf("mtval = %#x, want 0x80000001", m.Hart.CSR[CSRMtval])
	}
	if m.Hart.CSR[CSRMepc] != 0x80000001 {
		t.Fatalf("mepc = %#x, want the unadvanced pc 0x80000001", m.Hart.CSR[CSRMepc])
	}
}

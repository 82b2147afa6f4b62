package rv32

import "testing"

func TestTimerInterruptDelivery(t *testing.T) {
	m := newTestMachine(t)
	h := &m.Hart
	h.CSR[CSRMtvec] = 0x80000400
	h.CSR[CSRMstatus] |= 1 << 3 // MIE
	h.CSR[CSRMie] |= MipMTIP
	m.CLINT.MtimecmpLo = 10
	m.CLINT.MtimecmpHi = 0

	h.PC = 0x80000000
	for i := 0; i < 32; i++ {
		storeWord(t, m, 0x80000000+uint32(i*4), 0x00000013) // nop (addi x0,x0,0)
	}

	for i := 0; i < 20 && h.PC != 0x80000400; i++ {
		if err := m.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}

	if h.PC != 0x80000400 {
		t.Fatalf("pc = %#x, want mtvec 0x80000400", h.PC)
	}
	wantCause := uint32(InterruptOffset | IrqMTIP)
	if h.CSR[CSRMcause] != wantCause {
		t.Fatalf("mcause = %#x, want %#x", h.CSR[CSRMcause], wantCause)
	}

	m.CLINT.MtimecmpLo = 0xFFFFFFFF
	m.CLINT.MtimecmpHi = 0xFFFFFFFF
	m.CLINT.clearTimerPending()
	if h.CSR[CSRMip]&MipMTIP != 0 {
		t.Fatalf("MIP.MTIP still set after mtimecmp write")
	}
}

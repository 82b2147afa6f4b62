package rv32

import "testing"

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine(1<<20, 1)
	return m
}

func storeWord(t *testing.T, m *Machine, addr, val uint32) {
	t.Helper()
	if err := m.Bus.Store(addr, 4, val); err != nil {
		t.Fatalf("store %#x: %v", addr, err)
	}
}

func TestAuipcAddiSequence(t *testing.T) {
	m := newTestMachine(t)
	m.Hart.PC = 0x80000000
	storeWord(t, m, 0x80000000, 0x00000097) // auipc x1, 0x0
	storeWord(t, m, 0x80000004, 0x00808093) // addi x1, x1, 8

	if err := m.Step(); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if err := m.Step(); err != nil {
		t.Fatalf("step 2: %v", err)
	}

	if m.Hart.X[1] != 0x80000008 {
		t.Fatalf("x1 = %#x, want 0x80000008", m.Hart.X[1])
	}
	if m.Hart.PC != 0x80000008 {
		t.Fatalf("pc = %#x, want 0x80000008", m.Hart.PC)
	}
}

func TestBeqTaken(t *testing.T) {
	m := newTestMachine(t)
	m.Hart.PC = 0x80000100
	m.Hart.X[2] = 5
	m.Hart.X[3] = 5
	storeWord(t, m, 0x80000100, 0x00310463) // beq x2, x3, +8

	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if m.Hart.PC != 0x80000108 {
		t.Fatalf("pc = %#x, want 0x80000108", m.Hart.PC)
	}
}

func TestLRSCRoundTrip(t *testing.T) {
	m := newTestMachine(t)
	addr := uint32(0x80001000)
	storeWord(t, m, addr, 0xDEAD)

	m.Hart.X[1] = addr
	m.Hart.PC = 0x80002000
	storeWord(t, m, m.Hart.PC, 0x1000a12f) // lr.w x2, (x1)
	if err := m.Step(); err != nil {
		t.Fatalf("lr.w: %v", err)
	}
	if m.Hart.X[2] != 0xDEAD {
		t.Fatalf("x2 = %#x, want 0xDEAD", m.Hart.X[2])
	}

	m.Hart.X[4] = 0xBEEF
	storeWord(t, m, m.Hart.PC, 0x1840a1af) // sc.w x3, x4, (x1)
	if err := m.Step(); err != nil {
		t.Fatalf("sc.w: %v", err)
	}
	if m.Hart.X[3] != 0 {
		t.Fatalf("x3 = %#x, want 0 (sc.w success)", m.Hart.X[3])
	}
	got, err := m.Bus.Load(addr, 4)
	if err != nil || got != 0xBEEF {
		t.Fatalf("mem[addr] = %#x, err=%v, want 0xBEEF", got, err)
	}

	storeWord(t, m, m.Hart.PC, 0x1840a1af) // sc.w again, no reservation
	if err := m.Step(); err != nil {
		t.Fatalf("sc.w #2: %v", err)
	}
	if m.Hart.X[3] != 1 {
		t.Fatalf("x3 = %#x, want 1 (sc.w failure)", m.Hart.X[3])
	}
}

func TestPageFaultOnUnmappedFetch(t *testing.T) {
	m := newTestMachine(t)
	h := &m.Hart
	h.Priv = PrivSupervisor
	h.CSR[CSRMedeleg] = 1 << CauseInstrPageFault
	h.MMU.Mode = MMUModeSv32
	h.MMU.PPN = 0x80010 // root table at phys 0x80010000
	storeWord(t, m, 0x80010000, 0) // root PTE: V=0
	h.CSR[CSRStvec] = 0x80000400

	h.PC = 0x1000
	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if h.CSR[CSRScause] != CauseInstrPageFault {
		t.Fatalf("scause = %#x, want %#x", h.CSR[CSRScause], CauseInstrPageFault)
	}
	if h.CSR[CSRStval] != 0x1000 {
		t.Fatalf("stval = %#x, want 0x1000", h.CSR[CSRStval])
	}
	if h.CSR[CSRSepc] != 0x1000 {
		t.Fatalf("sepc = %#x, want 0x1000", h.CSR[CSRSepc])
	}
	if h.PC != 0x80000400 {
		t.Fatalf("pc = %#x, want stvec 0x80000400", h.PC)
	}
}

func TestUARTEcho(t *testing.T) {
	m := newTestMachine(t)
	var out fakeWriter
	m.UART.Out = &out

	if err := m.Bus.Store(uartBase+0, 1, 'A'); err != nil {
		t.Fatalf("store thr: %v", err)
	}

	for i := 0; i < 64; i++ {
		m.UART.Tick()
		if out.Len() > 0 {
			break
		}
	}
	if out.String() != "A" {
		t.Fatalf("uart output = %q, want %q", out.String(), "A")
	}
	if m.UART.LSR&lsrThrEmpty == 0 {
		t.Fatalf("LSR.THR_EMPTY not set after drain")
	}
}

type fakeWriter struct {
	buf []byte
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}
func (w *fakeWriter) Len() int       { return len(w.buf) }
func (w *fakeWriter) String() string { return string(w.buf) }

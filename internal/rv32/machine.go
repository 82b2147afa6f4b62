package rv32

import (
	"log/slog"
	"math/rand/v2"
)

// Machine wires a Hart to its Bus and the fixed set of peripherals this
// board exposes: CLINT, UART, RTC, SYSCON, the DTB/MTD windows, and the
// vendor network/DMA/RNG CSR block.
type Machine struct {
	Hart Hart
	Bus  *Bus

	CLINT  *CLINT
	UART   *UART16550
	RTC    *RTC
	Syscon *Syscon

	Net      NetTransport
	PlayerID uint32

	// NetRxPending is set when pollNet has delivered a frame the guest
	// hasn't yet acknowledged via a CSRNetRxBufReady write, and is one of
	// the sources OR'd into MIP.SEIP each tick.
	NetRxPending bool

	// ExitOnECall enables the guest-triggered host-exit convenience: an
	// ECALL with a7==93 stops the machine instead of trapping, taking its
	// exit status from x10>>1.
	ExitOnECall bool

	rng *rand.Rand

	ExitRequested bool
	ExitCode      int
}

// NetTransport is the collaborator used to actually move frames in and out
// of the guest's network DMA buffers; a no-op implementation is fine when
// no transport is configured.
type NetTransport interface {
	Send(frame []byte) error
	Recv() ([]byte, bool)
}

// NewMachine builds a machine with ramSize bytes of RAM and every
// peripheral attached at its fixed physical address.
func NewMachine(ramSize uint32, seed uint64) *Machine {
	m := &Machine{
		Bus: NewBus(ramSize),
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b9)),
	}
	Reset(&m.Hart)

	m.CLINT = NewCLINT()
	m.CLINT.Hart = &m.Hart
	m.Bus.Attach(clintBase, clintSize, m.CLINT)

	m.UART = NewUART16550()
	m.Bus.Attach(uartBase, uartSize, m.UART)

	m.RTC = NewRTC()
	m.Bus.Attach(rtcBase, rtcSize, m.RTC)

	m.Syscon = NewSyscon(m)
	m.Bus.Attach(syscon0Base, sysconSize, m.Syscon)

	m.Bus.Attach(netTxBase, netTxSize, newNetBuffer("net-tx", netTxSize))
	m.Bus.Attach(netRxBase, netRxSize, newNetBuffer("net-rx", netRxSize))

	return m
}

// AttachDTB installs a read-only device tree blob at the fixed DTB window.
func (m *Machine) AttachDTB(data []byte) {
	m.Bus.Attach(dtbWindowBase, dtbWindowSize, &ReadOnlyWindow{NameStr: "dtb", Data: data})
}

// AttachMTD installs a read-only flash/disk image at the fixed MTD window.
func (m *Machine) AttachMTD(data []byte) {
	m.Bus.Attach(mtdWindowBase, mtdWindowSize, &ReadOnlyWindow{NameStr: "mtd", Data: data})
}

func (m *Machine) nextRNG() uint32 {
	return m.rng.Uint32()
}

// performMemop executes the DMA copy described by the MEMOP_SRC/DST/N CSRs,
// a vendor extension used by the guest to move RAM without a CPU copy loop.
func (m *Machine) performMemop() {
	src := m.Hart.CSR[CSRMemopSrc]
	dst := m.Hart.CSR[CSRMemopDst]
	n := m.Hart.CSR[CSRMemopN]
	for i := uint32(0); i < n; i++ {
		v, err := m.Bus.Load(src+i, 1)
		if err != nil {
			slog.Warn("memop: source read fault", "addr", src+i)
			return
		}
		if err := m.Bus.Store(dst+i, 1, v); err != nil {
			slog.Warn("memop: destination write fault", "addr", dst+i)
			return
		}
	}
}

// sendNetFrame reads `size` bytes from the TX DMA buffer and hands them to
// the configured transport, per the vendor network CSR block.
func (m *Machine) sendNetFrame(size uint32) {
	if m.Net == nil || size == 0 {
		return
	}
	frame := make([]byte, size)
	for i := uint32(0); i < size; i++ {
		v, err := m.Bus.Load(netTxBase+i, 1)
		if err != nil {
			slog.Warn("net: tx buffer read fault", "offset", i)
			return
		}
		frame[i] = byte(v)
	}
	if err := m.Net.Send(frame); err != nil {
		slog.Warn("net: send failed", "err", err)
	}
}

// pollNet copies one inbound frame (if any) into the RX DMA buffer, raises
// the RX-ready flag the guest polls via CSRNetRxBufReady, and marks
// NetRxPending so the frame's arrival also raises MIP.SEIP: the guest's
// external-interrupt handler, not just a polling loop, observes it.
func (m *Machine) pollNet() {
	if m.Net == nil {
		return
	}
	frame, ok := m.Net.Recv()
	if !ok {
		return
	}
	for i, b := range frame {
		if err := m.Bus.Store(netRxBase+uint32(i), 1, uint32(b)); err != nil {
			slog.Warn("net: rx buffer write fault", "offset", i)
			return
		}
	}
	m.Hart.CSR[CSRNetRxBufReady] = uint32(len(frame))
	m.NetRxPending = true
}

func alignmentMask(size int) uint32 {
	switch size {
	case 2:
		return 1
	case 4:
		return 3
	default:
		return 0
	}
}

// ReadMem performs a translated, alignment-checked load of size bytes.
func (m *Machine) ReadMem(vaddr uint32, size int) (uint32, error) {
	if vaddr&alignmentMask(size) != 0 {
		return 0, Exception(CauseLoadAddrMisaligned, vaddr)
	}
	phys, err := Translate(&m.Hart, m.Bus, vaddr, AccessLoad)
	if err != nil {
		return 0, err
	}
	return m.Bus.Load(phys, size)
}

// WriteMem performs a translated, alignment-checked store of size bytes.
func (m *Machine) WriteMem(vaddr uint32, size int, val uint32) error {
	if vaddr&alignmentMask(size) != 0 {
		return Exception(CauseStoreAddrMisaligned, vaddr)
	}
	phys, err := Translate(&m.Hart, m.Bus, vaddr, AccessStore)
	if err != nil {
		return err
	}
	return m.Bus.Store(phys, size, val)
}

// FetchInstruction performs a translated fetch. A vaddr that is not 4-byte
// aligned raises InstrAddrMisaligned (compressed instructions are not
// supported, so misalignment is always an error here).
func (m *Machine) FetchInstruction(vaddr uint32) (uint32, error) {
	if vaddr&0x3 != 0 {
		return 0, Exception(CauseInstrAddrMisaligned, vaddr)
	}
	phys, err := Translate(&m.Hart, m.Bus, vaddr, AccessFetch)
	if err != nil {
		return 0, err
	}
	return m.Bus.Load(phys, 4)
}

// Step executes exactly one tick: clock increment, fetch/decode/execute,
// CLINT/UART ticks and the network poll, then interrupt delivery — matching
// the teacher's original per-tick ordering.
func (m *Machine) Step() error {
	h := &m.Hart
	h.Clock++

	raw, fetchErr := m.FetchInstruction(h.PC)
	var trapErr error
	nextPC := h.PC + 4

	if fetchErr != nil {
		trapErr = fetchErr
	} else {
		ins := Decode(raw)
		res, err := m.execute(ins, raw)
		if err != nil {
			trapErr = err
		} else {
			if res.pcValid {
				nextPC = res.pcVal
			}
			if res.csrValid {
				if err := h.WriteCSR(res.csrAddr, res.csrVal, m); err != nil {
					trapErr = err
				}
			}
			if trapErr == nil && res.regValid {
				h.WriteReg(res.reg, res.regVal)
			}
		}
	}

	m.CLINT.Tick(h)
	m.UART.Tick()
	uartIRQ := m.UART.Interrupting()
	m.pollNet()
	if uartIRQ || m.NetRxPending {
		h.CSR[CSRMip] |= MipSEIP
	} else {
		h.CSR[CSRMip] &^= MipSEIP
	}

	if trapErr != nil {
		deliverTrap(h, trapErr, false)
	} else {
		h.PC = nextPC
	}

	if trapErr == nil {
		if irq, ok := pendingInterrupt(h); ok {
			// MTIP/STIP stay set; only a write to mtimecmp clears them.
			if deliverTrap(h, Exception(InterruptOffset|irq, 0), true) && irq != IrqMTIP && irq != IrqSTIP {
				h.CSR[CSRMip] &^= 1 << irq
			}
		}
	}

	return nil
}

// Run steps the machine until ExitRequested is set (by an ECALL exit or
// SYSCON poweroff) or maxSteps is exhausted (0 means unbounded).
func (m *Machine) Run(maxSteps uint64) {
	for i := uint64(0); maxSteps == 0 || i < maxSteps; i++ {
		if m.ExitRequested {
			return
		}
		if err := m.Step(); err != nil {
			slog.Error("machine step failed", "err", err)
			return
		}
	}
}

package rv32

import "io"

// UART 16550 register bits relevant to this core's subset.
const (
	ierRxIntBit  = 1 << 0
	ierThreIntBit = 1 << 1

	iirNoInterrupt = 7
	iirThrEmpty    = 2
	iirRxAvailable = 4

	lsrDataAvailable = 1 << 0
	lsrThrEmpty      = 1 << 5
	lsrTemt          = 1 << 6
)

// UART16550 models the 16550-style serial port as discrete 8-bit
// registers rather than the packed 32-bit lanes an earlier implementation
// used; the packed layout is an internal detail with no observable MMIO
// effect, so this is a pure internal rework.
type UART16550 struct {
	RBR, THR, IER, IIR, LCR, MCR, LSR, SCR uint8

	threIP, rxIP bool

	Out io.Writer
	In  io.Reader

	clock uint32
}

func NewUART16550() *UART16550 {
	return &UART16550{LSR: lsrThrEmpty | lsrTemt}
}

func (u *UART16550) Name() string { return "uart16550" }

func (u *UART16550) dlab() bool { return u.LCR&0x80 != 0 }

// updateIIR recomputes IIR from live register state, matching
// uartUpdateIir: rx_ip = IER&RXINT && RBR!=0, thre_ip = IER&THREINT &&
// THR==0. This is independent of the threIP/rxIP pulse flags below, so
// IIR always reflects the current condition even on a tick where the
// pulse has already been consumed by Interrupting.
func (u *UART16550) updateIIR() {
	rxReady := u.IER&ierRxIntBit != 0 && u.RBR != 0
	threReady := u.IER&ierThreIntBit != 0 && u.THR == 0
	switch {
	case rxReady:
		u.IIR = iirRxAvailable
	case threReady:
		u.IIR = iirThrEmpty
	default:
		u.IIR = iirNoInterrupt
	}
}

// Interrupting reports whether the UART raised an external-interrupt
// condition since the last call, matching `thre_ip || rx_ip`. It then
// consumes both pulse flags the way the source's uartTick clears thre_ip
// at the end of the tick: the SEIP line is a one-tick pulse the caller is
// expected to fold into MIP.SEIP immediately, not a level held until
// acknowledged. IIR is unaffected — it's derived from live register state
// by updateIIR, not from these flags.
func (u *UART16550) Interrupting() bool {
	pending := u.threIP || u.rxIP
	u.threIP = false
	u.rxIP = false
	return pending
}

func (u *UART16550) Load(offset uint32, size int) (uint32, error) {
	return uint32(u.loadByte(offset)), nil
}

func (u *UART16550) loadByte(offset uint32) uint8 {
	switch offset {
	case 0:
		if u.dlab() {
			return 0
		}
		v := u.RBR
		u.RBR = 0
		u.LSR &^= lsrDataAvailable
		u.rxIP = false
		u.updateIIR()
		return v
	case 1:
		if u.dlab() {
			return 0
		}
		return u.IER
	case 2:
		return u.IIR
	case 3:
		return u.LCR
	case 4:
		return u.MCR
	case 5:
		return u.LSR
	case 7:
		return u.SCR
	default:
		return 0
	}
}

func (u *UART16550) Store(offset uint32, size int, val uint32) error {
	u.storeByte(offset, uint8(val))
	return nil
}

func (u *UART16550) storeByte(offset uint32, val uint8) {
	switch offset {
	case 0:
		if u.dlab() {
			return
		}
		u.THR = val
		u.LSR &^= lsrThrEmpty
		u.updateIIR()
	case 1:
		if u.dlab() {
			return
		}
		if u.IER&ierThreIntBit == 0 && val&ierThreIntBit != 0 && u.THR == 0 {
			u.threIP = true
		}
		u.IER = val
		u.updateIIR()
	case 2:
		// FCR on write; this core ignores FIFO control entirely
	case 3:
		u.LCR = val
	case 4:
		u.MCR = val
	case 7:
		u.SCR = val
	}
}

// Tick runs the transmit/receive timing described in the register layout
// notes: THR drains to the host writer on ticks where clock&0x16 is zero,
// RBR is refilled from the host reader every 0x38400 ticks.
func (u *UART16550) Tick() {
	u.clock++

	if u.clock&0x16 == 0 && u.THR != 0 {
		if u.Out != nil {
			u.Out.Write([]byte{u.THR})
		}
		u.THR = 0
		u.LSR |= lsrThrEmpty
		u.updateIIR()
		if u.IER&ierThreIntBit != 0 {
			u.threIP = true
		}
	}

	if u.clock%0x38400 == 0 && u.RBR == 0 {
		if u.In != nil {
			var b [1]byte
			if n, _ := u.In.Read(b[:]); n == 1 {
				u.RBR = b[0]
				u.LSR |= lsrDataAvailable
				u.updateIIR()
				if u.IER&ierRxIntBit != 0 {
					u.rxIP = true
				}
			}
		}
	}
}

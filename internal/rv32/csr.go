package rv32

// CSR addresses, matching the standard RISC-V privileged encoding plus the
// vendor extension block used by this machine's network/DMA/RNG devices.
const (
	CSRUstatus = 0x000
	CSRUie     = 0x004
	CSRUtvec   = 0x005
	CSRUepc    = 0x041
	CSRUcause  = 0x042
	CSRUtval   = 0x043

	CSRSstatus = 0x100
	CSRSedeleg = 0x102
	CSRSideleg = 0x103
	CSRSie     = 0x104
	CSRStvec   = 0x105
	CSRSscratch = 0x140
	CSRSepc    = 0x141
	CSRScause  = 0x142
	CSRStval   = 0x143
	CSRSip     = 0x144
	CSRSatp    = 0x180

	CSRMstatus  = 0x300
	CSRMisa     = 0x301
	CSRMedeleg  = 0x302
	CSRMideleg  = 0x303
	CSRMie      = 0x304
	CSRMtvec    = 0x305
	CSRMscratch = 0x340
	CSRMepc     = 0x341
	CSRMcause   = 0x342
	CSRMtval    = 0x343
	CSRMip      = 0x344

	CSRMcycle  = 0xb00
	CSRCycle   = 0xc00
	CSRTime    = 0xc01
	CSRMhartid = 0xf14

	// Vendor DMA / RNG / player-id block.
	CSRMemopOp  = 0x0b0
	CSRMemopSrc = 0x0b1
	CSRMemopDst = 0x0b2
	CSRMemopN   = 0x0b3
	CSRPlayerID = 0x0be
	CSRRng      = 0x0bf

	// Vendor network block.
	CSRNetTxBufAddr      = 0x0c0
	CSRNetTxBufSizeSend  = 0x0c1
	CSRNetRxBufAddr      = 0x0c2
	CSRNetRxBufReady     = 0x0c3
)

const (
	sstatusMask = 0x000de162
	sieSipMask  = 0x222
	midelegMask = 0x666
)

// hasAccessPrivilege implements spec §3's "addr[9:8] ≤ current_privilege" rule.
func hasAccessPrivilege(priv Priv, addr uint32) bool {
	return uint32(addr>>8)&0x3 <= uint32(priv)
}

func isReadOnlyCSR(addr uint32) bool {
	return (addr>>10)&0x3 == 0x3
}

// readCSRRaw implements the raw read side of the architectural aliasing
// described in spec §3: SSTATUS/SIE/SIP are masked views of
// MSTATUS/MIE/MIP, and a handful of addresses are synthesized rather than
// stored directly in the CSR table.
func (h *Hart) readCSRRaw(addr uint32, m *Machine) uint32 {
	switch addr {
	case CSRSstatus:
		return h.CSR[CSRMstatus] & sstatusMask
	case CSRSie:
		return h.CSR[CSRMie] & sieSipMask
	case CSRSip:
		return h.CSR[CSRMip] & sieSipMask
	case CSRCycle, CSRMcycle:
		return h.Clock
	case CSRTime:
		if m != nil {
			return m.CLINT.MtimeLo
		}
		return 0
	case CSRMhartid:
		return 0
	case CSRSatp:
		return (uint32(h.MMU.Mode) << 31) | h.MMU.PPN
	case CSRNetTxBufAddr:
		return netTxBase
	case CSRNetRxBufAddr:
		return netRxBase
	case CSRPlayerID:
		if m != nil {
			return m.PlayerID
		}
		return 0
	case CSRRng:
		if m != nil {
			return m.nextRNG()
		}
		return 0
	default:
		return h.CSR[addr&0xffff]
	}
}

// writeCSRRaw implements the raw write side, mirroring readCSRRaw's
// aliasing and routing SATP through the MMU updater.
func (h *Hart) writeCSRRaw(addr, val uint32, m *Machine) {
	switch addr {
	case CSRSstatus:
		h.CSR[CSRMstatus] = (h.CSR[CSRMstatus] &^ sstatusMask) | (val & sstatusMask)
	case CSRSie:
		h.CSR[CSRMie] = (h.CSR[CSRMie] &^ sieSipMask) | (val & sieSipMask)
	case CSRSip:
		h.CSR[CSRMip] = (h.CSR[CSRMip] &^ sieSipMask) | (val & sieSipMask)
	case CSRMideleg:
		h.CSR[CSRMideleg] = val & midelegMask
	case CSRTime, CSRCycle, CSRMcycle, CSRMhartid, CSRNetTxBufAddr, CSRNetRxBufAddr, CSRPlayerID, CSRRng:
		// read-only synthesized CSRs; writes are ignored
	case CSRSatp:
		h.MMU.Mode = uint8((val >> 31) & 1)
		h.MMU.PPN = val & 0x3fffff
		h.CSR[addr] = val
	case CSRNetTxBufSizeSend:
		if m != nil {
			m.sendNetFrame(val)
		}
	case CSRNetRxBufReady:
		// guest acknowledges it drained RX; clear the SEIP source pollNet set.
		h.CSR[addr] = val
		if m != nil {
			m.NetRxPending = false
		}
	case CSRMemopOp:
		if m != nil {
			m.performMemop()
		}
	default:
		h.CSR[addr] = val
	}
}

// ReadCSR implements the privileged CSR read used by CSR instructions: it
// checks access privilege and returns an ExceptionError on violation.
func (h *Hart) ReadCSR(addr uint32, m *Machine) (uint32, error) {
	if !hasAccessPrivilege(h.Priv, addr) {
		return 0, Exception(CauseIllegalInstruction, h.PC)
	}
	return h.readCSRRaw(addr, m), nil
}

// WriteCSR implements the privileged CSR write used by CSR instructions:
// it checks access privilege and the read-only-block bits, then delegates
// to writeCSRRaw.
func (h *Hart) WriteCSR(addr, val uint32, m *Machine) error {
	if !hasAccessPrivilege(h.Priv, addr) {
		return Exception(CauseIllegalInstruction, h.PC)
	}
	if isReadOnlyCSR(addr) {
		return Exception(CauseIllegalInstruction, h.PC)
	}
	h.writeCSRRaw(addr, val, m)
	return nil
}

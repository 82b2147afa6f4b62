package rv32

// pendingInterrupt returns the highest-priority pending interrupt's bit
// position (mip & mie), in the fixed priority order
// MEIP > MSIP > MTIP > SEIP > SSIP > STIP. UEIP/USIP/UTIP are decoded but
// never delivered: this core implements no user-mode trap handling, same
// as the source it is grounded on.
func pendingInterrupt(h *Hart) (uint32, bool) {
	pending := h.CSR[CSRMip] & h.CSR[CSRMie]
	for _, bit := range []uint32{IrqMEIP, IrqMSIP, IrqMTIP, IrqSEIP, IrqSSIP, IrqSTIP} {
		if pending&(1<<bit) != 0 {
			return bit, true
		}
	}
	return 0, false
}

// deliverTrap implements the combined delegation, ignore-check, and
// delivery algorithm: for interrupts it first decides whether the
// interrupt is even eligible to preempt the current privilege level and
// its enable bits, returning without effect if not (the interrupt stays
// pending and is retried next tick); for synchronous exceptions delivery
// always happens.
func deliverTrap(h *Hart, e error, isInterrupt bool) bool {
	exc, ok := e.(*ExceptionError)
	if !ok {
		return false
	}
	pos := exc.Cause &^ InterruptOffset

	currentPriv := h.Priv

	var mdeleg, sdeleg uint32
	if isInterrupt {
		mdeleg = h.CSR[CSRMideleg]
		sdeleg = h.CSR[CSRSideleg]
	} else {
		mdeleg = h.CSR[CSRMedeleg]
		sdeleg = h.CSR[CSRSedeleg]
	}

	newPriv := PrivMachine
	if (mdeleg>>pos)&1 != 0 {
		if (sdeleg>>pos)&1 != 0 {
			newPriv = PrivUser
		} else {
			newPriv = PrivSupervisor
		}
	}

	mstatus := h.CSR[CSRMstatus]
	sstatus := mstatus & sstatusMask

	if isInterrupt {
		var currentStatus uint32
		switch currentPriv {
		case PrivMachine:
			currentStatus = mstatus
		case PrivSupervisor:
			currentStatus = sstatus
		default:
			currentStatus = h.CSR[CSRUstatus]
		}

		var ie uint32
		switch newPriv {
		case PrivMachine:
			ie = h.CSR[CSRMie]
		case PrivSupervisor:
			ie = h.CSR[CSRSie]
		default:
			ie = h.CSR[CSRUie]
		}

		if newPriv < currentPriv {
			return false
		}
		if newPriv == currentPriv {
			switch currentPriv {
			case PrivMachine:
				if (currentStatus>>3)&1 == 0 {
					return false
				}
			case PrivSupervisor:
				if (currentStatus>>1)&1 == 0 {
					return false
				}
			default:
				if currentStatus&1 == 0 {
					return false
				}
			}
		}

		enableBit, known := interruptEnableBit(pos, ie)
		if known && enableBit == 0 {
			return false
		}
	}

	h.Priv = newPriv

	var epcAddr, causeAddr, tvalAddr, tvecAddr uint32
	switch newPriv {
	case PrivMachine:
		epcAddr, causeAddr, tvalAddr, tvecAddr = CSRMepc, CSRMcause, CSRMtval, CSRMtvec
	case PrivSupervisor:
		epcAddr, causeAddr, tvalAddr, tvecAddr = CSRSepc, CSRScause, CSRStval, CSRStvec
	default:
		epcAddr, causeAddr, tvalAddr, tvecAddr = CSRUepc, CSRUcause, CSRUtval, CSRUtvec
	}

	h.CSR[epcAddr] = h.PC
	h.CSR[causeAddr] = exc.Cause
	h.CSR[tvalAddr] = exc.Tval

	tvec := h.CSR[tvecAddr]
	if tvec&0x3 != 0 {
		tvec = (tvec &^ 0x3) + 4*pos
	}
	h.PC = tvec

	// Reservations do not survive a trap: this strengthens the source's
	// weaker "clear only on a matching SC.W" behavior, since any trap
	// handler may itself issue a conflicting LR/SC sequence.
	h.Reservation.Valid = false

	switch newPriv {
	case PrivMachine:
		mie := (mstatus >> 3) & 1
		newStatus := (mstatus &^ 0x1888) | (mie << 7) | (uint32(currentPriv) << 11)
		h.CSR[CSRMstatus] = newStatus
	case PrivSupervisor:
		sie := (sstatus >> 1) & 1
		newStatus := (sstatus &^ 0x122) | (sie << 5) | ((uint32(currentPriv) & 1) << 8)
		h.CSR[CSRMstatus] = (h.CSR[CSRMstatus] &^ sstatusMask) | (newStatus & sstatusMask)
	}

	return true
}

// interruptEnableBit picks the per-cause enable bit out of an xIE value
// for the MASK(...) checks in the source; returns known=false for
// synchronous exceptions, which have no such check.
func interruptEnableBit(pos uint32, ie uint32) (uint32, bool) {
	switch pos {
	case IrqUSIP:
		return ie & 1, true
	case IrqSSIP:
		return (ie >> 1) & 1, true
	case IrqMSIP:
		return (ie >> 3) & 1, true
	case IrqUTIP:
		return (ie >> 4) & 1, true
	case IrqSTIP:
		return (ie >> 5) & 1, true
	case IrqMTIP:
		return (ie >> 7) & 1, true
	case IrqUEIP:
		return (ie >> 8) & 1, true
	case IrqSEIP:
		return (ie >> 9) & 1, true
	case IrqMEIP:
		return (ie >> 11) & 1, true
	default:
		return 0, false
	}
}

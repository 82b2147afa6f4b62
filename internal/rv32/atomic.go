package rv32

// execAMO handles the AMO*.W and SC.W tier (mask 0xf800707f); LR.W is
// matched separately in execute.go because its mask is the tighter
// 0xf9f0707f (it also pins rs2 to zero). Returns handled=false when raw
// doesn't belong to this tier so execute.go can fall through.
func (m *Machine) execAMO(raw uint32, ins Instruction) (insResult, bool, error) {
	var r insResult
	h := &m.Hart

	if raw&0x707f != 0x202f {
		return r, false, nil
	}
	masked := raw & 0xf800707f

	addr := h.X[ins.Rs1]

	if masked == 0x1800202f { // sc.w
		if h.Reservation.Valid && h.Reservation.Addr == addr {
			if err := m.WriteMem(addr, 4, h.X[ins.Rs2]); err != nil {
				return r, true, err
			}
			h.Reservation.Valid = false
			r.wrRD(ins.Rd, 0)
		} else {
			r.wrRD(ins.Rd, 1)
		}
		return r, true, nil
	}

	var combine func(old, rs2 uint32) uint32
	switch masked {
	case 0x0800202f: // amoswap.w
		combine = func(old, rs2 uint32) uint32 { return rs2 }
	case 0x0000202f: // amoadd.w
		combine = func(old, rs2 uint32) uint32 { return old + rs2 }
	case 0x2000202f: // amoxor.w
		combine = func(old, rs2 uint32) uint32 { return old ^ rs2 }
	case 0x6000202f: // amoand.w
		combine = func(old, rs2 uint32) uint32 { return old & rs2 }
	case 0x4000202f: // amoor.w
		combine = func(old, rs2 uint32) uint32 { return old | rs2 }
	case 0x8000202f: // amomin.w
		combine = func(old, rs2 uint32) uint32 {
			if int32(rs2) < int32(old) {
				return rs2
			}
			return old
		}
	case 0xa000202f: // amomax.w
		combine = func(old, rs2 uint32) uint32 {
			if int32(rs2) > int32(old) {
				return rs2
			}
			return old
		}
	case 0xc000202f: // amominu.w
		combine = func(old, rs2 uint32) uint32 {
			if rs2 < old {
				return rs2
			}
			return old
		}
	case 0xe000202f: // amomaxu.w
		combine = func(old, rs2 uint32) uint32 {
			if rs2 > old {
				return rs2
			}
			return old
		}
	default:
		return r, false, nil
	}

	old, err := m.ReadMem(addr, 4)
	if err != nil {
		return r, true, err
	}
	if err := m.WriteMem(addr, 4, combine(old, h.X[ins.Rs2])); err != nil {
		return r, true, err
	}
	r.wrRD(ins.Rd, old)
	return r, true, nil
}

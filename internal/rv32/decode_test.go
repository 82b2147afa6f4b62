package rv32

import "testing"

// encodeB builds a B-format instruction word from an already-aligned
// 13-bit signed offset, mirroring the decoder's bit layout so the two
// can be checked against each other as a round trip.
func encodeB(opcode, rs1, rs2, funct3 uint32, imm int32) uint32 {
	u := uint32(imm)
	return opcode |
		(funct3 << 12) |
		(rs1 << 15) |
		(rs2 << 20) |
		(((u >> 11) & 1) << 7) |
		(((u >> 1) & 0xf) << 8) |
		(((u >> 5) & 0x3f) << 25) |
		(((u >> 12) & 1) << 31)
}

func TestBImmediateRoundTrip(t *testing.T) {
	cases := []int32{-4096, -2, 0, 2, 4094}
	for _, imm := range cases {
		raw := encodeB(0x63, 1, 2, 0, imm)
		got := Decode(raw).ImmB
		if got != imm {
			t.Fatalf("imm %d: decoded %d", imm, got)
		}
	}
}

func TestIImmediateSignExtension(t *testing.T) {
	raw := Decode(0xfff00093) // addi x1, x0, -1
	if raw.ImmI != -1 {
		t.Fatalf("ImmI = %d, want -1", raw.ImmI)
	}
}

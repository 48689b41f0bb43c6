// Package disasm formats embed VM instruction words as human-readable
// mnemonics, the inverse of the bit-packing pkg/embed executes. It is a
// read-only development aid, grounded on the mnemonic-table style of
// bassosimone-risc32/pkg/vm.Disassemble, adapted to the embed ISA's
// literal/ALU/call/branch bit layout (spec §4.5).
package disasm

import "fmt"

var aluNames = [32]string{
	0: "t", 1: "n", 2: "r", 3: "[t]", 4: "t![n]",
	5: "+", 6: "*", 7: "and", 8: "or", 9: "xor",
	10: "invert", 11: "1-", 12: "0=", 13: "=", 14: "u<",
	15: "<", 16: "rshift", 17: "lshift", 18: "sp@", 19: "rp@",
	20: "sp!", 21: "rp!", 22: "save", 23: "tx!", 24: "rx?",
	25: "u/mod", 26: "/mod", 27: "halt",
}

// One formats a single instruction word as a mnemonic line.
func One(inst uint16) string {
	switch {
	case inst&0x8000 == 0x8000:
		return fmt.Sprintf("lit   0x%04x", inst&0x7FFF)
	case inst&0xE000 == 0x6000:
		return aluMnemonic(inst)
	case inst&0xE000 == 0x4000:
		return fmt.Sprintf("call  0x%04x", inst&0x1FFF)
	case inst&0xE000 == 0x2000:
		return fmt.Sprintf("0branch 0x%04x", inst&0x1FFF)
	default:
		return fmt.Sprintf("branch 0x%04x", inst&0x1FFF)
	}
}

func aluMnemonic(inst uint16) string {
	op := (inst >> 8) & 0x1F
	name := aluNames[op]
	if name == "" {
		name = fmt.Sprintf("reserved(%d)", op)
	}
	var flags string
	if inst&0x80 != 0 {
		flags += " T->N"
	}
	if inst&0x40 != 0 {
		flags += " T->R"
	}
	if inst&0x20 != 0 {
		flags += " N->T"
	}
	if inst&0x10 != 0 {
		flags += " R->PC"
	}
	return fmt.Sprintf("alu   %-8s%s  dsp=%d drp=%d", name, flags, inst&0x3, (inst>>2)&0x3)
}

// Package image implements the embed VM's whole-core load/save format:
// a header-less sequence of little-endian 16-bit cells (spec §4.4, §6).
package image

import (
	"encoding/binary"
	"io"

	"github.com/bassosimone/embed16/pkg/core"
)

// SP0 and RP0 are the reset values of the variable- and return-stack
// pointers, per spec §3.
const (
	SP0 = 0x2200
	RP0 = 0x7FFF
)

// Registers is the execution-register snapshot produced by Load.
type Registers struct {
	PC, SP, RP, T uint16
}

// ResetRegisters returns the fresh register block load always resets to,
// with the variable- and return-stack pointers seeded from sp0 and rp0 --
// pass SP0 and RP0 for the spec-default bases, or a pkg/config override
// for experimentation with non-standard stack bases.
func ResetRegisters(sp0, rp0 uint16) Registers {
	return Registers{PC: 0, SP: sp0, RP: rp0, T: 0}
}

// Load reads pairs of bytes (lo, hi) from r and stores (hi<<8)|lo into
// consecutive cells of c starting at cell 0, stopping at the first read
// that returns less than two bytes (EOF, error, or a lone trailing byte)
// or when the core is full. It returns the count of cells actually
// loaded and the reset register block, seeded with sp0/rp0; load always
// resets PC, T, SP, and RP regardless of how many cells were filled.
func Load(r io.Reader, c *core.Core, sp0, rp0 uint16) (int, Registers) {
	var pair [2]byte
	var n int
	for n < core.Size {
		if _, err := io.ReadFull(r, pair[:]); err != nil {
			break
		}
		c[n] = binary.LittleEndian.Uint16(pair[:])
		n++
	}
	return n, ResetRegisters(sp0, rp0)
}

// Save writes the entire core as core.Size little-endian cells.
func Save(w io.Writer, c *core.Core) error {
	_, err := w.Write(c.Bytes())
	return err
}

// Package trace implements the embed VM's per-cycle diagnostic trace: one
// CSV record per cycle, written before that cycle's side effects, in a
// format a downstream tool converts to VCD (spec §4.6).
package trace

import (
	"fmt"
	"io"
)

// Emitter writes one CSV trace record per VM cycle to w. The zero value
// is not usable; construct with New. Emitter is not safe for concurrent
// use, matching the VM's own single-threaded execution model.
type Emitter struct {
	w           io.Writer
	cycle       uint64
	wroteHeader bool
}

// New returns an Emitter writing to w.
func New(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit writes one record for the pre-execution register snapshot
// (pc, instruction, t, sp, rp), using a decimal cycle counter and a unit
// column that reads "s" on the very first record and "ns" thereafter, to
// satisfy the downstream VCD converter's timestamp-origin convention.
func (e *Emitter) Emit(pc, inst, t, sp, rp uint16) {
	if !e.wroteHeader {
		fmt.Fprintln(e.w, "pc,instruction,t,sp,rp,cycle,unit")
		e.wroteHeader = true
	}
	unit := "ns"
	if e.cycle == 0 {
		unit = "s"
	}
	fmt.Fprintf(e.w, "%04x,%04x,%04x,%02x,%02x,%d,%s\n", pc, inst, t, uint8(sp), uint8(rp), e.cycle, unit)
	e.cycle++
}

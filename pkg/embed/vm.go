// Package embed implements the embed VM's instruction decoder and ALU:
// a 16-bit dual-stack machine executing one bit-packed instruction word
// per cycle (spec §4.5). This is the hard, educative part of the system;
// everything else in the repository exists to get bytes into and out of
// this loop.
package embed

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/bassosimone/embed16/pkg/blockfile"
	"github.com/bassosimone/embed16/pkg/core"
	"github.com/bassosimone/embed16/pkg/image"
	"github.com/bassosimone/embed16/pkg/ioadapt"
	"github.com/bassosimone/embed16/pkg/trace"
)

// ErrHalted is returned by Step once the fetched instruction is opcode 27
// (halt). Following the teacher's sentinel-error idiom
// (bassosimone-risc32/pkg/vm.go's ErrHalted/ErrNotPermitted/ErrSIGSEGV),
// callers test for it with errors.Is rather than a bare boolean.
var ErrHalted = errors.New("embed: halted")

// VM is one embed virtual machine instance. It exclusively owns its
// Core; callers must not alias it elsewhere. VM is not safe for
// concurrent use -- the embed architecture has no internal concurrency.
type VM struct {
	Core core.Core

	PC, SP, RP, T uint16

	// Getc and Putc back opcodes 24 and 23. Both are required; use
	// ioadapt.NewGetc/NewPutc to wrap stdin/stdout or a test buffer.
	Getc ioadapt.Reader
	Putc ioadapt.Writer

	// BlockPath is the file opcode 22 writes to. Empty means opcode 22
	// always fails with 0xFFFF, per spec §4.3.
	BlockPath string

	// SP0 and RP0 override the variable- and return-stack reset bases
	// image.SP0/image.RP0 otherwise supply. Zero means "use the spec
	// default"; set both from pkg/config for experimentation with
	// non-standard stack bases.
	SP0, RP0 uint16

	// Trace, if non-nil, receives one record per cycle before that
	// cycle's side effects. Nil disables tracing at zero cost.
	Trace *trace.Emitter

	// Log receives operational diagnostics (block-save failures). It
	// must not be nil; use zap.NewNop() to discard.
	Log *zap.Logger

	// Cycle counts executed instructions, for diagnostics only.
	Cycle uint64
}

// New constructs a VM with the given I/O adapters and logger.
func New(getc ioadapt.Reader, putc ioadapt.Writer, log *zap.Logger) *VM {
	if log == nil {
		log = zap.NewNop()
	}
	vm := &VM{Getc: getc, Putc: putc, Log: log}
	vm.Reset()
	return vm
}

// stackBase resolves the effective SP/RP reset values: vm.SP0/vm.RP0 when
// set, the spec defaults from pkg/image otherwise.
func (vm *VM) stackBase() (sp0, rp0 uint16) {
	sp0, rp0 = vm.SP0, vm.RP0
	if sp0 == 0 {
		sp0 = image.SP0
	}
	if rp0 == 0 {
		rp0 = image.RP0
	}
	return sp0, rp0
}

// Reset restores PC, SP, RP, and T to their power-on values, leaving the
// core untouched.
func (vm *VM) Reset() {
	sp0, rp0 := vm.stackBase()
	regs := image.ResetRegisters(sp0, rp0)
	vm.PC, vm.SP, vm.RP, vm.T = regs.PC, regs.SP, regs.RP, regs.T
}

// LoadImage loads r into the core via pkg/image and resets registers,
// returning the number of cells actually loaded.
func (vm *VM) LoadImage(r io.Reader) int {
	sp0, rp0 := vm.stackBase()
	n, regs := image.Load(r, &vm.Core, sp0, rp0)
	vm.PC, vm.SP, vm.RP, vm.T = regs.PC, regs.SP, regs.RP, regs.T
	return n
}

// SaveImage writes the entire core to w.
func (vm *VM) SaveImage(w io.Writer) error {
	return image.Save(w, &vm.Core)
}

// aluDelta is the SP/RP pointer delta table from spec §4.5, indexed by
// the two-bit delta field. It is added (wrapping) to SP and subtracted
// (wrapping) from RP, so the same table yields opposite signs for the
// two stacks.
var aluDelta = [4]uint16{0, 1, 0xFFFE, 0xFFFF}

// Step executes exactly one cycle: fetch, classify, and apply the side
// effects of the fetched instruction. It returns ErrHalted once the fetched
// instruction was a halt (opcode 27); the caller must stop calling Step
// once Step returns a non-nil error.
func (vm *VM) Step() error {
	inst := vm.Core.Read(vm.PC)
	if vm.Trace != nil {
		vm.Trace.Emit(vm.PC, inst, vm.T, vm.SP, vm.RP)
	}

	var err error
	switch {
	case inst&0x8000 == 0x8000: // literal
		vm.SP++
		vm.Core.Write(vm.SP, vm.T)
		vm.T = inst & 0x7FFF
		vm.PC++
	case inst&0xE000 == 0x6000: // ALU
		err = vm.stepALU(inst)
	case inst&0xE000 == 0x4000: // call
		vm.RP--
		vm.Core.Write(vm.RP, (vm.PC+1)<<1)
		vm.PC = inst & 0x1FFF
	case inst&0xE000 == 0x2000: // 0branch
		if vm.T == 0 {
			vm.PC = inst & 0x1FFF
		} else {
			vm.PC++
		}
		vm.T = vm.Core.Read(vm.SP)
		vm.SP--
	default: // unconditional branch
		vm.PC = inst & 0x1FFF
	}

	vm.Cycle++
	return err
}

// stepALU executes one ALU-family instruction, following the nine-step
// order from spec §4.5 exactly: old-T-before-reassignment semantics in
// steps 7-8 and the full delta/flag application on a divide-by-zero trap
// are both load-bearing and covered by tests. It returns ErrHalted for
// opcode 27 and nil for every other opcode, including the trap path.
func (vm *VM) stepALU(inst uint16) error {
	t := vm.T
	n := vm.Core.Read(vm.SP)
	tp := t

	if inst&0x10 != 0 {
		vm.PC = vm.Core.Read(vm.RP) >> 1
	} else {
		vm.PC++
	}

	switch (inst >> 8) & 0x1F {
	case 0: // T
	case 1: // N
		tp = n
	case 2: // R
		tp = vm.Core.Read(vm.RP)
	case 3: // [T]
		tp = vm.Core.Read(t >> 1)
	case 4: // T![N]
		vm.Core.Write(t>>1, n)
		vm.SP--
		tp = vm.Core.Read(vm.SP)
	case 5: // +
		d := uint32(t) + uint32(n)
		tp = uint16(d >> 16)
		vm.Core.Write(vm.SP, uint16(d))
		n = uint16(d)
	case 6: // *
		d := uint32(t) * uint32(n)
		tp = uint16(d >> 16)
		vm.Core.Write(vm.SP, uint16(d))
		n = uint16(d)
	case 7: // and
		tp = t & n
	case 8: // or
		tp = t | n
	case 9: // xor
		tp = t ^ n
	case 10: // invert
		tp = ^t
	case 11: // 1-
		tp = tp - 1
	case 12: // 0=
		tp = boolCell(t == 0)
	case 13: // =
		tp = boolCell(t == n)
	case 14: // u<
		tp = boolCell(n < t)
	case 15: // <
		tp = boolCell(int16(n) < int16(t))
	case 16: // rshift
		tp = n >> t
	case 17: // lshift
		tp = n << t
	case 18: // sp@
		tp = vm.SP << 1
	case 19: // rp@
		tp = vm.RP << 1
	case 20: // sp!
		vm.SP = t >> 1
	case 21: // rp!
		vm.RP = t >> 1
		tp = n
	case 22: // save
		start := uint32(n) >> 1
		length := (uint32(t) + 1) >> 1
		tp = blockfile.SaveToPath(vm.Log, vm.BlockPath, &vm.Core, start, length)
	case 23: // tx!
		tp = vm.Putc.Putc(t & 0xFF)
	case 24: // rx?
		tp = vm.Getc.Getc()
	case 25: // u/mod
		if t != 0 {
			tp = n / t
			t = n % t
			n = t
		} else {
			vm.PC = 1
			tp = 10
		}
	case 26: // /mod
		if t != 0 {
			tp = uint16(int16(n) / int16(t))
			t = uint16(int16(n) % int16(t))
			n = t
		} else {
			vm.PC = 1
			tp = 10
		}
	case 27: // halt
		return ErrHalted
	default:
		// no-op: reserved opcode
	}

	vm.SP += aluDelta[inst&0x3]
	vm.RP -= aluDelta[(inst>>2)&0x3]
	if inst&0x20 != 0 { // N -> T
		tp = n
	}
	if inst&0x40 != 0 { // T -> R
		vm.Core.Write(vm.RP, t)
	}
	if inst&0x80 != 0 { // T -> N
		vm.Core.Write(vm.SP, t)
	}
	vm.T = tp
	return nil
}

func boolCell(v bool) uint16 {
	if v {
		return 0xFFFF
	}
	return 0
}

// Run executes cycles until the VM halts or ctx is done, and returns the
// sign-extended T register as the process exit code (spec §4.5, §7). A
// nil ctx runs until halt with no cancellation path.
func (vm *VM) Run(ctx context.Context) int32 {
	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return int32(int16(vm.T))
			default:
			}
		}
		if err := vm.Step(); err != nil {
			return int32(int16(vm.T))
		}
	}
}

package embed

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bassosimone/embed16/pkg/ioadapt"
	"github.com/bassosimone/embed16/pkg/trace"
)

// helpers from spec §8.
const (
	halt = 0x7B00
	add  = 0x6523
	dec  = 0x6B00
)

func lit(v uint16) uint16 {
	return v | 0x8000
}

func newVM(stdin string) (*VM, *bytes.Buffer) {
	in := bytes.NewBufferString(stdin)
	out := &bytes.Buffer{}
	vm := New(ioadapt.NewGetc(in), ioadapt.NewPutc(out), zap.NewNop())
	return vm, out
}

func loadProgram(vm *VM, words ...uint16) {
	for i, w := range words {
		vm.Core.Write(uint16(i), w)
	}
}

func runCapped(t *testing.T, vm *VM, maxCycles int) int32 {
	t.Helper()
	for i := 0; i < maxCycles; i++ {
		if err := vm.Step(); err != nil {
			require.ErrorIs(t, err, ErrHalted)
			return int32(int16(vm.T))
		}
	}
	t.Fatalf("program did not halt within %d cycles", maxCycles)
	return 0
}

func TestHaltReturnSignExtension(t *testing.T) {
	vm, _ := newVM("")
	loadProgram(vm, lit(0x7FFF), halt)
	code := runCapped(t, vm, 10)
	assert.EqualValues(t, 32767, code)
}

func TestHaltReturnStripsLiteralSignBit(t *testing.T) {
	vm, _ := newVM("")
	loadProgram(vm, lit(0x7B00), halt)
	code := runCapped(t, vm, 10)
	assert.EqualValues(t, 31488, code)
}

func TestResetHonorsSP0RP0Override(t *testing.T) {
	vm, _ := newVM("")
	vm.SP0, vm.RP0 = 0x4000, 0x5FFF
	vm.Reset()
	assert.EqualValues(t, 0x4000, vm.SP)
	assert.EqualValues(t, 0x5FFF, vm.RP)
}

func TestLoadImageHonorsSP0RP0Override(t *testing.T) {
	vm, _ := newVM("")
	vm.SP0, vm.RP0 = 0x4000, 0x5FFF
	vm.LoadImage(bytes.NewReader(nil))
	assert.EqualValues(t, 0x4000, vm.SP)
	assert.EqualValues(t, 0x5FFF, vm.RP)
}

func TestResetIdempotence(t *testing.T) {
	vm, _ := newVM("")
	vm.PC, vm.SP, vm.RP, vm.T = 0x1234, 0x1111, 0x2222, 0x3333
	vm.Core.Write(5, 0xBEEF)
	vm.Reset()
	assert.EqualValues(t, 0, vm.PC)
	assert.EqualValues(t, 0x2200, vm.SP)
	assert.EqualValues(t, 0x7FFF, vm.RP)
	assert.EqualValues(t, 0, vm.T)
	assert.EqualValues(t, 0xBEEF, vm.Core.Read(5))
}

func TestImageRoundTrip(t *testing.T) {
	vm, _ := newVM("")
	loadProgram(vm, lit(1), lit(2), add, halt)
	var buf bytes.Buffer
	require.NoError(t, vm.SaveImage(&buf))

	vm2, _ := newVM("")
	n := vm2.LoadImage(&buf)
	assert.Equal(t, 0x8000, n)
	assert.Equal(t, vm.Core, vm2.Core)
}

func TestUnconditionalBranchLoopsForever(t *testing.T) {
	vm, _ := newVM("")
	loadProgram(vm, 0x0000)
	for i := 0; i < 1000; i++ {
		require.NoError(t, vm.Step())
		assert.EqualValues(t, 0, vm.PC)
	}
}

func TestConditionalBranchAlwaysPopsStack(t *testing.T) {
	for _, top := range []uint16{0, 1, 42} {
		vm, _ := newVM("")
		// 0branch to self; seed stack with a sentinel below T.
		loadProgram(vm, 0x2000)
		vm.T = top
		vm.Core.Write(vm.SP, 0xABCD)
		spBefore := vm.SP
		vm.Step()
		assert.Equal(t, spBefore-1, vm.SP)
		assert.EqualValues(t, 0xABCD, vm.T)
	}
}

func TestALUExecutionOrderTtoNandNtoT(t *testing.T) {
	// alu op 0 (identity), with T->N (bit7) and N->T (bit5) both set:
	// inst = 0x6000 | (0<<8) | 0x80 | 0x20
	inst := uint16(0x6000 | 0x80 | 0x20)
	vm, _ := newVM("")
	loadProgram(vm, inst)
	vm.T = 0x1111
	vm.Core.Write(vm.SP, 0x2222) // N
	vm.Step()
	assert.EqualValues(t, 0x2222, vm.T, "new T must equal the old N")
	assert.EqualValues(t, 0x1111, vm.Core.Read(vm.SP), "core[new SP] must equal the old T")
}

func TestDivideByZeroTrap(t *testing.T) {
	inst := uint16(0x6000 | (25 << 8)) // u/mod, no flags
	vm, _ := newVM("")
	loadProgram(vm, inst)
	vm.T = 0
	vm.Core.Write(vm.SP, 99)
	vm.Step()
	assert.EqualValues(t, 1, vm.PC)
	assert.EqualValues(t, 10, vm.T)
}

func TestScenarioLit99Halt(t *testing.T) {
	for _, tracing := range []bool{false, true} {
		vm, _ := newVM("")
		var traceBuf bytes.Buffer
		if tracing {
			vm.Trace = trace.New(&traceBuf)
		}
		loadProgram(vm, lit(99), halt)
		assert.EqualValues(t, 99, runCapped(t, vm, 10))
		if tracing {
			assert.NotZero(t, traceBuf.Len(), "tracing-on run must produce trace output")
		} else {
			assert.Zero(t, traceBuf.Len(), "tracing-off run must produce no trace output")
		}
	}
}

func TestScenarioLit55DecHalt(t *testing.T) {
	vm, _ := newVM("")
	loadProgram(vm, lit(55), dec, halt)
	assert.EqualValues(t, 54, runCapped(t, vm, 10))
}

func TestScenarioAddition(t *testing.T) {
	vm, _ := newVM("")
	loadProgram(vm, lit(2), lit(2), add, halt)
	assert.EqualValues(t, 4, runCapped(t, vm, 10))
}

func TestScenarioLitZeroHalt(t *testing.T) {
	vm, _ := newVM("")
	loadProgram(vm, lit(0), halt)
	assert.EqualValues(t, 0, runCapped(t, vm, 10))
}

func TestScenarioDivmodTrapJumpsToCellOne(t *testing.T) {
	const divmod = 0x6000 | (25 << 8)
	vm, _ := newVM("")
	// The trap redirects PC to cell 1, so cell 1 holds HALT: cell 0: lit 10,
	// cell 1: halt, cell 2: lit 0 (not executed here), cell 3: divmod. After
	// lit 10 the test jumps PC to cell 3 and sets T to 0 by hand.
	vm.Core.Write(0, lit(10))
	vm.Core.Write(1, halt)
	vm.Core.Write(2, lit(0))
	vm.Core.Write(3, divmod)
	require.NoError(t, vm.Step()) // lit 10
	// jump PC to the divmod cell directly to exercise the trap in isolation
	vm.PC = 3
	vm.T = 0
	vm.Core.Write(vm.SP, 1) // N irrelevant to trap path
	err := vm.Step()
	assert.NoError(t, err)
	assert.EqualValues(t, 1, vm.PC)
	err = vm.Step() // cell 1: halt
	assert.ErrorIs(t, err, ErrHalted)
	assert.EqualValues(t, 10, vm.T)
}

func TestScenarioEmitByte(t *testing.T) {
	const emit = 0x6000 | (23 << 8) // tx!, no flags
	vm, out := newVM("")
	loadProgram(vm, lit(0x41), emit, halt)
	code := runCapped(t, vm, 10)
	assert.EqualValues(t, 0x41, code)
	assert.Equal(t, "A", out.String())
}

func TestGetcReturnsEOFSentinelAtEndOfStream(t *testing.T) {
	const getc = 0x6000 | (24 << 8)
	vm, _ := newVM("")
	loadProgram(vm, getc, halt)
	runCapped(t, vm, 10)
	assert.EqualValues(t, ioadapt.EOF, vm.T)
}

func TestGetcReadsSuppliedByte(t *testing.T) {
	const getc = 0x6000 | (24 << 8)
	vm, _ := newVM("X")
	loadProgram(vm, getc, halt)
	assert.EqualValues(t, 'X', runCapped(t, vm, 10))
}

func TestRunRespectsContextCancellation(t *testing.T) {
	vm, _ := newVM("")
	loadProgram(vm, 0x0000) // infinite unconditional branch to self
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code := vm.Run(ctx)
	assert.EqualValues(t, 0, code)
}

func TestMultiplyHigh16AndLowWriteback(t *testing.T) {
	const mul = 0x6000 | (6 << 8)
	vm, _ := newVM("")
	loadProgram(vm, mul)
	vm.T = 0x1000
	vm.Core.Write(vm.SP, 0x1000)
	vm.Step()
	want := uint32(0x1000) * uint32(0x1000)
	assert.EqualValues(t, uint16(want>>16), vm.T)
	assert.EqualValues(t, uint16(want), vm.Core.Read(vm.SP))
}

func TestLoadByteAddressConversion(t *testing.T) {
	const load = 0x6000 | (3 << 8) // [T]
	vm, _ := newVM("")
	loadProgram(vm, load)
	vm.Core.Write(10, 0xCAFE)
	vm.T = 20 // byte address 20 -> cell index 10
	vm.Step()
	assert.EqualValues(t, 0xCAFE, vm.T)
}

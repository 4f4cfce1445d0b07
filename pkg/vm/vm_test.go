package vm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/psilLang/svm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// prog builds a program from opcodes and Go literals: float64 is a Number,
// uint32 an Address.
func prog(items ...any) types.Program {
	p := make(types.Program, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case Opcode:
			p = append(p, types.Opcode(uint32(v)))
		case *types.Value:
			p = append(p, v)
		case float64:
			p = append(p, types.Number(v))
		case int:
			p = append(p, types.Number(float64(v)))
		case uint32:
			p = append(p, types.Address(v))
		case string:
			p = append(p, types.String(v))
		case bool:
			p = append(p, types.Boolean(v))
		default:
			panic(fmt.Sprintf("prog: unsupported item %T", it))
		}
	}
	return p
}

func newVM(t *testing.T, opts ...Option) *VM {
	t.Helper()
	return New(append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

// run loads and runs p, failing the test on error.
func run(t *testing.T, m *VM, p types.Program) *VM {
	t.Helper()
	m.LoadProgram(p)
	require.NoError(t, m.Run())
	return m
}

func popNumber(t *testing.T, m *VM) float64 {
	t.Helper()
	n, err := m.PopNumber()
	require.NoError(t, err)
	return n
}

func popBool(t *testing.T, m *VM) bool {
	t.Helper()
	b, err := m.PopBoolean()
	require.NoError(t, err)
	return b
}

func TestLoadProgram(t *testing.T) {
	m := newVM(t)
	m.Push(types.String("stale"))
	p := prog(PUSH, 500.0, HALT)
	m.LoadProgram(p)

	assert.Equal(t, uint32(len(p))+ReservedAllocation, m.Memory().Size())
	assert.Equal(t, ReservedAllocation, m.PRI())
	assert.Equal(t, m.Memory().Size(), m.MMX())
	assert.Equal(t, 0, m.Stack().Len())
	for i, want := range p {
		got, err := m.Memory().Get(ReservedAllocation + uint32(i))
		require.NoError(t, err)
		assert.Same(t, want, got)
	}

	require.NoError(t, m.Run())
	top, err := m.Peek()
	require.NoError(t, err)
	n, err := top.AsNumber()
	require.NoError(t, err)
	assert.Equal(t, 500.0, n)
	assert.False(t, m.Running())
}

func TestErrorHandling(t *testing.T) {
	m := newVM(t)

	m.LoadProgram(prog(POP))
	err := m.Run()
	assert.ErrorIs(t, err, ErrEmptyStack)

	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, POP, fault.Op)
	assert.Equal(t, ReservedAllocation, fault.PRI)

	// no HALT: PRI runs off the end of memory
	m.LoadProgram(prog(PUSH, 10.0))
	err = m.Run()
	assert.ErrorIs(t, err, ErrAddressOutOfBounds)
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, ReservedAllocation+2, fault.PRI)
}

func TestBadInstructionCell(t *testing.T) {
	m := newVM(t)

	m.LoadProgram(prog(uint32(9999)))
	assert.ErrorIs(t, m.Run(), ErrUnknownOpcode)

	m.LoadProgram(prog("not an opcode"))
	assert.ErrorIs(t, m.Run(), types.ErrTypeMismatch)

	// PUSH without its operand reads past memory
	m.LoadProgram(prog(PUSH))
	assert.ErrorIs(t, m.Run(), ErrAddressOutOfBounds)
}

func TestMemoryAccess(t *testing.T) {
	m := run(t, newVM(t), prog(
		PUSH, "Hello World!",
		PUSH, uint32(0),
		STLO,
		PUSH, uint32(0),
		LDLO,
		HALT,
	))

	local, err := m.Memory().Get(m.MMX())
	require.NoError(t, err)
	s, err := local.AsString()
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", s)

	top, err := m.PopString()
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", top)
}

func TestLoadLocalPastEnd(t *testing.T) {
	m := newVM(t)
	m.LoadProgram(prog(PUSH, uint32(3), LDLO, HALT))
	assert.ErrorIs(t, m.Run(), ErrAddressOutOfBounds)
}

func TestStoreLoad(t *testing.T) {
	m := run(t, newVM(t), prog(
		PUSH, 42.0,
		PUSH, uint32(0), // the reserved null cell is writable
		STORE,
		PUSH, uint32(0),
		LOAD,
		HALT,
	))
	assert.Equal(t, 42.0, popNumber(t, m))

	m.LoadProgram(prog(PUSH, 1.0, PUSH, uint32(100), STORE, HALT))
	assert.ErrorIs(t, m.Run(), ErrAddressOutOfBounds)
}

func TestNumberMath(t *testing.T) {
	m := run(t, newVM(t), prog(
		PUSH, 10.0, PUSH, 5.0, ADD,
		PUSH, 5.0, PUSH, 10.0, SUB,
		PUSH, 10.0, PUSH, 5.0, MUL,
		PUSH, 2.0, PUSH, 10.0, DIV,
		PUSH, 2.0, PUSH, 5.0, MOD,
		HALT,
	))

	for _, want := range []float64{1, 5, 50, 5, 15} {
		assert.InDelta(t, want, popNumber(t, m), 1e-9)
	}
}

func TestAddressMath(t *testing.T) {
	m := run(t, newVM(t), prog(
		PUSH, uint32(10), PUSH, uint32(5), AADD,
		PUSH, uint32(5), PUSH, uint32(10), ASUB,
		PUSH, uint32(10), PUSH, uint32(5), AMUL,
		PUSH, uint32(2), PUSH, uint32(10), ADIV,
		PUSH, uint32(2), PUSH, uint32(5), AMOD,
		HALT,
	))

	for _, want := range []uint32{1, 5, 50, 5, 15} {
		got, err := m.PopAddress()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMathTypeMismatch(t *testing.T) {
	m := newVM(t)
	m.LoadProgram(prog(PUSH, uint32(1), PUSH, 2.0, ADD, HALT))
	assert.ErrorIs(t, m.Run(), types.ErrTypeMismatch)
}

func TestDivisionByZero(t *testing.T) {
	tests := []struct {
		name string
		p    types.Program
	}{
		{"div", prog(PUSH, 0.0, PUSH, 1.0, DIV, HALT)},
		{"mod", prog(PUSH, 0.0, PUSH, 1.0, MOD, HALT)},
		{"adiv", prog(PUSH, uint32(0), PUSH, uint32(1), ADIV, HALT)},
		{"amod", prog(PUSH, uint32(0), PUSH, uint32(1), AMOD, HALT)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newVM(t)
			m.LoadProgram(tt.p)
			assert.ErrorIs(t, m.Run(), ErrDivisionByZero)
		})
	}
}

func TestBranching(t *testing.T) {
	m := run(t, newVM(t), prog(
		PUSH, ReservedAllocation+4,
		JUMP,
		HALT,
		PUSH, 100.0,
		HALT,
	))
	assert.Equal(t, 100.0, popNumber(t, m))

	m = run(t, newVM(t), prog(
		PUSH, false,
		PUSH, ReservedAllocation+15,
		JUMPF,
		PUSH, 100.0,
		PUSH, true,
		PUSH, ReservedAllocation+13,
		JUMPF,
		HALT,
		PUSH, 100.0,
		HALT,
	))
	require.Equal(t, 2, m.Stack().Len())
	assert.Equal(t, 100.0, popNumber(t, m))
	assert.Equal(t, 100.0, popNumber(t, m))
}

func TestRegisters(t *testing.T) {
	m := run(t, newVM(t), prog(PMMX, PPRI, HALT))

	pri, err := m.PopAddress()
	require.NoError(t, err)
	assert.Equal(t, ReservedAllocation+1, pri)

	mmx, err := m.PopAddress()
	require.NoError(t, err)
	assert.Equal(t, m.MMX(), mmx)

	// SPRI resumes one past the stored address
	m = run(t, newVM(t), prog(
		PUSH, ReservedAllocation+4,
		SPRI,
		HALT,
		HALT,
		PUSH, 1.0,
		HALT,
	))
	assert.Equal(t, 1.0, popNumber(t, m))

	m = run(t, newVM(t), prog(PUSH, uint32(77), SMMX, HALT))
	assert.Equal(t, uint32(77), m.MMX())
}

func TestDupAndRef(t *testing.T) {
	m := run(t, newVM(t), prog(PUSH, "payload", DUP, REF, HALT))
	require.Equal(t, 3, m.Stack().Len())

	vals := m.Stack().Values()
	assert.NotSame(t, vals[0], vals[1])
	assert.True(t, vals[0].StrictEqual(vals[1]))
	assert.Same(t, vals[1], vals[2])

	// the pushed literal aliases the program cell
	cell, err := m.Memory().Get(ReservedAllocation + 1)
	require.NoError(t, err)
	assert.Same(t, cell, vals[0])
}

func TestComparisons(t *testing.T) {
	m := run(t, newVM(t), prog(
		PUSH, 25.0, PUSH, 25.0, CMP,
		PUSH, 25.0, PUSH, 20.0, CMP,
		PUSH, "25", PUSH, 25.0, CMP,
		PUSH, "Hello", PUSH, "Hello", TCMP,
		PUSH, "25", PUSH, 25.0, TCMP,
		HALT,
	))

	assert.False(t, popBool(t, m))
	assert.True(t, popBool(t, m))
	assert.True(t, popBool(t, m))
	assert.False(t, popBool(t, m))
	assert.True(t, popBool(t, m))
}

func TestOrderedComparisonAndLogic(t *testing.T) {
	tests := []struct {
		name string
		p    types.Program
		want bool
	}{
		{"lt", prog(PUSH, 5.0, PUSH, 3.0, LT, HALT), true},
		{"gt", prog(PUSH, 5.0, PUSH, 3.0, GT, HALT), false},
		{"alt", prog(PUSH, uint32(1), PUSH, uint32(2), ALT, HALT), false},
		{"agt", prog(PUSH, uint32(1), PUSH, uint32(2), AGT, HALT), true},
		{"and", prog(PUSH, true, PUSH, false, AND, HALT), false},
		{"or", prog(PUSH, true, PUSH, false, OR, HALT), true},
		{"xor", prog(PUSH, true, PUSH, true, XOR, HALT), false},
		{"not", prog(PUSH, false, NOT, HALT), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := run(t, newVM(t), tt.p)
			assert.Equal(t, tt.want, popBool(t, m))
		})
	}
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name string
		p    types.Program
		want *types.Value
	}{
		{"tnum string", prog(PUSH, "25", TNUM, HALT), types.Number(25)},
		{"tnum address", prog(PUSH, uint32(7), TNUM, HALT), types.Number(7)},
		{"taddr number", prog(PUSH, 3.0, TADDR, HALT), types.Address(3)},
		{"tstr number", prog(PUSH, 2.5, TSTR, HALT), types.String("2.5")},
		{"tbool string", prog(PUSH, "", TBOOL, HALT), types.Boolean(false)},
		{"type", prog(PUSH, uint32(1), TYPE, HALT), types.String("address")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := run(t, newVM(t), tt.p)
			got, err := m.Pop()
			require.NoError(t, err)
			assert.True(t, tt.want.StrictEqual(got), "got %s want %s", got, tt.want)
		})
	}

	m := newVM(t)
	m.LoadProgram(prog(PUSH, -1.0, TADDR, HALT))
	assert.ErrorIs(t, m.Run(), types.ErrTypeMismatch)
}

func TestStringOperations(t *testing.T) {
	m := run(t, newVM(t), prog(PUSH, " world!", PUSH, "Hello", CONCAT, HALT))
	s, err := m.PopString()
	require.NoError(t, err)
	assert.Equal(t, "Hello world!", s)
}

func TestAllocDealloc(t *testing.T) {
	m := newVM(t)
	m.LoadProgram(prog(PUSH, uint32(3), ALLOC, REF, DEALLOC, HALT))
	size := m.Memory().Size()
	require.NoError(t, m.Run())

	base, err := m.PopAddress()
	require.NoError(t, err)
	assert.Equal(t, size, base)
	assert.Equal(t, size+3, m.Memory().Size())

	m.LoadProgram(prog(PUSH, uint32(2), DEALLOC, HALT))
	assert.ErrorIs(t, m.Run(), ErrInvalidFree)
}

func TestDeallocResetsRegion(t *testing.T) {
	// the base address is parked in the null cell at address 0
	body := []any{
		PUSH, uint32(1), ALLOC,
		PUSH, uint32(0), STORE,
		PUSH, "x", PUSH, uint32(0), LOAD, STORE,
	}

	m := run(t, newVM(t), prog(append(body, HALT)...))
	base := regionBase(t, m)
	cell, err := m.Memory().Get(base)
	require.NoError(t, err)
	assert.True(t, types.String("x").StrictEqual(cell))

	m = run(t, newVM(t), prog(append(body, PUSH, uint32(0), LOAD, DEALLOC, HALT)...))
	base = regionBase(t, m)
	cell, err = m.Memory().Get(base)
	require.NoError(t, err)
	assert.True(t, types.Null().StrictEqual(cell))
}

func regionBase(t *testing.T, m *VM) uint32 {
	t.Helper()
	v, err := m.Memory().Get(0)
	require.NoError(t, err)
	base, err := v.AsAddress()
	require.NoError(t, err)
	return base
}

func TestCallables(t *testing.T) {
	echo := func(m *VM) error {
		s, err := m.PopString()
		if err != nil {
			return err
		}
		m.Push(types.String("You said " + s + "!"))
		return nil
	}

	m := run(t, newVM(t, WithCallable("test", echo)), prog(
		PUSH, "hi", PUSH, "test", ECALL, HALT,
	))
	s, err := m.PopString()
	require.NoError(t, err)
	assert.Equal(t, "You said hi!", s)

	m = newVM(t)
	m.LoadProgram(prog(PUSH, "missing", ECALL, HALT))
	assert.ErrorIs(t, m.Run(), ErrUnregisteredCallable)

	boom := errors.New("boom")
	m = newVM(t)
	m.RegisterCallable("fail", func(*VM) error { return boom })
	m.RegisterCallable("alpha", echo)
	assert.Equal(t, []string{"alpha", "fail"}, m.Callables())
	m.LoadProgram(prog(PUSH, "fail", ECALL, HALT))
	assert.ErrorIs(t, m.Run(), boom)
}

func TestImportProgram(t *testing.T) {
	m := newVM(t)
	entry := prog(PUSH, ReservedAllocation+3, JUMP)
	m.LoadProgram(entry)
	before := m.MMX()

	lib := prog(PUSH, 7.0, HALT)
	base := m.ImportProgram(lib)
	assert.Equal(t, before, base)
	assert.Equal(t, m.Memory().Size(), m.MMX())
	assert.Equal(t, base+uint32(len(lib)), m.MMX())

	require.NoError(t, m.Run())
	assert.Equal(t, 7.0, popNumber(t, m))
}

func TestImportAfterDynamicGrowth(t *testing.T) {
	m := run(t, newVM(t), prog(PUSH, uint32(2), ALLOC, HALT))
	region, err := m.PopAddress()
	require.NoError(t, err)
	require.Equal(t, m.MMX(), region, "ALLOC starts at the end of the loaded code")

	lib := prog(PUSH, region, DEALLOC, PUSH, 7.0, HALT)
	assert.Equal(t, region+2, m.ImportBase())
	base := m.ImportProgram(lib)
	assert.Equal(t, region+2, base, "imported code goes after the live region")
	assert.Equal(t, base+uint32(len(lib)), m.MMX())

	m.SetPRI(base)
	require.NoError(t, m.Run())
	assert.Equal(t, 7.0, popNumber(t, m))
	assert.Empty(t, m.Allocations())

	// the freed region was nulled, the imported code was not
	for i, want := range lib {
		got, err := m.Memory().Get(base + uint32(i))
		require.NoError(t, err)
		assert.True(t, want.StrictEqual(got), "cell %d", i)
	}

	// a local stored past MMX is kept too
	m = run(t, newVM(t), prog(PUSH, "x", PUSH, uint32(3), STLO, HALT))
	local := m.MMX() + 3
	base = m.ImportProgram(prog(HALT))
	assert.Equal(t, local+1, base)
	cell, err := m.Memory().Get(local)
	require.NoError(t, err)
	assert.True(t, types.String("x").StrictEqual(cell))
}

func TestMemoryCeiling(t *testing.T) {
	huge := uint32(4_000_000_000)

	t.Run("STLO", func(t *testing.T) {
		m := newVM(t)
		m.LoadProgram(prog(PUSH, "x", PUSH, huge, STLO, HALT))
		size := m.Memory().Size()
		assert.ErrorIs(t, m.Run(), ErrAddressOutOfBounds)
		assert.Equal(t, size, m.Memory().Size())
	})

	t.Run("ALLOC", func(t *testing.T) {
		m := newVM(t)
		m.LoadProgram(prog(PUSH, huge, ALLOC, HALT))
		size := m.Memory().Size()
		assert.ErrorIs(t, m.Run(), ErrAddressOutOfBounds)
		assert.Equal(t, size, m.Memory().Size())
		assert.Empty(t, m.Allocations())
	})

	t.Run("WithMaxMemory", func(t *testing.T) {
		p := prog(PUSH, uint32(4), ALLOC, HALT)
		limit := uint32(len(p)) + ReservedAllocation + 4

		m := run(t, newVM(t, WithMaxMemory(limit)), p)
		assert.Equal(t, limit, m.Memory().Size())

		m = newVM(t, WithMaxMemory(limit-1))
		m.LoadProgram(p)
		assert.ErrorIs(t, m.Run(), ErrAddressOutOfBounds)

		m = newVM(t, WithMaxMemory(limit))
		m.LoadProgram(prog(PUSH, "x", PUSH, uint32(4), STLO, HALT))
		assert.ErrorIs(t, m.Run(), ErrAddressOutOfBounds, "local 4 needs MMX+5 cells")
	})
}

func TestDeallocRegionOutsideMemory(t *testing.T) {
	m := run(t, newVM(t), prog(PUSH, uint32(3), ALLOC, HALT))
	region, err := m.PopAddress()
	require.NoError(t, err)

	// shrink memory under the live region and put new code in place
	code := prog(PUSH, region, DEALLOC, HALT)
	m.Memory().Reset(region)
	for i, v := range code {
		require.NoError(t, m.Memory().Set(ReservedAllocation+uint32(i), v))
	}
	m.SetPRI(ReservedAllocation)

	assert.ErrorIs(t, m.Run(), ErrAddressOutOfBounds)
	assert.Empty(t, m.Allocations())
}

func TestResetAndTrackAllocation(t *testing.T) {
	m := run(t, newVM(t), prog(PUSH, uint32(2), ALLOC, PUSH, 1.0, HALT))
	require.Len(t, m.Allocations(), 1)

	m.Reset()
	assert.False(t, m.Running())
	assert.Equal(t, uint32(0), m.Memory().Size())
	assert.Equal(t, 0, m.Stack().Len())
	assert.Equal(t, uint32(0), m.PRI())
	assert.Equal(t, uint32(0), m.MMX())
	assert.Empty(t, m.Allocations())

	m.Memory().Resize(8)
	assert.ErrorIs(t, m.TrackAllocation(6, 3), ErrAddressOutOfBounds)
	require.NoError(t, m.TrackAllocation(6, 2))
	assert.Equal(t, map[uint32]uint32{6: 2}, m.Allocations())

	allocs := m.Allocations()
	allocs[1] = 1
	assert.Len(t, m.Allocations(), 1, "Allocations returns a copy")
}

func TestManualStepping(t *testing.T) {
	m := newVM(t)
	m.LoadProgram(prog(PUSH, 1.0, PUSH, 2.0, ADD, HALT))

	steps := 0
	for m.Running() {
		require.NoError(t, m.Step())
		steps++
	}
	assert.Equal(t, 4, steps)
	assert.Equal(t, 3.0, popNumber(t, m))
}

func TestWithInitialMemory(t *testing.T) {
	m := New(WithInitialMemory(8))
	assert.Equal(t, uint32(8), m.Memory().Size())
}

package stdlib

import (
	"bytes"
	"testing"

	"github.com/psilLang/svm/pkg/asm"
	"github.com/psilLang/svm/pkg/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func runWithNatives(t *testing.T, src string) (*vm.VM, string) {
	t.Helper()
	p, err := asm.Assemble("", src)
	require.NoError(t, err)

	var out bytes.Buffer
	m := vm.New(vm.WithLogger(zaptest.NewLogger(t)))
	Register(m, &out)
	m.LoadProgram(p)
	require.NoError(t, m.Run())
	return m, out.String()
}

func TestRegister(t *testing.T) {
	m := vm.New(vm.WithLogger(zaptest.NewLogger(t)))
	Register(m, &bytes.Buffer{})
	assert.Equal(t, []string{"depth", "floor", "print", "println", "strlen", "swap", "tostr"}, m.Callables())
}

func TestPrint(t *testing.T) {
	_, out := runWithNatives(t, `
PUSH "n="
PUSH "print"
ECALL
PUSH 42
PUSH "println"
ECALL
PUSH 7u
PUSH "println"
ECALL
HALT
`)
	assert.Equal(t, "n=42\n7\n", out)
}

func TestStrings(t *testing.T) {
	m, _ := runWithNatives(t, `
PUSH "héllo"
PUSH "strlen"
ECALL
PUSH "tostr"
ECALL
HALT
`)
	s, err := m.PopString()
	require.NoError(t, err)
	assert.Equal(t, "5", s)
}

func TestStackNatives(t *testing.T) {
	m, _ := runWithNatives(t, `
PUSH 10
PUSH 3
PUSH "swap"
ECALL
SUB          ; top (10) minus 3
PUSH "depth"
ECALL
HALT
`)
	depth, err := m.PopNumber()
	require.NoError(t, err)
	assert.Equal(t, 1.0, depth)
	n, err := m.PopNumber()
	require.NoError(t, err)
	assert.Equal(t, 7.0, n)
}

func TestFloor(t *testing.T) {
	m, _ := runWithNatives(t, "PUSH -2.5\nPUSH \"floor\"\nECALL\nHALT")
	n, err := m.PopNumber()
	require.NoError(t, err)
	assert.Equal(t, -3.0, n)
}

func TestNativeErrors(t *testing.T) {
	p, err := asm.Assemble("", "PUSH 1\nPUSH \"strlen\"\nECALL\nHALT")
	require.NoError(t, err)

	m := vm.New(vm.WithLogger(zaptest.NewLogger(t)))
	Register(m, &bytes.Buffer{})
	m.LoadProgram(p)

	err = m.Run()
	var fault *vm.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, vm.ECALL, fault.Op)
}

package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcodeNames(t *testing.T) {
	for _, op := range Opcodes() {
		info, err := op.Info()
		require.NoError(t, err)
		require.NotEmpty(t, info.Name, "opcode %d has no table entry", uint32(op))

		got, err := LookupOpcode(info.Name)
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
}

func TestLookupOpcode(t *testing.T) {
	tests := []struct {
		name    string
		want    Opcode
		wantErr bool
	}{
		{name: "PUSH", want: PUSH},
		{name: "push", want: PUSH},
		{name: "Halt", want: HALT},
		{name: "ecall", want: ECALL},
		{name: "GOTO", wantErr: true},
		{name: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LookupOpcode(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOperation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpcodeInfo(t *testing.T) {
	info, err := PUSH.Info()
	require.NoError(t, err)
	assert.Equal(t, 1, info.Operands)

	_, err = Opcode(1 << 20).Info()
	assert.ErrorIs(t, err, ErrUnknownOpcode)
	assert.Equal(t, "OP(1048576)", Opcode(1<<20).String())
	assert.Equal(t, "CONCAT", CONCAT.String())
}

// Containers store these codes; changing one requires a new version.Number.
func TestOpcodeNumbering(t *testing.T) {
	pinned := map[Opcode]uint32{
		NOOP:    0,
		PUSH:    1,
		PMMX:    5,
		ALLOC:   9,
		STLO:    13,
		TBOOL:   15,
		ADD:     20,
		AADD:    25,
		AND:     30,
		NOT:     33,
		LT:      34,
		CONCAT:  38,
		JUMP:    39,
		JUMPF:   40,
		CMP:     41,
		TCMP:    42,
		ECALL:   43,
		HALT:    44,
		opCount: 45,
	}
	for op, code := range pinned {
		assert.Equal(t, code, uint32(op), "%s", op)
	}
}

package asm

import (
	"fmt"
	"strings"

	"github.com/psilLang/svm/pkg/types"
	"github.com/psilLang/svm/pkg/vm"
)

// Disassemble renders p as assembly, one instruction per line, prefixed by
// the absolute address of each instruction when the program sits at base.
// Jump targets are printed as address literals since labels are not kept.
func Disassemble(p types.Program, base uint32) string {
	var sb strings.Builder

	for i := 0; i < len(p); i++ {
		sb.WriteString(fmt.Sprintf("%04X: ", base+uint32(i)))
		cell := p[i]

		code, err := cell.AsAddress()
		op := vm.Opcode(code)
		if err != nil || !op.Valid() {
			sb.WriteString(".data " + cell.String())
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString(op.String())

		info, _ := op.Info()
		for n := 0; n < info.Operands; n++ {
			if i+1 >= len(p) {
				sb.WriteString(" ?? (truncated)")
				break
			}
			i++
			sb.WriteString(" " + literal(p[i]))
		}
		if cell.Debug != nil && cell.Debug.Comment != "" {
			sb.WriteString(" # " + cell.Debug.Comment)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func literal(v *types.Value) string {
	if v.Debug == nil {
		return v.String()
	}
	return v.WithDebug(nil).String()
}

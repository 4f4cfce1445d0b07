// Package asm is the assembler: it lexes mnemonic source, parses it into
// label and operation nodes and compiles them in two passes into a flat
// program.
package asm

import (
	"fmt"

	"github.com/psilLang/svm/pkg/types"
	"github.com/psilLang/svm/pkg/vm"
)

// CompileInfo carries state across the two compile passes.
type CompileInfo struct {
	// Base is the absolute address of the first emitted cell.
	Base uint32
	// Debug keeps debug metadata on emitted values.
	Debug bool

	Labels  map[string]uint32
	Program types.Program

	addr uint32
}

// Option adjusts a CompileInfo.
type Option func(*CompileInfo)

// WithBase compiles for code placed at base, e.g. the MMX of a VM that
// will import it.
func WithBase(base uint32) Option {
	return func(c *CompileInfo) { c.Base = base }
}

// WithDebug attaches source positions and # comments to emitted cells.
func WithDebug(debug bool) Option {
	return func(c *CompileInfo) { c.Debug = debug }
}

// NewCompileInfo starts a compile at vm.ReservedAllocation.
func NewCompileInfo(opts ...Option) *CompileInfo {
	c := &CompileInfo{
		Base:   vm.ReservedAllocation,
		Labels: make(map[string]uint32),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile resolves label addresses over every node, then emits the program.
// Labels may be referenced before they are defined.
func Compile(nodes []Node, opts ...Option) (types.Program, error) {
	c := NewCompileInfo(opts...)

	c.addr = c.Base
	for _, n := range nodes {
		if err := n.prepass(c); err != nil {
			return nil, err
		}
	}

	c.Program = make(types.Program, 0, c.addr-c.Base)
	for _, n := range nodes {
		if err := n.compile(c); err != nil {
			return nil, err
		}
	}
	return c.Program, nil
}

// Assemble lexes, parses and compiles src.
func Assemble(filename, src string, opts ...Option) (types.Program, error) {
	tokens, err := Lex(filename, src)
	if err != nil {
		return nil, err
	}
	nodes, err := Parse(tokens)
	if err != nil {
		return nil, err
	}
	return Compile(nodes, opts...)
}

func (l *Label) prepass(c *CompileInfo) error {
	if prev, ok := c.Labels[l.Name]; ok {
		return &ParseError{
			Token: l.Token,
			Msg:   fmt.Sprintf("label %q already defined at address %d", l.Name, prev),
			Err:   ErrDuplicateLabel,
		}
	}
	c.Labels[l.Name] = c.addr
	return nil
}

func (l *Label) compile(*CompileInfo) error { return nil }

func (o *Operation) prepass(c *CompileInfo) error {
	c.addr += o.Size()
	return nil
}

func (o *Operation) compile(c *CompileInfo) error {
	op := types.Opcode(uint32(o.Op))
	if c.Debug {
		d := debugAt(o.Token)
		if o.Debug != nil {
			d.Comment = o.Debug.Comment
		}
		op = op.WithDebug(d)
	}
	c.Program = append(c.Program, op)

	for _, arg := range o.Operands {
		v := arg.Value
		if arg.Label != "" {
			addr, ok := c.Labels[arg.Label]
			if !ok {
				return &ParseError{
					Token: arg.Token,
					Msg:   fmt.Sprintf("undefined label %q", arg.Label),
					Err:   ErrUndefinedLabel,
				}
			}
			v = types.Address(addr)
		}
		if c.Debug {
			v = v.WithDebug(debugAt(arg.Token))
		}
		c.Program = append(c.Program, v)
	}
	return nil
}

func debugAt(t Token) *types.DebugInfo {
	return &types.DebugInfo{Line: t.Pos.Line, Column: t.Pos.Column}
}

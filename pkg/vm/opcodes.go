package vm

import (
	"fmt"
	"strings"
)

// Opcode is an instruction code. Opcodes live in memory as Address cells.
type Opcode uint32

// The numeric values are written into compiled containers; append new
// opcodes before opCount and bump version.Number.
const (
	NOOP Opcode = iota // no operation

	// stack
	PUSH // [lit] -- lit
	POP  // a --
	DUP  // a -- a a' (value copy)
	REF  // a -- a a (reference copy)

	// registers
	PMMX // -- mmx
	PPRI // -- pri
	SMMX // addr --
	SPRI // addr --

	// heap
	ALLOC   // n -- base
	DEALLOC // base --
	STORE   // v addr --
	LOAD    // addr -- v
	STLO    // v off --
	LDLO    // off -- v

	// conversion
	TBOOL // a -- bool(a)
	TNUM  // a -- num(a)
	TADDR // a -- addr(a)
	TSTR  // a -- str(a)
	TYPE  // a -- kind name

	// number math, result is top OP second
	ADD
	SUB
	MUL
	DIV
	MOD

	// address math
	AADD
	ASUB
	AMUL
	ADIV
	AMOD

	// logic
	AND
	OR
	XOR
	NOT

	// ordered comparison
	LT
	GT
	ALT
	AGT

	// strings
	CONCAT // b a -- a+b

	// branches
	JUMP  // addr --
	JUMPF // cond addr --

	// equality
	CMP  // coerced
	TCMP // strict

	ECALL // name -- (callable decides)

	HALT

	opCount
)

// OpInfo describes one entry of the opcode table.
type OpInfo struct {
	Name string
	// Operands is the number of inline cells following the opcode.
	Operands int
}

var opTable = [opCount]OpInfo{
	NOOP:    {"NOOP", 0},
	PUSH:    {"PUSH", 1},
	POP:     {"POP", 0},
	DUP:     {"DUP", 0},
	REF:     {"REF", 0},
	PMMX:    {"PMMX", 0},
	PPRI:    {"PPRI", 0},
	SMMX:    {"SMMX", 0},
	SPRI:    {"SPRI", 0},
	ALLOC:   {"ALLOC", 0},
	DEALLOC: {"DEALLOC", 0},
	STORE:   {"STORE", 0},
	LOAD:    {"LOAD", 0},
	STLO:    {"STLO", 0},
	LDLO:    {"LDLO", 0},
	TBOOL:   {"TBOOL", 0},
	TNUM:    {"TNUM", 0},
	TADDR:   {"TADDR", 0},
	TSTR:    {"TSTR", 0},
	TYPE:    {"TYPE", 0},
	ADD:     {"ADD", 0},
	SUB:     {"SUB", 0},
	MUL:     {"MUL", 0},
	DIV:     {"DIV", 0},
	MOD:     {"MOD", 0},
	AADD:    {"AADD", 0},
	ASUB:    {"ASUB", 0},
	AMUL:    {"AMUL", 0},
	ADIV:    {"ADIV", 0},
	AMOD:    {"AMOD", 0},
	AND:     {"AND", 0},
	OR:      {"OR", 0},
	XOR:     {"XOR", 0},
	NOT:     {"NOT", 0},
	LT:      {"LT", 0},
	GT:      {"GT", 0},
	ALT:     {"ALT", 0},
	AGT:     {"AGT", 0},
	CONCAT:  {"CONCAT", 0},
	JUMP:    {"JUMP", 0},
	JUMPF:   {"JUMPF", 0},
	CMP:     {"CMP", 0},
	TCMP:    {"TCMP", 0},
	ECALL:   {"ECALL", 0},
	HALT:    {"HALT", 0},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opCount)
	for op, info := range opTable {
		m[info.Name] = Opcode(op)
	}
	return m
}()

// Valid reports whether op is part of the opcode table.
func (op Opcode) Valid() bool { return op < opCount }

// Info returns the table entry for op.
func (op Opcode) Info() (OpInfo, error) {
	if !op.Valid() {
		return OpInfo{}, fmt.Errorf("%w: %d", ErrUnknownOpcode, uint32(op))
	}
	return opTable[op], nil
}

func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("OP(%d)", uint32(op))
	}
	return opTable[op].Name
}

// LookupOpcode resolves a mnemonic, ignoring case.
func LookupOpcode(name string) (Opcode, error) {
	op, ok := opByName[strings.ToUpper(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOperation, name)
	}
	return op, nil
}

// Opcodes returns every opcode in numeric order.
func Opcodes() []Opcode {
	ops := make([]Opcode, opCount)
	for i := range ops {
		ops[i] = Opcode(i)
	}
	return ops
}

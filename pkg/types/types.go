// Package types defines the tagged value cells shared by the assembler,
// the container codec and the virtual machine.
package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrTypeMismatch is returned when a Value accessor is used against the wrong kind.
var ErrTypeMismatch = errors.New("type mismatch")

// Kind is the native type tag of a Value. The numeric values are part of the
// container format and must not change.
type Kind byte

const (
	KindInvalid Kind = iota
	KindNumber
	KindAddress
	KindString
	KindBoolean
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindAddress:
		return "address"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// DebugInfo is optional source metadata carried by a Value.
type DebugInfo struct {
	Comment string
	Line    int
	Column  int
}

func (d *DebugInfo) String() string {
	if d == nil {
		return ""
	}
	if d.Line == 0 {
		return d.Comment
	}
	if d.Comment == "" {
		return fmt.Sprintf("%d:%d", d.Line, d.Column)
	}
	return fmt.Sprintf("%d:%d %s", d.Line, d.Column, d.Comment)
}

// Value is one memory or stack cell. Values are never mutated after
// construction, so the same *Value may be referenced from several places.
type Value struct {
	kind Kind
	num  float64
	addr uint32
	str  string
	b    bool

	Debug *DebugInfo
}

// Program is a flat compiled instruction stream: opcode cells followed by
// their inline operands.
type Program []*Value

// Number, Address, String and Boolean construct Values of each kind.
func Number(n float64) *Value { return &Value{kind: KindNumber, num: n} }
func Address(a uint32) *Value { return &Value{kind: KindAddress, addr: a} }
func String(s string) *Value { return &Value{kind: KindString, str: s} }
func Boolean(b bool) *Value { return &Value{kind: KindBoolean, b: b} }

// Opcode builds an instruction cell. Opcodes are stored as Addresses.
func Opcode(code uint32) *Value { return Address(code) }

// Null is the value of freshly allocated memory: the null address.
func Null() *Value { return Address(0) }

// Kind returns the native type tag.
func (v *Value) Kind() Kind { return v.kind }

// Copy returns a new Value with the same payload and debug info.
func (v *Value) Copy() *Value {
	c := *v
	return &c
}

// WithDebug returns a copy of v carrying d.
func (v *Value) WithDebug(d *DebugInfo) *Value {
	c := v.Copy()
	c.Debug = d
	return c
}

func (v *Value) mismatch(want Kind) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, want, v.kind)
}

// AsNumber returns the payload of a Number. The As accessors fail with
// ErrTypeMismatch when the kind differs; they never convert.
func (v *Value) AsNumber() (float64, error) {
	if v.kind != KindNumber {
		return 0, v.mismatch(KindNumber)
	}
	return v.num, nil
}

// AsAddress returns the payload of an Address.
func (v *Value) AsAddress() (uint32, error) {
	if v.kind != KindAddress {
		return 0, v.mismatch(KindAddress)
	}
	return v.addr, nil
}

// AsString returns the payload of a String.
func (v *Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.str, nil
}

// AsBoolean returns the payload of a Boolean.
func (v *Value) AsBoolean() (bool, error) {
	if v.kind != KindBoolean {
		return false, v.mismatch(KindBoolean)
	}
	return v.b, nil
}

// Text renders the payload without quoting. It is the coercion to string.
func (v *Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindAddress:
		return strconv.FormatUint(uint64(v.addr), 10)
	case KindString:
		return v.str
	case KindBoolean:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// String renders the value for diagnostics: strings are quoted and
// addresses carry the assembler's "u" suffix.
func (v *Value) String() string {
	var s string
	switch v.kind {
	case KindString:
		s = strconv.Quote(v.str)
	case KindAddress:
		s = v.Text() + "u"
	case KindInvalid:
		s = "<invalid>"
	default:
		s = v.Text()
	}
	if v.Debug != nil && v.Debug.Comment != "" {
		s += " # " + v.Debug.Comment
	}
	return s
}

// ToNumber coerces v to a number. Strings must parse as a float.
func (v *Value) ToNumber() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindAddress:
		return float64(v.addr), nil
	case KindBoolean:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrTypeMismatch, v.str)
		}
		return n, nil
	}
	return 0, v.mismatch(KindNumber)
}

// ToAddress coerces v to an address. Negative, fractional or oversized
// numbers are rejected.
func (v *Value) ToAddress() (uint32, error) {
	if v.kind == KindAddress {
		return v.addr, nil
	}
	n, err := v.ToNumber()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxUint32 || n != math.Trunc(n) {
		return 0, fmt.Errorf("%w: %s is not an address", ErrTypeMismatch, v.Text())
	}
	return uint32(n), nil
}

// ToBoolean coerces v: zero, the null address, "" and "false" are false.
func (v *Value) ToBoolean() bool {
	switch v.kind {
	case KindNumber:
		return v.num != 0
	case KindAddress:
		return v.addr != 0
	case KindString:
		return v.str != "" && v.str != "false"
	case KindBoolean:
		return v.b
	}
	return false
}

// StrictEqual reports whether both values share kind and payload.
func (v *Value) StrictEqual(o *Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindAddress:
		return v.addr == o.addr
	case KindString:
		return v.str == o.str
	case KindBoolean:
		return v.b == o.b
	}
	return false
}

// Equal compares with coercion: values of differing kinds are compared as
// numbers when both coerce, otherwise as text.
func (v *Value) Equal(o *Value) bool {
	if v.kind == o.kind {
		return v.StrictEqual(o)
	}
	if v.kind == KindBoolean || o.kind == KindBoolean {
		return v.ToBoolean() == o.ToBoolean()
	}
	a, errA := v.ToNumber()
	b, errB := o.ToNumber()
	if errA == nil && errB == nil {
		return a == b
	}
	return v.Text() == o.Text()
}

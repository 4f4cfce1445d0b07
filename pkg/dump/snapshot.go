package dump

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/psilLang/svm/pkg/types"
	"github.com/psilLang/svm/pkg/version"
	"github.com/psilLang/svm/pkg/vm"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dump: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the serializable state of a VM, including the live ALLOC
// regions so they can still be freed after Restore.
type Snapshot struct {
	Release string `cbor:"1,keyasint"`
	Format  uint32 `cbor:"2,keyasint"`
	PRI     uint32 `cbor:"3,keyasint"`
	MMX     uint32 `cbor:"4,keyasint"`
	Stack   []Cell `cbor:"5,keyasint"`
	Memory  []Cell `cbor:"6,keyasint"`
	// base -> length
	Allocations map[uint32]uint32 `cbor:"7,keyasint,omitempty"`
}

// Cell is one Value. Only the field matching Kind is meaningful.
type Cell struct {
	Kind    types.Kind `cbor:"1,keyasint"`
	Number  float64    `cbor:"2,keyasint,omitempty"`
	Address uint32     `cbor:"3,keyasint,omitempty"`
	String  string     `cbor:"4,keyasint,omitempty"`
	Boolean bool       `cbor:"5,keyasint,omitempty"`
	Debug   *DebugCell `cbor:"6,keyasint,omitempty"`
}

// DebugCell is the debug metadata of a Cell.
type DebugCell struct {
	Comment string `cbor:"1,keyasint,omitempty"`
	Line    int    `cbor:"2,keyasint,omitempty"`
	Column  int    `cbor:"3,keyasint,omitempty"`
}

func cellOf(v *types.Value) Cell {
	c := Cell{Kind: v.Kind()}
	switch v.Kind() {
	case types.KindNumber:
		c.Number, _ = v.AsNumber()
	case types.KindAddress:
		c.Address, _ = v.AsAddress()
	case types.KindString:
		c.String, _ = v.AsString()
	case types.KindBoolean:
		c.Boolean, _ = v.AsBoolean()
	}
	if d := v.Debug; d != nil {
		c.Debug = &DebugCell{Comment: d.Comment, Line: d.Line, Column: d.Column}
	}
	return c
}

// Value converts c back to a Value.
func (c Cell) Value() (*types.Value, error) {
	var v *types.Value
	switch c.Kind {
	case types.KindNumber:
		v = types.Number(c.Number)
	case types.KindAddress:
		v = types.Address(c.Address)
	case types.KindString:
		v = types.String(c.String)
	case types.KindBoolean:
		v = types.Boolean(c.Boolean)
	default:
		return nil, fmt.Errorf("dump: invalid cell kind %d", c.Kind)
	}
	if c.Debug != nil {
		v.Debug = &types.DebugInfo{Comment: c.Debug.Comment, Line: c.Debug.Line, Column: c.Debug.Column}
	}
	return v, nil
}

func cells(vs []*types.Value) []Cell {
	out := make([]Cell, len(vs))
	for i, v := range vs {
		out[i] = cellOf(v)
	}
	return out
}

// Take captures the registers, stack and memory of m.
func Take(m *vm.VM) *Snapshot {
	return &Snapshot{
		Release: version.String,
		Format:  version.Number,
		PRI:     m.PRI(),
		MMX:     m.MMX(),
		Stack:   cells(m.Stack().Values()),
		Memory:  cells(m.Memory().Slots()),

		Allocations: m.Allocations(),
	}
}

// Restore replaces the state of m with s, dropping anything m allocated
// before. The VM is left halted; call Run to resume at PRI.
func Restore(m *vm.VM, s *Snapshot) error {
	mem := make([]*types.Value, len(s.Memory))
	for i, c := range s.Memory {
		v, err := c.Value()
		if err != nil {
			return fmt.Errorf("memory cell %d: %w", i, err)
		}
		mem[i] = v
	}
	stack := make([]*types.Value, len(s.Stack))
	for i, c := range s.Stack {
		v, err := c.Value()
		if err != nil {
			return fmt.Errorf("stack entry %d: %w", i, err)
		}
		stack[i] = v
	}

	for base, n := range s.Allocations {
		if uint64(base)+uint64(n) > uint64(len(mem)) {
			return fmt.Errorf("dump: region %d+%d outside %d memory cells", base, n, len(mem))
		}
	}

	m.Reset()
	m.Memory().Resize(uint32(len(mem)))
	for i, v := range mem {
		if err := m.Memory().Set(uint32(i), v); err != nil {
			return err
		}
	}
	for _, v := range stack {
		m.Push(v)
	}
	for base, n := range s.Allocations {
		if err := m.TrackAllocation(base, n); err != nil {
			return err
		}
	}
	m.SetPRI(s.PRI)
	m.SetMMX(s.MMX)
	return nil
}

// Marshal encodes s as canonical CBOR.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal decodes a snapshot and checks it was written by a compatible
// format version.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("dump: unmarshal snapshot: %w", err)
	}
	if s.Format != version.Number {
		return nil, fmt.Errorf("dump: snapshot format %d, expected %d", s.Format, version.Number)
	}
	return &s, nil
}

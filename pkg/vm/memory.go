package vm

import (
	"fmt"

	"github.com/psilLang/svm/pkg/types"
)

// Memory is the linearly addressed heap. It only grows; a program load
// resets it.
type Memory struct {
	slots []*types.Value
}

// NewMemory creates a memory of size null cells.
func NewMemory(size uint32) *Memory {
	m := &Memory{}
	m.Resize(size)
	return m
}

// Resize grows the memory to size cells. Smaller sizes are ignored.
func (m *Memory) Resize(size uint32) {
	for uint32(len(m.slots)) < size {
		m.slots = append(m.slots, types.Null())
	}
}

// Reset discards every cell and resizes to size.
func (m *Memory) Reset(size uint32) {
	m.slots = m.slots[:0]
	m.Resize(size)
}

// Size is the number of cells.
func (m *Memory) Size() uint32 { return uint32(len(m.slots)) }

// Get returns the cell at addr. Addresses at or past Size fail with
// ErrAddressOutOfBounds, as does Set.
func (m *Memory) Get(addr uint32) (*types.Value, error) {
	if addr >= m.Size() {
		return nil, fmt.Errorf("%w: read %d, size %d", ErrAddressOutOfBounds, addr, m.Size())
	}
	return m.slots[addr], nil
}

// Set replaces the cell at addr.
func (m *Memory) Set(addr uint32, v *types.Value) error {
	if addr >= m.Size() {
		return fmt.Errorf("%w: write %d, size %d", ErrAddressOutOfBounds, addr, m.Size())
	}
	m.slots[addr] = v
	return nil
}

// Slots exposes the cells for renderers. Callers must not modify it.
func (m *Memory) Slots() []*types.Value { return m.slots }

package vm

import (
	"fmt"

	"github.com/psilLang/svm/pkg/types"
)

// Stack holds value handles. Entries may alias memory cells.
type Stack struct {
	data []*types.Value
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{data: make([]*types.Value, 0, 64)}
}

// Push puts v on top.
func (s *Stack) Push(v *types.Value) {
	s.data = append(s.data, v)
}

// Pop removes and returns the top entry, or fails with ErrEmptyStack.
func (s *Stack) Pop() (*types.Value, error) {
	if len(s.data) == 0 {
		return nil, fmt.Errorf("%w: pop", ErrEmptyStack)
	}
	v := s.data[len(s.data)-1]
	s.data[len(s.data)-1] = nil
	s.data = s.data[:len(s.data)-1]
	return v, nil
}

// Peek returns the top entry without removing it.
func (s *Stack) Peek() (*types.Value, error) {
	if len(s.data) == 0 {
		return nil, fmt.Errorf("%w: peek", ErrEmptyStack)
	}
	return s.data[len(s.data)-1], nil
}

func (s *Stack) Len() int { return len(s.data) }

// Clear drops every entry.
func (s *Stack) Clear() {
	clear(s.data)
	s.data = s.data[:0]
}

// Values returns the entries bottom to top. Callers must not modify it.
func (s *Stack) Values() []*types.Value { return s.data }

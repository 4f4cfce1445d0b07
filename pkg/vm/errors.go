package vm

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyStack           = errors.New("empty stack")
	ErrAddressOutOfBounds   = errors.New("address out of bounds")
	ErrUnknownOpcode        = errors.New("unknown opcode")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrUnregisteredCallable = errors.New("unregistered callable")
	ErrDivisionByZero       = errors.New("division by zero")
	ErrInvalidFree          = errors.New("invalid deallocation")
)

// Fault wraps an error raised while executing the instruction at PRI.
type Fault struct {
	PRI uint32
	Op  Opcode
	Err error
}

func (f *Fault) Error() string {
	if !f.Op.Valid() {
		return fmt.Sprintf("fault at %d: %v", f.PRI, f.Err)
	}
	return fmt.Sprintf("fault at %d (%s): %v", f.PRI, f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

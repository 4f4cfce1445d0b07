package vm

import (
	"fmt"
	"math"

	"github.com/psilLang/svm/pkg/types"
)

// handlers is the dispatch table. Binary operators pop a (top) then b and
// compute a OP b.
var handlers = [opCount]func(vm *VM) error{
	NOOP: func(*VM) error { return nil },

	PUSH: (*VM).execPush,
	POP: func(vm *VM) error {
		_, err := vm.stack.Pop()
		return err
	},
	DUP: func(vm *VM) error {
		v, err := vm.stack.Peek()
		if err != nil {
			return err
		}
		vm.stack.Push(v.Copy())
		return nil
	},
	REF: func(vm *VM) error {
		v, err := vm.stack.Peek()
		if err != nil {
			return err
		}
		vm.stack.Push(v)
		return nil
	},

	PMMX: func(vm *VM) error {
		vm.stack.Push(types.Address(vm.mmx))
		return nil
	},
	PPRI: func(vm *VM) error {
		vm.stack.Push(types.Address(vm.pri))
		return nil
	},
	SMMX: func(vm *VM) error {
		a, err := vm.PopAddress()
		if err != nil {
			return err
		}
		vm.mmx = a
		return nil
	},
	// a raw register store: the usual increment still follows
	SPRI: func(vm *VM) error {
		a, err := vm.PopAddress()
		if err != nil {
			return err
		}
		vm.pri = a
		return nil
	},

	ALLOC:   (*VM).execAlloc,
	DEALLOC: (*VM).execDealloc,
	STORE: func(vm *VM) error {
		addr, v, err := vm.popAddressValue()
		if err != nil {
			return err
		}
		return vm.memory.Set(addr, v)
	},
	LOAD: func(vm *VM) error {
		addr, err := vm.PopAddress()
		if err != nil {
			return err
		}
		return vm.pushCell(addr)
	},
	STLO: (*VM).execStoreLocal,
	LDLO: func(vm *VM) error {
		off, err := vm.PopAddress()
		if err != nil {
			return err
		}
		addr, err := vm.local(off)
		if err != nil {
			return err
		}
		return vm.pushCell(addr)
	},

	TBOOL: convert(func(v *types.Value) (*types.Value, error) {
		return types.Boolean(v.ToBoolean()), nil
	}),
	TNUM: convert(func(v *types.Value) (*types.Value, error) {
		n, err := v.ToNumber()
		return types.Number(n), err
	}),
	TADDR: convert(func(v *types.Value) (*types.Value, error) {
		a, err := v.ToAddress()
		return types.Address(a), err
	}),
	TSTR: convert(func(v *types.Value) (*types.Value, error) {
		return types.String(v.Text()), nil
	}),
	TYPE: convert(func(v *types.Value) (*types.Value, error) {
		return types.String(v.Kind().String()), nil
	}),

	ADD: numberOp(func(a, b float64) (float64, error) { return a + b, nil }),
	SUB: numberOp(func(a, b float64) (float64, error) { return a - b, nil }),
	MUL: numberOp(func(a, b float64) (float64, error) { return a * b, nil }),
	DIV: numberOp(func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	}),
	MOD: numberOp(func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return math.Mod(a, b), nil
	}),

	AADD: addressOp(func(a, b uint32) (uint32, error) { return a + b, nil }),
	ASUB: addressOp(func(a, b uint32) (uint32, error) { return a - b, nil }),
	AMUL: addressOp(func(a, b uint32) (uint32, error) { return a * b, nil }),
	ADIV: addressOp(func(a, b uint32) (uint32, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	}),
	AMOD: addressOp(func(a, b uint32) (uint32, error) {
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a % b, nil
	}),

	AND: booleanOp(func(a, b bool) bool { return a && b }),
	OR:  booleanOp(func(a, b bool) bool { return a || b }),
	XOR: booleanOp(func(a, b bool) bool { return a != b }),
	NOT: func(vm *VM) error {
		a, err := vm.PopBoolean()
		if err != nil {
			return err
		}
		vm.stack.Push(types.Boolean(!a))
		return nil
	},

	LT:  numberCompare(func(a, b float64) bool { return a < b }),
	GT:  numberCompare(func(a, b float64) bool { return a > b }),
	ALT: addressCompare(func(a, b uint32) bool { return a < b }),
	AGT: addressCompare(func(a, b uint32) bool { return a > b }),

	CONCAT: func(vm *VM) error {
		a, err := vm.PopString()
		if err != nil {
			return err
		}
		b, err := vm.PopString()
		if err != nil {
			return err
		}
		vm.stack.Push(types.String(a + b))
		return nil
	},

	JUMP: func(vm *VM) error {
		addr, err := vm.PopAddress()
		if err != nil {
			return err
		}
		vm.jump(addr)
		return nil
	},
	JUMPF: func(vm *VM) error {
		addr, err := vm.PopAddress()
		if err != nil {
			return err
		}
		cond, err := vm.PopBoolean()
		if err != nil {
			return err
		}
		if cond {
			vm.jump(addr)
		}
		return nil
	},

	CMP:  equality((*types.Value).Equal),
	TCMP: equality((*types.Value).StrictEqual),

	ECALL: (*VM).execCall,

	HALT: func(vm *VM) error {
		vm.running = false
		return nil
	},
}

// execPush pushes the inline literal following the opcode and skips it.
func (vm *VM) execPush() error {
	v, err := vm.memory.Get(vm.pri + 1)
	if err != nil {
		return err
	}
	vm.pri++
	vm.stack.Push(v)
	return nil
}

func (vm *VM) execAlloc() error {
	n, err := vm.PopAddress()
	if err != nil {
		return err
	}
	base := vm.memory.Size()
	if err := vm.grow(uint64(base) + uint64(n)); err != nil {
		return fmt.Errorf("alloc %d cells at %d: %w", n, base, err)
	}
	vm.allocs[base] = n
	vm.stack.Push(types.Address(base))
	return nil
}

func (vm *VM) execDealloc() error {
	base, err := vm.PopAddress()
	if err != nil {
		return err
	}
	n, ok := vm.allocs[base]
	if !ok {
		return fmt.Errorf("%w: %d is not an allocated region", ErrInvalidFree, base)
	}
	delete(vm.allocs, base)
	if uint64(base)+uint64(n) > uint64(vm.memory.Size()) {
		return fmt.Errorf("%w: region %d+%d, size %d", ErrAddressOutOfBounds, base, n, vm.memory.Size())
	}
	for i := base; i < base+n; i++ {
		if err := vm.memory.Set(i, types.Null()); err != nil {
			return err
		}
	}
	return nil
}

// execStoreLocal writes into the local frame, growing memory to cover the slot.
func (vm *VM) execStoreLocal() error {
	off, v, err := vm.popAddressValue()
	if err != nil {
		return err
	}
	addr, err := vm.local(off)
	if err != nil {
		return err
	}
	if err := vm.grow(uint64(addr) + 1); err != nil {
		return err
	}
	return vm.memory.Set(addr, v)
}

func (vm *VM) execCall() error {
	name, err := vm.PopString()
	if err != nil {
		return err
	}
	fn, ok := vm.callables[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnregisteredCallable, name)
	}
	return fn(vm)
}

func (vm *VM) local(off uint32) (uint32, error) {
	addr := uint64(vm.mmx) + uint64(off)
	if addr >= math.MaxUint32 {
		return 0, fmt.Errorf("%w: local %d past mmx %d", ErrAddressOutOfBounds, off, vm.mmx)
	}
	return uint32(addr), nil
}

func (vm *VM) pushCell(addr uint32) error {
	v, err := vm.memory.Get(addr)
	if err != nil {
		return err
	}
	vm.stack.Push(v)
	return nil
}

// popAddressValue pops the target address and then the value to write.
func (vm *VM) popAddressValue() (uint32, *types.Value, error) {
	addr, err := vm.PopAddress()
	if err != nil {
		return 0, nil, err
	}
	v, err := vm.stack.Pop()
	if err != nil {
		return 0, nil, err
	}
	return addr, v, nil
}

func convert(fn func(*types.Value) (*types.Value, error)) func(*VM) error {
	return func(vm *VM) error {
		v, err := vm.stack.Pop()
		if err != nil {
			return err
		}
		r, err := fn(v)
		if err != nil {
			return err
		}
		vm.stack.Push(r)
		return nil
	}
}

func numberOp(fn func(a, b float64) (float64, error)) func(*VM) error {
	return func(vm *VM) error {
		a, err := vm.PopNumber()
		if err != nil {
			return err
		}
		b, err := vm.PopNumber()
		if err != nil {
			return err
		}
		r, err := fn(a, b)
		if err != nil {
			return err
		}
		vm.stack.Push(types.Number(r))
		return nil
	}
}

func addressOp(fn func(a, b uint32) (uint32, error)) func(*VM) error {
	return func(vm *VM) error {
		a, err := vm.PopAddress()
		if err != nil {
			return err
		}
		b, err := vm.PopAddress()
		if err != nil {
			return err
		}
		r, err := fn(a, b)
		if err != nil {
			return err
		}
		vm.stack.Push(types.Address(r))
		return nil
	}
}

func booleanOp(fn func(a, b bool) bool) func(*VM) error {
	return func(vm *VM) error {
		a, err := vm.PopBoolean()
		if err != nil {
			return err
		}
		b, err := vm.PopBoolean()
		if err != nil {
			return err
		}
		vm.stack.Push(types.Boolean(fn(a, b)))
		return nil
	}
}

func numberCompare(fn func(a, b float64) bool) func(*VM) error {
	return func(vm *VM) error {
		a, err := vm.PopNumber()
		if err != nil {
			return err
		}
		b, err := vm.PopNumber()
		if err != nil {
			return err
		}
		vm.stack.Push(types.Boolean(fn(a, b)))
		return nil
	}
}

func addressCompare(fn func(a, b uint32) bool) func(*VM) error {
	return func(vm *VM) error {
		a, err := vm.PopAddress()
		if err != nil {
			return err
		}
		b, err := vm.PopAddress()
		if err != nil {
			return err
		}
		vm.stack.Push(types.Boolean(fn(a, b)))
		return nil
	}
}

func equality(fn func(a, b *types.Value) bool) func(*VM) error {
	return func(vm *VM) error {
		a, err := vm.stack.Pop()
		if err != nil {
			return err
		}
		b, err := vm.stack.Pop()
		if err != nil {
			return err
		}
		vm.stack.Push(types.Boolean(fn(a, b)))
		return nil
	}
}

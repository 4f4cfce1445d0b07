// Package vm implements the stack virtual machine and its
// fetch-decode-execute loop.
package vm

import (
	"fmt"
	"sort"

	"github.com/psilLang/svm/pkg/types"
	"go.uber.org/zap"
)

// ReservedAllocation is the number of low addresses never occupied by code.
// Address 0 is the null address.
const ReservedAllocation uint32 = 1

// DefaultMaxMemory is the memory ceiling, in cells, unless WithMaxMemory
// sets another.
const DefaultMaxMemory uint32 = 1 << 24

// Callable is a host function invoked by ECALL. It pops its own arguments
// and pushes its own results. It must not call Run on the same VM.
type Callable func(vm *VM) error

// VM is a single-threaded virtual machine. After a fault PRI still points
// at the failing instruction.
type VM struct {
	memory *Memory
	stack  *Stack

	// program index: address of the next instruction
	pri uint32
	// boundary between loaded code and the dynamic region, base of locals
	mmx uint32

	running  bool
	branched bool

	callables map[string]Callable
	// live ALLOC regions, base -> length
	allocs map[uint32]uint32
	// STLO and ALLOC fault rather than grow memory past this many cells
	maxMemory uint32

	logger *zap.Logger
}

// Option configures a VM created by New.
type Option func(*VM) *VM

// WithLogger sets the logger. The VM logs under the "vm" name.
func WithLogger(l *zap.Logger) Option {
	return func(vm *VM) *VM {
		vm.logger = l
		return vm
	}
}

// WithInitialMemory sizes the memory before any program is loaded.
func WithInitialMemory(size uint32) Option {
	return func(vm *VM) *VM {
		vm.memory = NewMemory(size)
		return vm
	}
}

// WithMaxMemory bounds how far STLO and ALLOC may grow memory.
func WithMaxMemory(cells uint32) Option {
	return func(vm *VM) *VM {
		vm.maxMemory = cells
		return vm
	}
}

// WithCallable registers fn under name, see RegisterCallable.
func WithCallable(name string, fn Callable) Option {
	return func(vm *VM) *VM {
		vm.RegisterCallable(name, fn)
		return vm
	}
}

// New creates a halted VM with empty memory.
func New(opts ...Option) *VM {
	vm := &VM{
		memory:    NewMemory(0),
		stack:     NewStack(),
		callables: make(map[string]Callable),
		allocs:    make(map[uint32]uint32),
		maxMemory: DefaultMaxMemory,
		logger:    zap.L(),
	}
	for _, opt := range opts {
		vm = opt(vm)
	}
	vm.logger = vm.logger.Named("vm")
	return vm
}

// Accessors for the machine state. Memory and Stack are live, not copies.
func (vm *VM) Memory() *Memory { return vm.memory }
func (vm *VM) Stack() *Stack   { return vm.stack }
func (vm *VM) PRI() uint32     { return vm.pri }
func (vm *VM) MMX() uint32     { return vm.mmx }
func (vm *VM) Running() bool   { return vm.running }

// SetPRI and SetMMX store a register directly.
func (vm *VM) SetPRI(addr uint32) { vm.pri = addr }
func (vm *VM) SetMMX(addr uint32) { vm.mmx = addr }

// Halt stops Run after the current instruction.
func (vm *VM) Halt() { vm.running = false }

// Resume marks the VM running so a Step loop continues at PRI.
func (vm *VM) Resume() { vm.running = true }

// Reset halts the VM and empties memory, stack, registers and the
// allocation table. Callables stay registered.
func (vm *VM) Reset() {
	vm.running = false
	vm.memory.Reset(0)
	vm.stack.Clear()
	clear(vm.allocs)
	vm.pri = 0
	vm.mmx = 0
}

// Allocations returns a copy of the live ALLOC regions, base -> length.
func (vm *VM) Allocations() map[uint32]uint32 {
	out := make(map[uint32]uint32, len(vm.allocs))
	for base, n := range vm.allocs {
		out[base] = n
	}
	return out
}

// TrackAllocation records [base, base+n) as a live region that DEALLOC
// accepts. The region must lie inside memory.
func (vm *VM) TrackAllocation(base, n uint32) error {
	if uint64(base)+uint64(n) > uint64(vm.memory.Size()) {
		return fmt.Errorf("%w: region %d+%d, size %d", ErrAddressOutOfBounds, base, n, vm.memory.Size())
	}
	vm.allocs[base] = n
	return nil
}

// LoadProgram resets memory and stack and places p at ReservedAllocation.
// MMX is set to the first cell past the code.
func (vm *VM) LoadProgram(p types.Program) {
	size := uint32(len(p)) + ReservedAllocation
	vm.memory.Reset(size)
	copy(vm.memory.slots[ReservedAllocation:], p)

	vm.mmx = size
	vm.pri = ReservedAllocation
	vm.stack.Clear()
	clear(vm.allocs)
	vm.running = true

	vm.logger.Info("program loaded",
		zap.Int("cells", len(p)),
		zap.Uint32("mmx", vm.mmx),
	)
}

// ImportBase is where the next ImportProgram places code: the current MMX,
// or the end of memory when locals or ALLOC regions already reach past it.
func (vm *VM) ImportBase() uint32 { return max(vm.mmx, vm.memory.Size()) }

// ImportProgram links p into the running VM at ImportBase and moves MMX
// past it. Loaded code, live regions and the stack are untouched. It
// returns the base address of the imported code.
func (vm *VM) ImportProgram(p types.Program) uint32 {
	base := vm.ImportBase()
	vm.memory.Resize(base + uint32(len(p)))
	copy(vm.memory.slots[base:], p)
	vm.mmx = vm.memory.Size()

	vm.logger.Info("program imported",
		zap.Int("cells", len(p)),
		zap.Uint32("base", base),
		zap.Uint32("mmx", vm.mmx),
	)
	return base
}

// Run executes until HALT or the first error.
func (vm *VM) Run() error {
	vm.running = true
	for vm.running {
		if err := vm.Step(); err != nil {
			vm.running = false
			return err
		}
	}
	return nil
}

// Step executes the instruction at PRI.
func (vm *VM) Step() error {
	pri := vm.pri
	cell, err := vm.memory.Get(pri)
	if err != nil {
		return &Fault{PRI: pri, Op: opCount, Err: err}
	}
	code, err := cell.AsAddress()
	if err != nil {
		return &Fault{PRI: pri, Op: opCount, Err: err}
	}
	op := Opcode(code)
	if !op.Valid() {
		return &Fault{PRI: pri, Op: op, Err: fmt.Errorf("%w: %d", ErrUnknownOpcode, code)}
	}

	if ce := vm.logger.Check(zap.DebugLevel, "step"); ce != nil {
		ce.Write(
			zap.Uint32("pri", pri),
			zap.Stringer("op", op),
			zap.Int("stack", vm.stack.Len()),
		)
	}

	vm.branched = false
	if err := handlers[op](vm); err != nil {
		return &Fault{PRI: pri, Op: op, Err: err}
	}
	if !vm.branched {
		vm.pri++
	}
	return nil
}

// grow extends memory to size cells, refusing to pass the memory ceiling.
func (vm *VM) grow(size uint64) error {
	if size > uint64(vm.maxMemory) {
		return fmt.Errorf("%w: %d cells exceeds limit of %d", ErrAddressOutOfBounds, size, vm.maxMemory)
	}
	vm.memory.Resize(uint32(size))
	return nil
}

// jump resumes execution exactly at addr.
func (vm *VM) jump(addr uint32) {
	vm.pri = addr
	vm.branched = true
}

// RegisterCallable makes fn reachable from ECALL under name, replacing any
// previous registration.
func (vm *VM) RegisterCallable(name string, fn Callable) {
	vm.callables[name] = fn
}

// Callables returns the registered names in sorted order.
func (vm *VM) Callables() []string {
	names := make([]string, 0, len(vm.callables))
	for name := range vm.callables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Push, Pop and Peek operate on the stack; callables use them for
// arguments and results.
func (vm *VM) Push(v *types.Value)         { vm.stack.Push(v) }
func (vm *VM) Pop() (*types.Value, error)  { return vm.stack.Pop() }
func (vm *VM) Peek() (*types.Value, error) { return vm.stack.Peek() }

// PopNumber pops the top value and reads it as a Number. The typed pops
// fail with the Value's type mismatch error and leave the value popped.
func (vm *VM) PopNumber() (float64, error) {
	v, err := vm.stack.Pop()
	if err != nil {
		return 0, err
	}
	return v.AsNumber()
}

// PopAddress pops an Address.
func (vm *VM) PopAddress() (uint32, error) {
	v, err := vm.stack.Pop()
	if err != nil {
		return 0, err
	}
	return v.AsAddress()
}

// PopString pops a String.
func (vm *VM) PopString() (string, error) {
	v, err := vm.stack.Pop()
	if err != nil {
		return "", err
	}
	return v.AsString()
}

// PopBoolean pops a Boolean.
func (vm *VM) PopBoolean() (bool, error) {
	v, err := vm.stack.Pop()
	if err != nil {
		return false, err
	}
	return v.AsBoolean()
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/psilLang/svm/pkg/vm"
)

// ErrStepLimit is returned by execute once maxSteps instructions ran.
var ErrStepLimit = errors.New("step limit reached")

// execute steps m until it halts, faults, exceeds maxSteps (0 = no limit)
// or ctx is cancelled. It returns the number of instructions executed.
func execute(ctx context.Context, m *vm.VM, maxSteps uint64) (uint64, error) {
	var steps uint64
	for m.Running() {
		if steps&0xff == 0 {
			if err := ctx.Err(); err != nil {
				m.Halt()
				return steps, fmt.Errorf("interrupted at pri %d: %w", m.PRI(), err)
			}
		}
		if maxSteps > 0 && steps >= maxSteps {
			m.Halt()
			return steps, fmt.Errorf("%w: %d instructions, pri %d", ErrStepLimit, steps, m.PRI())
		}
		if err := m.Step(); err != nil {
			m.Halt()
			return steps, err
		}
		steps++
	}
	return steps, nil
}

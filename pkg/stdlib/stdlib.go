// Package stdlib provides the native callables programs reach through
// ECALL.
package stdlib

import (
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/psilLang/svm/pkg/types"
	"github.com/psilLang/svm/pkg/vm"
)

// Register installs the natives on m. Output natives write to out.
func Register(m *vm.VM, out io.Writer) {
	for name, fn := range Natives(out) {
		m.RegisterCallable(name, fn)
	}
}

// Natives returns the callables by name, for use with vm.WithCallable.
func Natives(out io.Writer) map[string]vm.Callable {
	return map[string]vm.Callable{
		// I/O
		"print":   printer(out, ""),
		"println": printer(out, "\n"),

		// Strings
		"strlen": nativeStrlen,
		"tostr":  nativeToStr,

		// Stack
		"swap":  nativeSwap,
		"depth": nativeDepth,

		"floor": nativeFloor,
	}
}

func printer(out io.Writer, suffix string) vm.Callable {
	return func(m *vm.VM) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, v.Text(), suffix)
		return err
	}
}

// strlen counts runes, not bytes.
func nativeStrlen(m *vm.VM) error {
	s, err := m.PopString()
	if err != nil {
		return err
	}
	m.Push(types.Number(float64(utf8.RuneCountInString(s))))
	return nil
}

func nativeToStr(m *vm.VM) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	m.Push(types.String(v.Text()))
	return nil
}

func nativeSwap(m *vm.VM) error {
	a, err := m.Pop()
	if err != nil {
		return err
	}
	b, err := m.Pop()
	if err != nil {
		return err
	}
	m.Push(a)
	m.Push(b)
	return nil
}

func nativeDepth(m *vm.VM) error {
	m.Push(types.Number(float64(m.Stack().Len())))
	return nil
}

func nativeFloor(m *vm.VM) error {
	n, err := m.PopNumber()
	if err != nil {
		return err
	}
	m.Push(types.Number(math.Floor(n)))
	return nil
}

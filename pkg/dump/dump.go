// Package dump renders VM state for post-mortem inspection, either as a
// readable report or as a CBOR snapshot that can be restored into a VM.
package dump

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/psilLang/svm/pkg/version"
	"github.com/psilLang/svm/pkg/vm"
)

// Dumper writes text reports.
type Dumper struct {
	// Now stamps the report. Defaults to time.Now.
	Now func() time.Time
	// Color highlights register markers, regardless of color.NoColor.
	Color bool
}

func (d *Dumper) header(w io.Writer, m *vm.VM) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	fmt.Fprintf(w, "svm version %s-%d\n", version.String, version.Number)
	fmt.Fprintf(w, "dump time - %s\n", now().Format(time.DateTime))
	fmt.Fprintln(w, "----------")
	fmt.Fprintln(w, "Registers:")
	fmt.Fprintf(w, "  PRI = %d\n", m.PRI())
	fmt.Fprintf(w, "  MMX = %d\n", m.MMX())
	fmt.Fprintln(w, "----------")
}

// Stack writes the stack from bottom to top.
func (d *Dumper) Stack(w io.Writer, m *vm.VM) {
	d.header(w, m)
	fmt.Fprintln(w, "Stack:")
	for _, v := range m.Stack().Values() {
		fmt.Fprintf(w, "> %s\n", v)
	}
	fmt.Fprintln(w, "----------")
	fmt.Fprintln(w, "- end of stack dump")
}

// Heap writes every memory cell, marking the cells PRI and MMX point at.
func (d *Dumper) Heap(w io.Writer, m *vm.VM) {
	marker := color.New(color.FgYellow, color.Bold)
	if d.Color {
		marker.EnableColor()
	} else {
		marker.DisableColor()
	}

	d.header(w, m)
	fmt.Fprintln(w, "Heap:")
	for i, v := range m.Memory().Slots() {
		addr := uint32(i)
		fmt.Fprintf(w, "[%d] %s", addr, v)
		if addr == m.PRI() {
			fmt.Fprint(w, " "+marker.Sprint("!PRI!"))
		}
		if addr == m.MMX() {
			fmt.Fprint(w, " "+marker.Sprint("!MMX!"))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "- end of heap dump")
}

// All writes the stack report followed by the heap report.
func (d *Dumper) All(w io.Writer, m *vm.VM) {
	d.Stack(w, m)
	d.Heap(w, m)
}

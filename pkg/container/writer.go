// Package container reads and writes compiled programs.
//
// A container is a 5-byte magic, a uint32 format version, a debug flag
// byte and a uint32 record count, followed by one tagged record per cell.
// All integers are little-endian. When the debug flag is set every record
// is followed by a debug block.
package container

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/psilLang/svm/pkg/asm"
	"github.com/psilLang/svm/pkg/types"
	"github.com/psilLang/svm/pkg/version"
)

// Record tags.
const (
	TagNumber  byte = 1
	TagAddress byte = 2
	TagString  byte = 3
	TagBoolean byte = 4
)

func tagOf(k types.Kind) (byte, error) {
	switch k {
	case types.KindNumber:
		return TagNumber, nil
	case types.KindAddress:
		return TagAddress, nil
	case types.KindString:
		return TagString, nil
	case types.KindBoolean:
		return TagBoolean, nil
	}
	return 0, fmt.Errorf("%w: cannot encode %s", ErrUnknownTag, k)
}

// Writer serializes programs. Debug selects whether debug blocks are
// written.
type Writer struct {
	w     *bufio.Writer
	debug bool
	buf   []byte
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer, debug bool) *Writer {
	return &Writer{w: bufio.NewWriter(w), debug: debug}
}

// WriteNodes compiles parsed assembly and writes the result. The debug
// setting of the writer is passed on to the compiler.
func (w *Writer) WriteNodes(nodes []asm.Node, opts ...asm.Option) error {
	opts = append(opts, asm.WithDebug(w.debug))
	p, err := asm.Compile(nodes, opts...)
	if err != nil {
		return err
	}
	return w.Write(p)
}

// Write emits a complete container for p.
func (w *Writer) Write(p types.Program) error {
	if uint64(len(p)) > math.MaxUint32 {
		return fmt.Errorf("program too large: %d cells", len(p))
	}

	w.buf = append(w.buf[:0], version.Magic...)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, version.Number)
	w.buf = append(w.buf, flag(w.debug))
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(p)))
	if _, err := w.w.Write(w.buf); err != nil {
		return err
	}

	for i, v := range p {
		if err := w.writeValue(v); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return w.w.Flush()
}

func (w *Writer) writeValue(v *types.Value) error {
	tag, err := tagOf(v.Kind())
	if err != nil {
		return err
	}
	w.buf = append(w.buf[:0], tag)

	switch tag {
	case TagNumber:
		n, _ := v.AsNumber()
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(n))
	case TagAddress:
		a, _ := v.AsAddress()
		w.buf = binary.LittleEndian.AppendUint32(w.buf, a)
	case TagString:
		s, _ := v.AsString()
		w.buf = appendString(w.buf, s)
	case TagBoolean:
		b, _ := v.AsBoolean()
		w.buf = append(w.buf, flag(b))
	}

	if w.debug {
		w.buf = appendDebug(w.buf, v.Debug)
	}
	_, err = w.w.Write(w.buf)
	return err
}

func appendDebug(b []byte, d *types.DebugInfo) []byte {
	if d == nil {
		return append(b, 0)
	}
	b = append(b, 1)
	b = appendString(b, d.Comment)
	b = binary.LittleEndian.AppendUint32(b, uint32(d.Line))
	return binary.LittleEndian.AppendUint32(b, uint32(d.Column))
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Encode returns the container bytes for p.
func Encode(p types.Program, debug bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewWriter(&buf, debug).Write(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

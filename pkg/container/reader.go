package container

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/psilLang/svm/pkg/types"
	"github.com/psilLang/svm/pkg/version"
)

var (
	ErrHeaderMismatch  = errors.New("not a program container")
	ErrVersionMismatch = errors.New("container version mismatch")
	ErrUnknownTag      = errors.New("unknown record tag")
	ErrTruncated       = errors.New("truncated container")
)

// maxPrealloc caps the capacity reserved from an untrusted record count.
const maxPrealloc = 1 << 16

// File is a decoded container.
type File struct {
	Version uint32
	Debug   bool
	Program types.Program
}

// Reader decodes one container from a byte stream.
type Reader struct {
	r   *bufio.Reader
	buf [8]byte
}

// NewReader buffers r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read decodes a whole container. The magic and version must match this
// build exactly.
func (r *Reader) Read() (*File, error) {
	magic := make([]byte, len(version.Magic))
	if err := r.readFull(magic); err != nil {
		if errors.Is(err, ErrTruncated) {
			return nil, fmt.Errorf("%w: short header", ErrHeaderMismatch)
		}
		return nil, err
	}
	if string(magic) != version.Magic {
		return nil, fmt.Errorf("%w: got magic %q", ErrHeaderMismatch, magic)
	}

	ver, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if ver != version.Number {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, version.Number, ver)
	}

	debug, err := r.readByte()
	if err != nil {
		return nil, err
	}
	count, err := r.readUint32()
	if err != nil {
		return nil, err
	}

	f := &File{
		Version: ver,
		Debug:   debug != 0,
		Program: make(types.Program, 0, min(count, maxPrealloc)),
	}
	for i := uint32(0); i < count; i++ {
		v, err := r.readValue(f.Debug)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		f.Program = append(f.Program, v)
	}
	return f, nil
}

func (r *Reader) readValue(debug bool) (*types.Value, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}

	var v *types.Value
	switch tag {
	case TagNumber:
		if err := r.readFull(r.buf[:8]); err != nil {
			return nil, err
		}
		v = types.Number(math.Float64frombits(binary.LittleEndian.Uint64(r.buf[:8])))
	case TagAddress:
		a, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		v = types.Address(a)
	case TagString:
		s, err := r.readString()
		if err != nil {
			return nil, err
		}
		v = types.String(s)
	case TagBoolean:
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		v = types.Boolean(b != 0)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}

	if debug {
		if v.Debug, err = r.readDebug(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (r *Reader) readDebug() (*types.DebugInfo, error) {
	present, err := r.readByte()
	if err != nil || present == 0 {
		return nil, err
	}
	comment, err := r.readString()
	if err != nil {
		return nil, err
	}
	line, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	col, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	return &types.DebugInfo{Comment: comment, Line: int(line), Column: int(col)}, nil
}

func (r *Reader) readString() (string, error) {
	n, err := r.readUint32()
	if err != nil {
		return "", err
	}
	// n is untrusted; let the buffer grow as bytes arrive.
	var sb bytes.Buffer
	if _, err := io.CopyN(&sb, r.r, int64(n)); err != nil {
		return "", truncated(err)
	}
	return sb.String(), nil
}

func (r *Reader) readUint32() (uint32, error) {
	if err := r.readFull(r.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[:4]), nil
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, truncated(err)
	}
	return b, nil
}

func (r *Reader) readFull(b []byte) error {
	if _, err := io.ReadFull(r.r, b); err != nil {
		return truncated(err)
	}
	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

// Decode parses container bytes.
func Decode(b []byte) (*File, error) {
	return NewReader(bytes.NewReader(b)).Read()
}

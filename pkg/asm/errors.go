package asm

import (
	"errors"
	"fmt"
)

var (
	ErrUndefinedLabel = errors.New("undefined label")
	ErrDuplicateLabel = errors.New("duplicate label")
)

// ParseError reports a malformed program at the offending token.
type ParseError struct {
	Token Token
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s (at %s)", e.Token.Pos, e.Msg, e.Token)
}

func (e *ParseError) Unwrap() error { return e.Err }

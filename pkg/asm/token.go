package asm

import "fmt"

// TokenType classifies assembler tokens.
type TokenType int

const (
	EndToken TokenType = iota
	NewlineToken
	IdentToken
	LabelToken // the ':' after a label name
	NumberToken
	AddressToken
	StringToken
	BooleanToken
	LabelRefToken // @name, resolved to an address at compile time
	DebugToken    // '# comment' attached to the current operation
)

var tokenNames = [...]string{
	EndToken:      "end of input",
	NewlineToken:  "newline",
	IdentToken:    "identifier",
	LabelToken:    "label marker",
	NumberToken:   "number",
	AddressToken:  "address",
	StringToken:   "string",
	BooleanToken:  "boolean",
	LabelRefToken: "label reference",
	DebugToken:    "debug string",
}

func (t TokenType) String() string {
	if t < 0 || int(t) >= len(tokenNames) {
		return fmt.Sprintf("token(%d)", int(t))
	}
	return tokenNames[t]
}

// Pos is a source position. Line and Column are 1-based.
type Pos struct {
	Filename string
	Line     int
	Column   int
}

func (p Pos) String() string {
	if p.Filename == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// Token is one lexeme. Value holds the decoded payload: string literals are
// unquoted, address literals lose their suffix, label references their '@'.
type Token struct {
	Type  TokenType
	Value string
	Pos   Pos
}

func (t Token) String() string {
	switch t.Type {
	case EndToken, NewlineToken:
		return t.Type.String()
	}
	return fmt.Sprintf("%s %q", t.Type, t.Value)
}

package asm

import (
	"errors"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// asmLexer is the token definition for assembly source. Rules are tried in
// order, so Address must precede Number and Bool must precede Ident.
var asmLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Newline", Pattern: `\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "Debug", Pattern: `#[^;\n]*`},

	{Name: "String", Pattern: `"(\\.|[^"\\\n])*"`},
	{Name: "Address", Pattern: `(0[xX][0-9a-fA-F]+|[0-9]+)[uU]`},
	{Name: "Number", Pattern: `[-+]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][-+]?[0-9]+)?`},
	{Name: "Bool", Pattern: `(true|false)\b`},

	{Name: "LabelRef", Pattern: `@[a-zA-Z_][a-zA-Z0-9_.]*`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.]*`},
	{Name: "Colon", Pattern: `:`},
})

// tokenTypes maps lexer symbols to assembler tokens. Symbols absent from
// the map (whitespace, comments) are dropped.
var tokenTypes = func() map[lexer.TokenType]TokenType {
	syms := asmLexer.Symbols()
	return map[lexer.TokenType]TokenType{
		syms["Newline"]:  NewlineToken,
		syms["Debug"]:    DebugToken,
		syms["String"]:   StringToken,
		syms["Address"]:  AddressToken,
		syms["Number"]:   NumberToken,
		syms["Bool"]:     BooleanToken,
		syms["LabelRef"]: LabelRefToken,
		syms["Ident"]:    IdentToken,
		syms["Colon"]:    LabelToken,
	}
}()

// Lex splits src into assembler tokens. The result always ends with an
// EndToken.
func Lex(filename, src string) ([]Token, error) {
	lex, err := asmLexer.LexString(filename, src)
	if err != nil {
		return nil, err
	}

	var tokens []Token
	for {
		t, err := lex.Next()
		if err != nil {
			var lerr *lexer.Error
			if errors.As(err, &lerr) {
				return nil, &ParseError{
					Token: Token{Type: EndToken, Pos: position(lerr.Pos)},
					Msg:   lerr.Msg,
					Err:   err,
				}
			}
			return nil, err
		}
		if t.EOF() {
			return append(tokens, Token{Type: EndToken, Pos: position(t.Pos)}), nil
		}

		typ, ok := tokenTypes[t.Type]
		if !ok {
			continue
		}
		tok := Token{Type: typ, Value: t.Value, Pos: position(t.Pos)}

		switch typ {
		case StringToken:
			s, err := strconv.Unquote(t.Value)
			if err != nil {
				return nil, &ParseError{Token: tok, Msg: "malformed string literal", Err: err}
			}
			tok.Value = s
		case AddressToken:
			tok.Value = t.Value[:len(t.Value)-1]
		case LabelRefToken:
			tok.Value = t.Value[1:]
		case DebugToken:
			tok.Value = strings.TrimSpace(t.Value[1:])
		}
		tokens = append(tokens, tok)
	}
}

func position(p lexer.Position) Pos {
	return Pos{Filename: p.Filename, Line: p.Line, Column: p.Column}
}

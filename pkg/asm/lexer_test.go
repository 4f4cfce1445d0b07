package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLex(t *testing.T) {
	tokens, err := Lex("t.svm", `start: PUSH 0x1Fu @start "a\"b" true -2.5 # note ; comment`)
	require.NoError(t, err)

	want := []struct {
		typ   TokenType
		value string
	}{
		{IdentToken, "start"},
		{LabelToken, ":"},
		{IdentToken, "PUSH"},
		{AddressToken, "0x1F"},
		{LabelRefToken, "start"},
		{StringToken, `a"b`},
		{BooleanToken, "true"},
		{NumberToken, "-2.5"},
		{DebugToken, "note"},
		{EndToken, ""},
	}
	require.Len(t, tokens, len(want))
	for i, w := range want {
		assert.Equal(t, w.typ, tokens[i].Type, "token %d", i)
		assert.Equal(t, w.value, tokens[i].Value, "token %d", i)
	}
}

func TestLexPositions(t *testing.T) {
	tokens, err := Lex("t.svm", "PUSH 5\n  HALT")
	require.NoError(t, err)
	require.Len(t, tokens, 5)

	assert.Equal(t, Pos{Filename: "t.svm", Line: 1, Column: 1}, tokens[0].Pos)
	assert.Equal(t, Pos{Filename: "t.svm", Line: 1, Column: 6}, tokens[1].Pos)
	assert.Equal(t, NewlineToken, tokens[2].Type)
	assert.Equal(t, Pos{Filename: "t.svm", Line: 2, Column: 3}, tokens[3].Pos)
	assert.Equal(t, "t.svm:2:3", tokens[3].Pos.String())
}

func TestLexIdentifiersStartingWithBooleans(t *testing.T) {
	tokens, err := Lex("", "trueish false")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, IdentToken, tokens[0].Type)
	assert.Equal(t, BooleanToken, tokens[1].Type)
}

func TestLexErrors(t *testing.T) {
	for _, src := range []string{
		`PUSH "unterminated`,
		"PUSH $",
	} {
		_, err := Lex("bad.svm", src)
		var perr *ParseError
		assert.ErrorAs(t, err, &perr, src)
	}
}

package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/psilLang/svm/pkg/types"
	"github.com/psilLang/svm/pkg/vm"
)

// Node is one parsed element of an assembly program.
type Node interface {
	// Size is the number of cells the node occupies in the compiled program.
	Size() uint32

	prepass(c *CompileInfo) error
	compile(c *CompileInfo) error
}

// Label marks an address. It occupies no cells.
type Label struct {
	Name  string
	Token Token
}

func (l *Label) Size() uint32 { return 0 }

// Operand is an inline literal or a reference to a label.
type Operand struct {
	Value *types.Value
	// Label is set instead of Value for @name references.
	Label string
	Token Token
}

// Operation is an opcode followed by its inline operands.
type Operation struct {
	Op       vm.Opcode
	Operands []Operand
	Debug    *types.DebugInfo
	Token    Token
}

func (o *Operation) Size() uint32 { return 1 + uint32(len(o.Operands)) }

// Parse turns a token stream into nodes. A label is an identifier followed
// by ':'; any other identifier is a mnemonic whose operands run to the end
// of the line.
func Parse(tokens []Token) ([]Node, error) {
	var nodes []Node
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.Type {
		case NewlineToken, DebugToken:
			continue
		case EndToken:
			return nodes, nil
		case IdentToken:
			if i+1 < len(tokens) && tokens[i+1].Type == LabelToken {
				nodes = append(nodes, &Label{Name: tok.Value, Token: tok})
				i++
				continue
			}
			op, next, err := parseOperation(tokens, i)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, op)
			i = next - 1
		default:
			return nil, &ParseError{Token: tok, Msg: fmt.Sprintf("unexpected %s", tok.Type)}
		}
	}
	return nodes, nil
}

// parseOperation parses the operation starting at tokens[i] and returns the
// index of the first token it did not consume.
func parseOperation(tokens []Token, i int) (*Operation, int, error) {
	tok := tokens[i]
	code, err := vm.LookupOpcode(tok.Value)
	if err != nil {
		return nil, 0, &ParseError{Token: tok, Msg: "unknown opcode", Err: err}
	}
	node := &Operation{Op: code, Token: tok}

	j := i + 1
operands:
	for ; j < len(tokens); j++ {
		t := tokens[j]
		switch t.Type {
		case NumberToken:
			n, err := strconv.ParseFloat(t.Value, 64)
			if err != nil {
				return nil, 0, &ParseError{Token: t, Msg: "malformed number", Err: err}
			}
			node.Operands = append(node.Operands, Operand{Value: types.Number(n), Token: t})
		case AddressToken:
			a, err := parseAddress(t.Value)
			if err != nil {
				return nil, 0, &ParseError{Token: t, Msg: "malformed address", Err: err}
			}
			node.Operands = append(node.Operands, Operand{Value: types.Address(a), Token: t})
		case StringToken:
			node.Operands = append(node.Operands, Operand{Value: types.String(t.Value), Token: t})
		case BooleanToken:
			node.Operands = append(node.Operands, Operand{Value: types.Boolean(t.Value == "true"), Token: t})
		case LabelRefToken:
			node.Operands = append(node.Operands, Operand{Label: t.Value, Token: t})
		case DebugToken:
			node.Debug = &types.DebugInfo{Comment: t.Value}
		default:
			break operands
		}
	}

	info, err := code.Info()
	if err != nil {
		return nil, 0, &ParseError{Token: tok, Msg: "unknown opcode", Err: err}
	}
	if len(node.Operands) != info.Operands {
		return nil, 0, &ParseError{
			Token: tok,
			Msg:   fmt.Sprintf("%s takes %d operand(s), got %d", code, info.Operands, len(node.Operands)),
		}
	}
	return node, j, nil
}

func parseAddress(s string) (uint32, error) {
	base := 10
	if len(s) > 2 && strings.EqualFold(s[:2], "0x") {
		s, base = s[2:], 16
	}
	a, err := strconv.ParseUint(s, base, 32)
	return uint32(a), err
}

package parser

import (
	"github.com/sambeau/aql/pkg/aql/ast"
	"github.com/sambeau/aql/pkg/aql/lexer"
)

// parseLiteral parses an array or object literal starting at the current
// '[' or '{'. Nested literals open a frame on the construction stack rather
// than recursing, so nesting depth does not grow the call stack. Only
// element values that are not themselves literals go through
// parseExpression.
func (g *grammar) parseLiteral() ast.Handle {
	saved := g.noIn
	g.noIn = false
	defer func() { g.noIn = saved }()

	base := g.a.LiteralDepth()
	g.openLiteral()

	for {
		if g.closesLiteral() {
			g.next()
			h := g.a.EndLiteral()
			if g.a.LiteralDepth() == base {
				return h
			}
			// the finished literal is an element of the enclosing one, and
			// may be the left operand of an infix expression
			g.a.PushValue(g.parseInfix(h, LOWEST))
			g.afterElement()
			continue
		}

		if g.a.LiteralKind() == ast.NodeObject && g.parseObjectKey() {
			continue
		}

		if g.cur.Type == lexer.LBRACKET || g.cur.Type == lexer.LBRACE {
			g.openLiteral()
			continue
		}

		g.a.PushValue(g.parseExpression(LOWEST))
		g.afterElement()
	}
}

func (g *grammar) openLiteral() {
	tok := g.cur
	g.a.BeginLiteral(tok)
	g.next()
}

// closesLiteral reports whether the current token closes the innermost
// open literal.
func (g *grammar) closesLiteral() bool {
	if g.a.LiteralKind() == ast.NodeObject {
		return g.cur.Type == lexer.RBRACE
	}
	return g.cur.Type == lexer.RBRACKET
}

// afterElement consumes the comma following an element, or checks that the
// literal is closed next. A trailing comma is allowed.
func (g *grammar) afterElement() {
	switch {
	case g.cur.Type == lexer.COMMA:
		g.next()
	case g.closesLiteral():
	case g.a.LiteralKind() == ast.NodeObject:
		g.unexpected("',' or '}'")
	default:
		g.unexpected("',' or ']'")
	}
}

// parseObjectKey reads "name:" and records the key of the next field. For
// the shorthand {name}, which stands for {name: name}, it pushes the field
// itself and returns true.
func (g *grammar) parseObjectKey() bool {
	keyTok := g.cur
	if keyTok.Type != lexer.IDENT && keyTok.Type != lexer.STRING && !isWord(keyTok.Type) {
		g.unexpected("attribute name")
	}
	g.next()

	if keyTok.Type == lexer.IDENT && (g.cur.Type == lexer.COMMA || g.closesLiteral()) {
		g.a.SetKey(keyTok.Literal, keyTok)
		g.a.PushValue(g.a.Reference(keyTok.Literal, keyTok))
		g.afterElement()
		return true
	}

	g.expect(lexer.COLON, "':'")
	g.a.SetKey(keyTok.Literal, keyTok)
	return false
}

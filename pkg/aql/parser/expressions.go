package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/sambeau/aql/pkg/aql/ast"
	perrors "github.com/sambeau/aql/pkg/aql/errors"
	"github.com/sambeau/aql/pkg/aql/lexer"
	"github.com/sambeau/aql/pkg/aql/scope"
)

// Precedence levels for operators
const (
	_ int = iota
	LOWEST
	TERNARY     // ? :
	LOGIC_OR    // || OR
	LOGIC_AND   // && AND
	EQUALS      // == != IN NOT IN LIKE =~ !~
	LESSGREATER // < <= > >=
	RANGE       // ..
	SUM         // + -
	PRODUCT     // * / %
	PREFIX      // -X !X NOT X
	ACCESS      // a.b a[0] a[*]
)

// precedences maps tokens to their precedence
var precedences = map[lexer.TokenType]int{
	lexer.QUESTION:        TERNARY,
	lexer.OR:              LOGIC_OR,
	lexer.AND:             LOGIC_AND,
	lexer.EQ:              EQUALS,
	lexer.NOT_EQ:          EQUALS,
	lexer.IN:              EQUALS,
	lexer.LIKE:            EQUALS,
	lexer.REGEX_MATCH:     EQUALS,
	lexer.REGEX_NOT_MATCH: EQUALS,
	lexer.LT:              LESSGREATER,
	lexer.LTE:             LESSGREATER,
	lexer.GT:              LESSGREATER,
	lexer.GTE:             LESSGREATER,
	lexer.RANGE:           RANGE,
	lexer.PLUS:            SUM,
	lexer.MINUS:           SUM,
	lexer.ASTERISK:        PRODUCT,
	lexer.SLASH:           PRODUCT,
	lexer.PERCENT:         PRODUCT,
	lexer.DOT:             ACCESS,
	lexer.LBRACKET:        ACCESS,
}

// binaryNodeTypes maps two-operand operator tokens to node types.
var binaryNodeTypes = map[lexer.TokenType]ast.NodeType{
	lexer.OR:              ast.NodeBinaryOr,
	lexer.AND:             ast.NodeBinaryAnd,
	lexer.EQ:              ast.NodeBinaryEq,
	lexer.NOT_EQ:          ast.NodeBinaryNe,
	lexer.IN:              ast.NodeBinaryIn,
	lexer.LIKE:            ast.NodeBinaryLike,
	lexer.REGEX_MATCH:     ast.NodeBinaryRegex,
	lexer.REGEX_NOT_MATCH: ast.NodeBinaryNotRegex,
	lexer.LT:              ast.NodeBinaryLt,
	lexer.LTE:             ast.NodeBinaryLe,
	lexer.GT:              ast.NodeBinaryGt,
	lexer.GTE:             ast.NodeBinaryGe,
	lexer.RANGE:           ast.NodeRange,
	lexer.PLUS:            ast.NodeBinaryPlus,
	lexer.MINUS:           ast.NodeBinaryMinus,
	lexer.ASTERISK:        ast.NodeBinaryTimes,
	lexer.SLASH:           ast.NodeBinaryDiv,
	lexer.PERCENT:         ast.NodeBinaryMod,
}

// curPrecedence returns the binding power of the current token as an
// infix operator.
func (g *grammar) curPrecedence() int {
	switch g.cur.Type {
	case lexer.IN:
		if g.noIn {
			return LOWEST
		}
	case lexer.NOT:
		// only NOT IN and NOT LIKE are infix
		if g.peek.Type == lexer.LIKE || (g.peek.Type == lexer.IN && !g.noIn) {
			return EQUALS
		}
		return LOWEST
	}
	if p, ok := precedences[g.cur.Type]; ok {
		return p
	}
	return LOWEST
}

// parseExpression parses expressions using Pratt parsing
func (g *grammar) parseExpression(precedence int) ast.Handle {
	g.a.Nest(g.cur)
	defer g.a.Unnest()

	prefix := g.prefixParseFns[g.cur.Type]
	if prefix == nil {
		g.unexpected("expression")
	}
	return g.parseInfix(prefix(), precedence)
}

// parseInfix applies infix operators to left while they bind tighter than
// precedence.
func (g *grammar) parseInfix(left ast.Handle, precedence int) ast.Handle {
	for precedence < g.curPrecedence() {
		infix := g.infixParseFns[g.cur.Type]
		if infix == nil {
			return left
		}
		left = infix(left)
	}
	return left
}

// withIn parses fn with IN restored as an operator, for bracketed
// subexpressions inside modification clauses.
func (g *grammar) withIn(fn func() ast.Handle) ast.Handle {
	saved := g.noIn
	g.noIn = false
	defer func() { g.noIn = saved }()
	return fn()
}

// parseIdentifier parses a variable or collection reference, or a function
// call when the name is followed by '('.
func (g *grammar) parseIdentifier() ast.Handle {
	tok := g.cur
	g.next()
	if g.cur.Type != lexer.LPAREN {
		return g.a.Reference(tok.Literal, tok)
	}

	g.next()
	node := g.a.Node(ast.NodeFunctionCall, tok, ast.Name(strings.ToUpper(tok.Literal)))
	g.withIn(func() ast.Handle {
		for g.cur.Type != lexer.RPAREN {
			g.a.Attach(node, g.parseExpression(LOWEST))
			if g.cur.Type != lexer.COMMA {
				break
			}
			g.next()
		}
		return node
	})
	g.expect(lexer.RPAREN, "')'")
	return g.a.Seal(node)
}

// numberValue converts a numeric literal. Integers too large for int64
// become doubles; values outside the double range are an error.
func (g *grammar) numberValue(tok lexer.Token, literal string) ast.Value {
	if tok.Type == lexer.INT {
		if i, err := strconv.ParseInt(literal, 10, 64); err == nil {
			return ast.Int(i)
		}
	}
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsInf(f, 0) {
		g.a.Fail(perrors.CodeNumberOutOfRange, tok, map[string]any{"Literal": literal})
	}
	return ast.Double(f)
}

func (g *grammar) parseNumber() ast.Handle {
	tok := g.cur
	g.next()
	return g.a.Node(ast.NodeValue, tok, g.numberValue(tok, tok.Literal))
}

func (g *grammar) parseString() ast.Handle {
	tok := g.cur
	g.next()
	return g.a.Node(ast.NodeValue, tok, ast.String(tok.Literal))
}

func (g *grammar) parseKeywordValue() ast.Handle {
	tok := g.cur
	g.next()
	v := ast.Null()
	switch tok.Type {
	case lexer.TRUE:
		v = ast.Bool(true)
	case lexer.FALSE:
		v = ast.Bool(false)
	}
	return g.a.Node(ast.NodeValue, tok, v)
}

func (g *grammar) parseBindParameter() ast.Handle {
	tok := g.cur
	g.next()
	return g.a.BindParameter(tok)
}

// parseUnary parses a prefix operator. A minus directly in front of a
// number literal is folded into the value, so negative constants stay
// constant.
func (g *grammar) parseUnary() ast.Handle {
	tok := g.cur
	g.next()

	if tok.Type == lexer.MINUS && (g.cur.Type == lexer.INT || g.cur.Type == lexer.FLOAT) {
		num := g.cur
		g.next()
		return g.a.Node(ast.NodeValue, tok, g.numberValue(num, "-"+num.Literal))
	}

	var t ast.NodeType
	switch tok.Type {
	case lexer.MINUS:
		t = ast.NodeUnaryMinus
	case lexer.PLUS:
		t = ast.NodeUnaryPlus
	default:
		t = ast.NodeUnaryNot
	}
	node := g.a.Node(t, tok, ast.Value{})
	g.a.Attach(node, g.parseExpression(PREFIX))
	return g.a.Seal(node)
}

// parseParenthesized parses a grouped expression or a subquery.
func (g *grammar) parseParenthesized() ast.Handle {
	open := g.cur
	g.next()

	if startsQuery(g.cur.Type) {
		return g.parseSubquery(open)
	}

	expr := g.withIn(func() ast.Handle { return g.parseExpression(LOWEST) })
	g.expect(lexer.RPAREN, "')'")
	return expr
}

// parseSubquery parses "( query body )". The opening parenthesis has been
// consumed.
func (g *grammar) parseSubquery(open lexer.Token) ast.Handle {
	g.a.Nest(open)
	defer g.a.Unnest()

	node := g.a.Node(ast.NodeSubquery, open, ast.Value{})
	g.a.EnterScope(scope.KindSubquery)
	g.withIn(func() ast.Handle {
		g.parseBody(node)
		return node
	})
	g.a.LeaveScope()
	g.expect(lexer.RPAREN, "')'")
	return g.a.Seal(node)
}

func (g *grammar) parseBinary(left ast.Handle) ast.Handle {
	tok := g.cur
	precedence := g.curPrecedence()
	g.next()
	right := g.parseExpression(precedence)

	node := g.a.Node(binaryNodeTypes[tok.Type], tok, ast.Value{})
	g.a.Attach(node, left, right)
	return g.a.Seal(node)
}

// parseNotInfix parses "left NOT IN right" and "left NOT LIKE right".
func (g *grammar) parseNotInfix(left ast.Handle) ast.Handle {
	notTok := g.cur
	g.next()
	opTok := g.cur
	g.next()
	right := g.parseExpression(EQUALS)

	if opTok.Type == lexer.IN {
		node := g.a.Node(ast.NodeBinaryNotIn, notTok, ast.Value{})
		g.a.Attach(node, left, right)
		return g.a.Seal(node)
	}

	like := g.a.Node(ast.NodeBinaryLike, opTok, ast.Value{})
	g.a.Attach(like, left, right)
	node := g.a.Node(ast.NodeUnaryNot, notTok, ast.Value{})
	g.a.Attach(node, g.a.Seal(like))
	return g.a.Seal(node)
}

// parseTernary parses "condition ? then : else". It is right-associative.
func (g *grammar) parseTernary(cond ast.Handle) ast.Handle {
	tok := g.cur
	g.next()
	then := g.withIn(func() ast.Handle { return g.parseExpression(LOWEST) })
	g.expect(lexer.COLON, "':'")
	otherwise := g.parseExpression(LOWEST)

	node := g.a.Node(ast.NodeTernary, tok, ast.Value{})
	g.a.Attach(node, cond, then, otherwise)
	return g.a.Seal(node)
}

// parseAttributeAccess parses "left.name". Keywords are valid names here.
func (g *grammar) parseAttributeAccess(left ast.Handle) ast.Handle {
	tok := g.cur
	g.next()

	nameTok := g.cur
	if nameTok.Type != lexer.IDENT && nameTok.Type != lexer.STRING && !isWord(nameTok.Type) {
		g.unexpected("attribute name")
	}
	g.next()

	node := g.a.Node(ast.NodeAttributeAccess, tok, ast.Name(nameTok.Literal))
	g.a.Attach(node, left)
	return g.a.Seal(node)
}

// isWord reports whether tt is spelled as a word.
func isWord(tt lexer.TokenType) bool {
	return tt.IsKeyword() || tt == lexer.AND || tt == lexer.OR
}

// parseIndexedAccess parses "left[index]" and the expansion "left[*]".
func (g *grammar) parseIndexedAccess(left ast.Handle) ast.Handle {
	tok := g.cur
	g.next()

	if g.cur.Type == lexer.ASTERISK && g.peek.Type == lexer.RBRACKET {
		g.next()
		g.next()
		node := g.a.Node(ast.NodeExpand, tok, ast.Value{})
		g.a.Attach(node, left)
		return g.a.Seal(node)
	}

	index := g.withIn(func() ast.Handle { return g.parseExpression(LOWEST) })
	g.expect(lexer.RBRACKET, "']'")

	node := g.a.Node(ast.NodeIndexedAccess, tok, ast.Value{})
	g.a.Attach(node, left, index)
	return g.a.Seal(node)
}

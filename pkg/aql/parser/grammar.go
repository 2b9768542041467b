package parser

import (
	"strings"

	"github.com/sambeau/aql/pkg/aql/ast"
	perrors "github.com/sambeau/aql/pkg/aql/errors"
	"github.com/sambeau/aql/pkg/aql/lexer"
	"github.com/sambeau/aql/pkg/aql/scope"
)

// grammar is a recursive-descent parser for query bodies with a Pratt
// parser for expressions. cur is always the next unconsumed token.
type grammar struct {
	l *lexer.Lexer
	a Actions

	cur  lexer.Token
	peek lexer.Token

	// noIn stops IN from being read as an operator, for clauses such as
	// "REMOVE doc IN coll" where IN introduces the collection.
	noIn bool

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn
}

type (
	prefixParseFn func() ast.Handle
	infixParseFn  func(ast.Handle) ast.Handle
)

func newGrammar(l *lexer.Lexer, a Actions) *grammar {
	g := &grammar{l: l, a: a}

	g.prefixParseFns = make(map[lexer.TokenType]prefixParseFn)
	g.registerPrefix(lexer.IDENT, g.parseIdentifier)
	g.registerPrefix(lexer.INT, g.parseNumber)
	g.registerPrefix(lexer.FLOAT, g.parseNumber)
	g.registerPrefix(lexer.STRING, g.parseString)
	g.registerPrefix(lexer.NULL, g.parseKeywordValue)
	g.registerPrefix(lexer.TRUE, g.parseKeywordValue)
	g.registerPrefix(lexer.FALSE, g.parseKeywordValue)
	g.registerPrefix(lexer.PARAM, g.parseBindParameter)
	g.registerPrefix(lexer.COLLECTION_PARAM, g.parseBindParameter)
	g.registerPrefix(lexer.BANG, g.parseUnary)
	g.registerPrefix(lexer.NOT, g.parseUnary)
	g.registerPrefix(lexer.MINUS, g.parseUnary)
	g.registerPrefix(lexer.PLUS, g.parseUnary)
	g.registerPrefix(lexer.LPAREN, g.parseParenthesized)
	g.registerPrefix(lexer.LBRACKET, g.parseLiteral)
	g.registerPrefix(lexer.LBRACE, g.parseLiteral)

	g.infixParseFns = make(map[lexer.TokenType]infixParseFn)
	for tt := range binaryNodeTypes {
		g.registerInfix(tt, g.parseBinary)
	}
	g.registerInfix(lexer.NOT, g.parseNotInfix)
	g.registerInfix(lexer.QUESTION, g.parseTernary)
	g.registerInfix(lexer.DOT, g.parseAttributeAccess)
	g.registerInfix(lexer.LBRACKET, g.parseIndexedAccess)

	// Prime peek so the first next sets both cur and peek
	g.peek = l.NextToken()
	g.next()
	return g
}

func (g *grammar) registerPrefix(tokenType lexer.TokenType, fn prefixParseFn) {
	g.prefixParseFns[tokenType] = fn
}

func (g *grammar) registerInfix(tokenType lexer.TokenType, fn infixParseFn) {
	g.infixParseFns[tokenType] = fn
}

// next advances cur and peek. An illegal token becoming current is a
// lexical error.
func (g *grammar) next() {
	g.cur = g.peek
	g.peek = g.l.NextToken()
	if g.cur.Type == lexer.ILLEGAL {
		g.a.Fail(perrors.CodeLexical, g.cur, map[string]any{"Reason": g.cur.Err})
	}
}

// expect consumes a token of type tt or fails naming what was expected.
func (g *grammar) expect(tt lexer.TokenType, expected string) lexer.Token {
	if g.cur.Type != tt {
		g.unexpected(expected)
	}
	tok := g.cur
	g.next()
	return tok
}

// describe names a token the way syntax errors refer to it.
func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.EOF:
		return "end of query"
	case lexer.IDENT:
		return "identifier"
	case lexer.INT:
		return "integer number"
	case lexer.FLOAT:
		return "decimal number"
	case lexer.STRING:
		return "quoted string"
	case lexer.PARAM:
		return "bind parameter"
	case lexer.COLLECTION_PARAM:
		return "collection bind parameter"
	}
	if tok.Type.IsKeyword() {
		return tok.Type.String() + " keyword"
	}
	return "'" + tok.Literal + "'"
}

// maxHints bounds the "did you mean" suggestions of a syntax error.
const maxHints = 2

// unexpected reports a syntax error at the current token. A misplaced
// identifier is matched against the visible variables and the keywords.
func (g *grammar) unexpected(expected string) {
	data := map[string]any{"Got": describe(g.cur)}
	if expected != "" {
		data["Expected"] = expected
	}

	var hints []string
	if g.cur.Type == lexer.IDENT {
		candidates := append(g.a.VariableNames(), perrors.Keywords...)
		for _, m := range perrors.FindTopMatches(g.cur.Literal, candidates, maxHints) {
			hints = append(hints, "did you mean "+m+"?")
		}
	}
	g.a.Fail(perrors.CodeParse, g.cur, data, hints...)
}

// parseQuery parses a complete query and returns its root node.
func (g *grammar) parseQuery() ast.Handle {
	if g.cur.Type == lexer.EOF {
		g.a.Fail(perrors.CodeEmptyQuery, g.cur, nil)
	}

	root := g.a.Node(ast.NodeRoot, g.cur, ast.Value{})
	g.parseBody(root)
	if g.cur.Type != lexer.EOF {
		g.unexpected("end of query")
	}
	return g.a.Seal(root)
}

// parseBody parses the operations of a query body into parent. A body ends
// after RETURN, or before the end of input or a closing parenthesis when
// its last operation modified data. Loop and collect scopes opened by the
// body are closed before returning.
func (g *grammar) parseBody(parent ast.Handle) {
	terminated := false
	for {
		var op ast.Handle
		switch g.cur.Type {
		case lexer.FOR:
			op = g.parseFor()
		case lexer.LET:
			op = g.parseLet()
		case lexer.FILTER:
			op = g.parseFilter()
		case lexer.SORT:
			op = g.parseSort()
		case lexer.LIMIT:
			op = g.parseLimit()
		case lexer.COLLECT:
			op = g.parseCollect()
		case lexer.RETURN:
			g.a.Attach(parent, g.parseReturn())
			g.a.LeaveNested()
			return
		case lexer.INSERT, lexer.UPDATE, lexer.REPLACE, lexer.REMOVE, lexer.UPSERT:
			g.a.Attach(parent, g.parseModification())
			terminated = true
			continue
		case lexer.EOF, lexer.RPAREN:
			if terminated {
				g.a.LeaveNested()
				return
			}
			g.unexpected("RETURN or a data-modification operation")
		default:
			g.unexpected("")
		}
		g.a.Attach(parent, op)
		terminated = false
	}
}

// startsQuery reports whether tt can open a subquery body.
func startsQuery(tt lexer.TokenType) bool {
	switch tt {
	case lexer.FOR, lexer.LET, lexer.RETURN, lexer.COLLECT,
		lexer.INSERT, lexer.UPDATE, lexer.REPLACE, lexer.REMOVE, lexer.UPSERT:
		return true
	}
	return false
}

// parseVariableName consumes an identifier naming a new variable.
func (g *grammar) parseVariableName() lexer.Token {
	return g.expect(lexer.IDENT, "variable name")
}

// FOR name IN expression
func (g *grammar) parseFor() ast.Handle {
	tok := g.cur
	g.next()
	nameTok := g.parseVariableName()
	g.expect(lexer.IN, "IN")
	expr := g.parseExpression(LOWEST)

	g.a.EnterScope(scope.KindFor)
	v := g.a.Declare(nameTok.Literal, nameTok)

	node := g.a.Node(ast.NodeFor, tok, ast.Value{})
	g.a.Attach(node, v, expr)
	return g.a.Seal(node)
}

// LET name = expression
func (g *grammar) parseLet() ast.Handle {
	tok := g.cur
	g.next()
	nameTok := g.parseVariableName()
	g.expect(lexer.ASSIGN, "'='")
	expr := g.parseExpression(LOWEST)
	v := g.a.Declare(nameTok.Literal, nameTok)

	node := g.a.Node(ast.NodeLet, tok, ast.Value{})
	g.a.Attach(node, v, expr)
	return g.a.Seal(node)
}

func (g *grammar) parseFilter() ast.Handle {
	tok := g.cur
	g.next()
	node := g.a.Node(ast.NodeFilter, tok, ast.Value{})
	g.a.Attach(node, g.parseExpression(LOWEST))
	return g.a.Seal(node)
}

// SORT expression [ASC|DESC] {, expression [ASC|DESC]}
func (g *grammar) parseSort() ast.Handle {
	tok := g.cur
	g.next()
	node := g.a.Node(ast.NodeSort, tok, ast.Value{})
	for {
		exprTok := g.cur
		expr := g.parseExpression(LOWEST)
		ascending := true
		switch g.cur.Type {
		case lexer.ASC:
			g.next()
		case lexer.DESC:
			ascending = false
			g.next()
		}

		el := g.a.Node(ast.NodeSortElement, exprTok, ast.Bool(ascending))
		g.a.Attach(el, expr)
		g.a.Attach(node, g.a.Seal(el))

		if g.cur.Type != lexer.COMMA {
			break
		}
		g.next()
	}
	return g.a.Seal(node)
}

// LIMIT [offset,] count
func (g *grammar) parseLimit() ast.Handle {
	tok := g.cur
	g.next()
	first := g.parseExpression(LOWEST)

	var offset, count ast.Handle
	if g.cur.Type == lexer.COMMA {
		g.next()
		offset, count = first, g.parseExpression(LOWEST)
	} else {
		offset, count = g.a.Node(ast.NodeValue, tok, ast.Int(0)), first
	}

	node := g.a.Node(ast.NodeLimit, tok, ast.Value{})
	g.a.Attach(node, offset, count)
	return g.a.Seal(node)
}

// COLLECT [name = expression {, name = expression}] [INTO name] [WITH COUNT INTO name]
//
// Group expressions are read in the enclosing scope; the variables they
// introduce are declared in a new collect scope.
func (g *grammar) parseCollect() ast.Handle {
	tok := g.cur
	g.next()

	type assignment struct {
		name lexer.Token
		expr ast.Handle
	}
	var groups []assignment
	if g.cur.Type == lexer.IDENT {
		for {
			nameTok := g.parseVariableName()
			g.expect(lexer.ASSIGN, "'='")
			groups = append(groups, assignment{nameTok, g.parseExpression(LOWEST)})
			if g.cur.Type != lexer.COMMA {
				break
			}
			g.next()
		}
	}

	var into, count lexer.Token
	hasInto, hasCount := false, false
	if g.cur.Type == lexer.INTO {
		g.next()
		into, hasInto = g.parseVariableName(), true
	}
	if g.cur.Type == lexer.WITH {
		g.next()
		if g.cur.Type != lexer.IDENT || !strings.EqualFold(g.cur.Literal, "COUNT") {
			g.unexpected("COUNT")
		}
		g.next()
		g.expect(lexer.INTO, "INTO")
		count, hasCount = g.parseVariableName(), true
	}

	if len(groups) == 0 && !hasInto && !hasCount {
		g.unexpected("variable name")
	}

	g.a.EnterScope(scope.KindCollect)
	node := g.a.Node(ast.NodeCollect, tok, ast.Value{})
	for _, grp := range groups {
		assign := g.a.Node(ast.NodeAssign, grp.name, ast.Value{})
		g.a.Attach(assign, g.a.Declare(grp.name.Literal, grp.name), grp.expr)
		g.a.Attach(node, g.a.Seal(assign))
	}
	if hasInto {
		g.a.Attach(node, g.a.Declare(into.Literal, into))
	}
	if hasCount {
		cnt := g.a.Node(ast.NodeCollectCount, count, ast.Value{})
		g.a.Attach(cnt, g.a.Declare(count.Literal, count))
		g.a.Attach(node, g.a.Seal(cnt))
	}
	return g.a.Seal(node)
}

// RETURN [DISTINCT] expression
func (g *grammar) parseReturn() ast.Handle {
	tok := g.cur
	g.next()
	distinct := false
	if g.cur.Type == lexer.DISTINCT {
		distinct = true
		g.next()
	}

	node := g.a.Node(ast.NodeReturn, tok, ast.Bool(distinct))
	g.a.Attach(node, g.parseExpression(LOWEST))
	return g.a.Seal(node)
}

// parseOperand parses the expression of a modification clause, where IN
// ends the expression instead of acting as an operator.
func (g *grammar) parseOperand() ast.Handle {
	saved := g.noIn
	g.noIn = true
	defer func() { g.noIn = saved }()
	return g.parseExpression(LOWEST)
}

// parseTarget parses "IN|INTO collection".
func (g *grammar) parseTarget() ast.Handle {
	if g.cur.Type != lexer.IN && g.cur.Type != lexer.INTO {
		g.unexpected("IN or INTO")
	}
	g.next()

	tok := g.cur
	switch tok.Type {
	case lexer.IDENT, lexer.STRING:
		g.next()
		return g.a.Collection(tok.Literal, tok)
	case lexer.COLLECTION_PARAM:
		g.next()
		return g.a.BindParameter(tok)
	}
	g.unexpected("collection name")
	return ast.NoNode
}

// parseOptions parses an optional "OPTIONS expression". It returns NoNode
// when the clause is absent.
func (g *grammar) parseOptions() ast.Handle {
	if g.cur.Type != lexer.OPTIONS {
		return ast.NoNode
	}
	g.next()
	return g.parseExpression(LOWEST)
}

var modificationTypes = map[lexer.TokenType]struct {
	node  ast.NodeType
	query QueryType
}{
	lexer.INSERT:  {ast.NodeInsert, QueryInsert},
	lexer.UPDATE:  {ast.NodeUpdate, QueryUpdate},
	lexer.REPLACE: {ast.NodeReplace, QueryReplace},
	lexer.REMOVE:  {ast.NodeRemove, QueryRemove},
	lexer.UPSERT:  {ast.NodeUpsert, QueryUpsert},
}

// parseModification parses one data-modification clause:
//
//	INSERT document IN|INTO collection [OPTIONS options]
//	UPDATE|REPLACE [key WITH] document IN|INTO collection [OPTIONS options]
//	REMOVE key IN|INTO collection [OPTIONS options]
//	UPSERT search INSERT document UPDATE|REPLACE document IN|INTO collection [OPTIONS options]
//
// A missing key or options clause is stored as a no-op node, so the child
// layout of each clause is fixed.
func (g *grammar) parseModification() ast.Handle {
	tok := g.cur
	g.next()
	mod := modificationTypes[tok.Type]

	var operands []ast.Handle
	value := ast.Value{}
	switch tok.Type {
	case lexer.INSERT, lexer.REMOVE:
		operands = append(operands, g.parseOperand())
	case lexer.UPDATE, lexer.REPLACE:
		first := g.parseOperand()
		if g.cur.Type == lexer.WITH {
			g.next()
			operands = append(operands, first, g.parseOperand())
		} else {
			operands = append(operands, g.a.Node(ast.NodeNop, tok, ast.Value{}), first)
		}
	case lexer.UPSERT:
		search := g.parseOperand()
		g.expect(lexer.INSERT, "INSERT")
		insert := g.parseOperand()
		if g.cur.Type != lexer.UPDATE && g.cur.Type != lexer.REPLACE {
			g.unexpected("UPDATE or REPLACE")
		}
		value = ast.Bool(g.cur.Type == lexer.REPLACE)
		g.next()
		operands = append(operands, search, insert, g.parseOperand())
	}

	collection := g.parseTarget()
	options := g.parseOptions()

	node := g.a.Node(mod.node, tok, value)
	g.a.Attach(node, operands...)
	g.a.Attach(node, collection)
	if options.Valid() {
		g.a.Attach(node, options)
	} else {
		g.a.Attach(node, g.a.Node(ast.NodeNop, tok, ast.Value{}))
	}
	g.a.Seal(node)

	g.a.Modify(mod.query, tok, collection, options)
	g.declarePseudoVariables(tok)
	return node
}

// declarePseudoVariables makes OLD and NEW available after a modification.
func (g *grammar) declarePseudoVariables(tok lexer.Token) {
	switch tok.Type {
	case lexer.INSERT:
		g.a.Declare("NEW", tok)
	case lexer.REMOVE:
		g.a.Declare("OLD", tok)
	default:
		g.a.Declare("OLD", tok)
		g.a.Declare("NEW", tok)
	}
}

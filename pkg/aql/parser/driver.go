// Package parser turns query text into a validated abstract syntax tree.
//
// A parse runs a hand-written grammar over the token stream. The grammar
// never touches the tree directly; it calls the Actions of a driver, which
// owns the node arena, the construction stack for literals, the scope
// tracker, the write guard and the diagnostics sink for that one parse.
// Nothing is shared between parses, so Parse is safe for concurrent use.
package parser

import (
	"errors"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sambeau/aql/pkg/aql/ast"
	perrors "github.com/sambeau/aql/pkg/aql/errors"
	"github.com/sambeau/aql/pkg/aql/lexer"
	"github.com/sambeau/aql/pkg/aql/logger"
	"github.com/sambeau/aql/pkg/aql/scope"
)

// Limits bounds the resources a single parse may use. Zero disables a limit.
type Limits struct {
	MaxQueryLength  int `yaml:"max_query_length"`
	MaxNestingDepth int `yaml:"max_nesting_depth"`
	MaxNodes        int `yaml:"max_nodes"`
}

// Option configures a parse.
type Option func(*options)

type options struct {
	limits Limits
	log    logger.Logger
}

// WithLimits sets resource limits for the parse.
func WithLimits(l Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithLogger sets a logger receiving debug output. A nil logger is silent.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Actions is the set of callbacks the grammar drives. Failing actions
// record a diagnostic and abort the parse; they never return to the grammar.
type Actions interface {
	Node(t ast.NodeType, tok lexer.Token, v ast.Value) ast.Handle
	Attach(parent ast.Handle, children ...ast.Handle)
	Seal(h ast.Handle) ast.Handle
	IsConstant(h ast.Handle) bool

	BeginLiteral(tok lexer.Token)
	SetKey(name string, tok lexer.Token)
	PushValue(h ast.Handle)
	EndLiteral() ast.Handle
	LiteralKind() ast.NodeType
	LiteralDepth() int

	EnterScope(kind scope.Kind)
	LeaveScope()
	LeaveNested()
	Declare(name string, tok lexer.Token) ast.Handle
	VariableNames() []string
	Reference(name string, tok lexer.Token) ast.Handle
	Collection(name string, tok lexer.Token) ast.Handle
	BindParameter(tok lexer.Token) ast.Handle

	Modify(typ QueryType, tok lexer.Token, collection, options ast.Handle)

	Nest(tok lexer.Token)
	Unnest()
	Fail(code perrors.Code, tok lexer.Token, data map[string]any, hints ...string)
}

// abort unwinds the grammar once the first error has been recorded.
type abort struct{}

type driver struct {
	lex         *lexer.Lexer
	arena       *ast.Arena
	stack       *Stack
	scopes      *scope.Tracker
	guard       WriteGuard
	diag        *perrors.Diagnostics
	limits      Limits
	nesting     int
	params      map[string]struct{}
	collections map[string]struct{}
}

var _ Actions = (*driver)(nil)

func newDriver(query string, limits Limits) *driver {
	lex := lexer.New(query)
	arena := ast.NewArena(limits.MaxNodes)
	return &driver{
		lex:         lex,
		arena:       arena,
		stack:       NewStack(arena, limits.MaxNestingDepth),
		scopes:      scope.New(),
		diag:        perrors.NewDiagnostics(query, lex.ExtractRegion),
		limits:      limits,
		params:      make(map[string]struct{}),
		collections: make(map[string]struct{}),
	}
}

func position(tok lexer.Token) ast.Position {
	return ast.Position{Offset: tok.Offset, Line: tok.Line, Column: tok.Column}
}

// Fail records the first error and aborts the parse.
func (d *driver) Fail(code perrors.Code, tok lexer.Token, data map[string]any, hints ...string) {
	_, msg, catalogHints := perrors.Describe(code, data)
	d.diag.Report(code, msg, tok.Line, tok.Column, append(catalogHints, hints...)...)
	panic(abort{})
}

// checkLimit converts an allocation failure into a diagnostic.
func (d *driver) checkLimit(err error, tok lexer.Token) {
	if err == nil {
		return
	}
	var le *ast.LimitError
	if errors.As(err, &le) {
		d.Fail(perrors.CodeLimitExceeded, tok, map[string]any{
			"Limit": le.Limit,
			"Max":   humanize.Comma(int64(le.Max)),
		})
	}
	panic(err)
}

func (d *driver) Node(t ast.NodeType, tok lexer.Token, v ast.Value) ast.Handle {
	h, err := d.arena.CreateNode(t, position(tok), v)
	d.checkLimit(err, tok)
	return h
}

func (d *driver) Attach(parent ast.Handle, children ...ast.Handle) {
	for _, c := range children {
		d.arena.AddChild(parent, c)
	}
}

func (d *driver) Seal(h ast.Handle) ast.Handle {
	d.arena.Seal(h)
	return h
}

func (d *driver) IsConstant(h ast.Handle) bool {
	return d.arena.IsConstant(h)
}

func (d *driver) BeginLiteral(tok lexer.Token) {
	var err error
	if tok.Type == lexer.LBRACE {
		err = d.stack.BeginObject(position(tok))
	} else {
		err = d.stack.BeginArray(position(tok))
	}
	d.checkLimit(err, tok)
}

func (d *driver) SetKey(name string, tok lexer.Token) {
	d.stack.SetKey(name, position(tok))
}

func (d *driver) PushValue(h ast.Handle) {
	d.checkLimit(d.stack.Push(h), lexer.Token{
		Line:   d.arena.Pos(h).Line,
		Column: d.arena.Pos(h).Column,
	})
}

func (d *driver) EndLiteral() ast.Handle {
	if d.stack.TopKind() == ast.NodeObject {
		return d.stack.EndObject()
	}
	return d.stack.EndArray()
}

func (d *driver) LiteralKind() ast.NodeType {
	return d.stack.TopKind()
}

func (d *driver) LiteralDepth() int {
	return d.stack.Depth()
}

func (d *driver) EnterScope(kind scope.Kind) {
	d.scopes.Enter(kind)
}

func (d *driver) LeaveScope() {
	d.scopes.Leave()
}

func (d *driver) LeaveNested() {
	d.scopes.LeaveNested()
}

// Declare creates a variable node and adds it to the current scope.
func (d *driver) Declare(name string, tok lexer.Token) ast.Handle {
	h := d.Node(ast.NodeVariable, tok, ast.Name(name))
	if err := d.scopes.Declare(name, int32(h)); err != nil {
		d.Fail(perrors.CodeVariableRedeclared, tok, map[string]any{"Name": name})
	}
	return h
}

func (d *driver) VariableNames() []string {
	return d.scopes.VariableNames()
}

// Reference resolves a bare name: a visible variable, or else a collection.
// OLD and NEW never name collections; outside the modification that
// declares them they are unknown variables.
func (d *driver) Reference(name string, tok lexer.Token) ast.Handle {
	if _, ok := d.scopes.Lookup(name); ok {
		return d.Node(ast.NodeReference, tok, ast.Name(name))
	}
	if name == "OLD" || name == "NEW" {
		d.Fail(perrors.CodeVariableUnknown, tok, map[string]any{"Name": name})
	}
	return d.Collection(name, tok)
}

func (d *driver) Collection(name string, tok lexer.Token) ast.Handle {
	d.collections[name] = struct{}{}
	return d.Node(ast.NodeCollection, tok, ast.Name(name))
}

// BindParameter records @name and @@name placeholders. Collection
// parameters keep one leading '@' in the recorded name.
func (d *driver) BindParameter(tok lexer.Token) ast.Handle {
	name := tok.Literal
	if tok.Type == lexer.COLLECTION_PARAM {
		name = "@" + name
	}
	d.params[name] = struct{}{}
	return d.Node(ast.NodeParameter, tok, ast.Name(name))
}

// Modify runs a data-modification clause past the write guard.
func (d *driver) Modify(typ QueryType, tok lexer.Token, collection, opts ast.Handle) {
	o := OptionsNone
	if opts.Valid() {
		o = OptionsConstant
		if !d.arena.IsConstant(opts) {
			o = OptionsDynamic
		}
	}

	target := d.arena.Value(collection).String
	warn, err := d.guard.Attempt(WriteAttempt{
		Type:       typ,
		Collection: target,
		InSubquery: d.scopes.IsInSubquery(),
		Options:    o,
	})
	switch {
	case errors.Is(err, ErrModifyInSubquery):
		d.Fail(perrors.CodeModifyInSubquery, tok, nil)
	case errors.Is(err, ErrMultipleModify):
		d.Fail(perrors.CodeMultiModify, tok, nil)
	}
	if warn {
		pos := d.arena.Pos(opts)
		d.diag.Warn(perrors.CodeCompileTimeOptions, pos.Line, pos.Column)
	}
}

// Nest guards recursive grammar productions against the nesting limit.
// Literal frames are bounded separately by the construction stack.
func (d *driver) Nest(tok lexer.Token) {
	d.nesting++
	max := d.limits.MaxNestingDepth
	if max > 0 && d.nesting > max {
		d.Fail(perrors.CodeLimitExceeded, tok, map[string]any{
			"Limit": "maximum nesting depth",
			"Max":   humanize.Comma(int64(max)),
		})
	}
}

func (d *driver) Unnest() {
	d.nesting--
}

// Artifact is the immutable result of a successful parse.
type Artifact struct {
	Root           ast.Handle
	Arena          *ast.Arena
	BindParameters []string
	Collections    []string
	Classification Classification
	Warnings       []perrors.Warning
}

// Parse parses a query and returns its artifact, or the first error found.
// Errors are *errors.QueryError values.
func Parse(query string, opts ...Option) (*Artifact, error) {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	d := newDriver(query, o.limits)
	art, err := d.run(query)
	if err != nil {
		if qe, ok := perrors.As(err); ok {
			o.log.Debugf("parse failed after %s: error %d at %d:%d", time.Since(start), qe.Code, qe.Line, qe.Column+1)
		}
		return nil, err
	}

	o.log.Debugf("parsed %s query in %s: %s nodes, %d collections, %d bind parameters",
		art.Classification.Type, time.Since(start), humanize.Comma(int64(art.Arena.Len())),
		len(art.Collections), len(art.BindParameters))
	return art, nil
}

// run drives the grammar to completion and assembles the artifact.
func (d *driver) run(query string) (art *Artifact, err error) {
	if max := d.limits.MaxQueryLength; max > 0 && len(query) > max {
		return nil, d.diag.ReportCode(perrors.CodeLimitExceeded, map[string]any{
			"Limit": "maximum query length",
			"Max":   humanize.Bytes(uint64(max)),
		}, 1, 0)
	}

	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abort); !ok {
				panic(r)
			}
			art, err = nil, d.diag.Err()
		}
	}()

	d.scopes.Enter(scope.KindMain)
	g := newGrammar(d.lex, d)
	root := g.parseQuery()
	d.scopes.Leave()

	perrors.Assert(d.scopes.NumActive() == 0, "%d scopes left open", d.scopes.NumActive())
	perrors.Assert(d.stack.Depth() == 0, "%d literal frames left open", d.stack.Depth())
	d.arena.Freeze()

	return &Artifact{
		Root:           root,
		Arena:          d.arena,
		BindParameters: sortedKeys(d.params),
		Collections:    sortedKeys(d.collections),
		Classification: d.guard.Classification(),
		Warnings:       d.diag.Warnings(),
	}, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

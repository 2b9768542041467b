// Package ast defines the abstract syntax tree of a parsed query.
//
// Nodes live in an Arena owned by a single parse session and are addressed
// by Handle. A node's type constrains how many children it may have; the
// arena enforces this with assertions, since a violation is a defect in the
// grammar rather than bad user input. Once a node is sealed its children can
// no longer change.
package ast

import (
	"fmt"
	"strconv"

	perrors "github.com/sambeau/aql/pkg/aql/errors"
)

// NodeType tags the variant a node represents.
type NodeType uint8

const (
	NodeRoot NodeType = iota
	NodeFor
	NodeLet
	NodeFilter
	NodeReturn
	NodeCollect
	NodeCollectCount
	NodeAssign
	NodeSort
	NodeSortElement
	NodeLimit
	NodeInsert
	NodeUpdate
	NodeReplace
	NodeRemove
	NodeUpsert
	NodeVariable
	NodeReference
	NodeCollection
	NodeParameter
	NodeValue
	NodeArray
	NodeObject
	NodeObjectElement
	NodeUnaryNot
	NodeUnaryMinus
	NodeUnaryPlus
	NodeBinaryAnd
	NodeBinaryOr
	NodeBinaryPlus
	NodeBinaryMinus
	NodeBinaryTimes
	NodeBinaryDiv
	NodeBinaryMod
	NodeBinaryEq
	NodeBinaryNe
	NodeBinaryLt
	NodeBinaryLe
	NodeBinaryGt
	NodeBinaryGe
	NodeBinaryIn
	NodeBinaryNotIn
	NodeBinaryLike
	NodeBinaryRegex
	NodeBinaryNotRegex
	NodeTernary
	NodeRange
	NodeAttributeAccess
	NodeIndexedAccess
	NodeExpand
	NodeFunctionCall
	NodeSubquery
	NodeNop

	numNodeTypes
)

// unbounded marks a node type without a maximum child count.
const unbounded = -1

// typeInfo describes the serialized name and child arity of a node type.
type typeInfo struct {
	name     string
	min, max int
}

var typeInfos = [numNodeTypes]typeInfo{
	NodeRoot:            {"root", 1, unbounded},
	NodeFor:             {"for", 2, 2},
	NodeLet:             {"let", 2, 2},
	NodeFilter:          {"filter", 1, 1},
	NodeReturn:          {"return", 1, 1},
	NodeCollect:         {"collect", 1, unbounded},
	NodeCollectCount:    {"collect count", 1, 1},
	NodeAssign:          {"assign", 2, 2},
	NodeSort:            {"sort", 1, unbounded},
	NodeSortElement:     {"sort element", 1, 1},
	NodeLimit:           {"limit", 2, 2},
	NodeInsert:          {"insert", 3, 3},
	NodeUpdate:          {"update", 4, 4},
	NodeReplace:         {"replace", 4, 4},
	NodeRemove:          {"remove", 3, 3},
	NodeUpsert:          {"upsert", 5, 5},
	NodeVariable:        {"variable", 0, 0},
	NodeReference:       {"reference", 0, 0},
	NodeCollection:      {"collection", 0, 0},
	NodeParameter:       {"parameter", 0, 0},
	NodeValue:           {"value", 0, 0},
	NodeArray:           {"array", 0, unbounded},
	NodeObject:          {"object", 0, unbounded},
	NodeObjectElement:   {"object element", 1, 1},
	NodeUnaryNot:        {"unary not", 1, 1},
	NodeUnaryMinus:      {"unary minus", 1, 1},
	NodeUnaryPlus:       {"unary plus", 1, 1},
	NodeBinaryAnd:       {"logical and", 2, 2},
	NodeBinaryOr:        {"logical or", 2, 2},
	NodeBinaryPlus:      {"plus", 2, 2},
	NodeBinaryMinus:     {"minus", 2, 2},
	NodeBinaryTimes:     {"times", 2, 2},
	NodeBinaryDiv:       {"division", 2, 2},
	NodeBinaryMod:       {"modulus", 2, 2},
	NodeBinaryEq:        {"compare ==", 2, 2},
	NodeBinaryNe:        {"compare !=", 2, 2},
	NodeBinaryLt:        {"compare <", 2, 2},
	NodeBinaryLe:        {"compare <=", 2, 2},
	NodeBinaryGt:        {"compare >", 2, 2},
	NodeBinaryGe:        {"compare >=", 2, 2},
	NodeBinaryIn:        {"compare in", 2, 2},
	NodeBinaryNotIn:     {"compare not in", 2, 2},
	NodeBinaryLike:      {"like", 2, 2},
	NodeBinaryRegex:     {"regex match", 2, 2},
	NodeBinaryNotRegex:  {"regex not match", 2, 2},
	NodeTernary:         {"ternary", 3, 3},
	NodeRange:           {"range", 2, 2},
	NodeAttributeAccess: {"attribute access", 1, 1},
	NodeIndexedAccess:   {"indexed access", 2, 2},
	NodeExpand:          {"expand", 1, 1},
	NodeFunctionCall:    {"function call", 0, unbounded},
	NodeSubquery:        {"subquery", 1, unbounded},
	NodeNop:             {"no-op", 0, 0},
}

// String returns the serialized name of the node type.
func (t NodeType) String() string {
	if t < numNodeTypes {
		return typeInfos[t].name
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Arity returns the minimum and maximum child count; max is -1 if unbounded.
func (t NodeType) Arity() (int, int) {
	info := typeInfos[t]
	return info.min, info.max
}

// namedTypes carry their payload as a name rather than a value.
func (t NodeType) named() bool {
	switch t {
	case NodeVariable, NodeReference, NodeCollection, NodeParameter,
		NodeObjectElement, NodeAttributeAccess, NodeFunctionCall:
		return true
	}
	return false
}

// ValueKind tags the scalar stored in a Value.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueNull
	ValueBool
	ValueInt
	ValueDouble
	ValueString
)

// Value is the immutable payload of a leaf node.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Int    int64
	Double float64
	String string
}

func Null() Value            { return Value{Kind: ValueNull} }
func Bool(b bool) Value      { return Value{Kind: ValueBool, Bool: b} }
func Int(i int64) Value      { return Value{Kind: ValueInt, Int: i} }
func Double(f float64) Value { return Value{Kind: ValueDouble, Double: f} }
func String(s string) Value  { return Value{Kind: ValueString, String: s} }
func Name(s string) Value    { return Value{Kind: ValueString, String: s} }

// appendJSON appends the canonical JSON encoding of v.
func (v Value) appendJSON(buf []byte) []byte {
	switch v.Kind {
	case ValueBool:
		return strconv.AppendBool(buf, v.Bool)
	case ValueInt:
		return strconv.AppendInt(buf, v.Int, 10)
	case ValueDouble:
		return strconv.AppendFloat(buf, v.Double, 'g', -1, 64)
	case ValueString:
		return appendJSONString(buf, v.String)
	default:
		return append(buf, "null"...)
	}
}

// Position is the source location at which a node was recognized.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based
	Column int // 0-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column+1)
}

// Handle addresses a node inside its Arena.
type Handle int32

// NoNode is the zero handle that addresses nothing.
const NoNode Handle = -1

// Valid reports whether h addresses a node.
func (h Handle) Valid() bool {
	return h >= 0
}

// Node is one entry of the arena.
type Node struct {
	Type     NodeType
	Pos      Position
	Value    Value
	children []Handle
	sealed   bool
	attached bool
}

// LimitError reports that a configured resource limit was reached.
type LimitError struct {
	Limit string // human name of the limit
	Max   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s of %d exceeded", e.Limit, e.Max)
}

// Arena owns every node of one parse session.
type Arena struct {
	nodes    []Node
	maxNodes int
	frozen   bool
}

// NewArena creates an arena. maxNodes <= 0 means unlimited.
func NewArena(maxNodes int) *Arena {
	return &Arena{
		nodes:    make([]Node, 0, 64),
		maxNodes: maxNodes,
	}
}

// Len returns the number of allocated nodes.
func (a *Arena) Len() int {
	return len(a.nodes)
}

// CreateNode allocates a node and returns its handle. It fails with a
// *LimitError once the configured node budget is spent.
func (a *Arena) CreateNode(t NodeType, pos Position, v Value) (Handle, error) {
	perrors.Assert(!a.frozen, "node allocated in a frozen arena")
	perrors.Assert(t < numNodeTypes, "invalid node type %d", t)

	if a.maxNodes > 0 && len(a.nodes) >= a.maxNodes {
		return NoNode, &LimitError{Limit: "maximum number of AST nodes", Max: a.maxNodes}
	}

	a.nodes = append(a.nodes, Node{Type: t, Pos: pos, Value: v})
	h := Handle(len(a.nodes) - 1)

	if _, max := t.Arity(); max == 0 {
		a.nodes[h].sealed = true
	}
	return h, nil
}

func (a *Arena) node(h Handle) *Node {
	perrors.Assert(h >= 0 && int(h) < len(a.nodes), "invalid node handle %d", h)
	return &a.nodes[h]
}

// AddChild appends child to parent. Attaching to a sealed parent, going
// past the parent's maximum arity, or attaching a node twice panics.
func (a *Arena) AddChild(parent, child Handle) {
	p := a.node(parent)
	c := a.node(child)

	perrors.Assert(parent != child, "node %d attached to itself", parent)
	perrors.Assert(!p.sealed, "child added to sealed %s node", p.Type)
	perrors.Assert(!c.attached, "%s node attached twice", c.Type)
	_, max := p.Type.Arity()
	perrors.Assert(max == unbounded || len(p.children) < max,
		"%s node accepts at most %d children", p.Type, max)

	p.children = append(p.children, child)
	c.attached = true
}

// Seal marks a node complete. The node must have at least the minimum
// number of children its type requires.
func (a *Arena) Seal(h Handle) {
	n := a.node(h)
	min, _ := n.Type.Arity()
	perrors.Assert(len(n.children) >= min,
		"%s node requires %d children, has %d", n.Type, min, len(n.children))
	n.sealed = true
}

// Freeze seals the arena: no further nodes may be allocated. Every node
// must already be sealed.
func (a *Arena) Freeze() {
	for i := range a.nodes {
		perrors.Assert(a.nodes[i].sealed, "%s node %d left unsealed", a.nodes[i].Type, i)
	}
	a.frozen = true
}

// Type returns the node type of h.
func (a *Arena) Type(h Handle) NodeType {
	return a.node(h).Type
}

// Pos returns the source position of h.
func (a *Arena) Pos(h Handle) Position {
	return a.node(h).Pos
}

// Value returns the payload of h.
func (a *Arena) Value(h Handle) Value {
	return a.node(h).Value
}

// NumChildren returns the number of children of h.
func (a *Arena) NumChildren(h Handle) int {
	return len(a.node(h).children)
}

// Child returns the i-th child of h.
func (a *Arena) Child(h Handle, i int) Handle {
	n := a.node(h)
	perrors.Assert(i >= 0 && i < len(n.children), "child index %d out of range for %s", i, n.Type)
	return n.children[i]
}

// Children returns a copy of the children of h.
func (a *Arena) Children(h Handle) []Handle {
	n := a.node(h)
	out := make([]Handle, len(n.children))
	copy(out, n.children)
	return out
}

// IsSealed reports whether h can no longer change.
func (a *Arena) IsSealed(h Handle) bool {
	return a.node(h).sealed
}

// IsConstant reports whether h can be evaluated at compile time: scalar
// values, and arrays and objects built only from them.
func (a *Arena) IsConstant(h Handle) bool {
	stack := []Handle{h}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := a.node(cur)
		switch n.Type {
		case NodeValue:
		case NodeArray, NodeObject, NodeObjectElement:
			stack = append(stack, n.children...)
		default:
			return false
		}
	}
	return true
}

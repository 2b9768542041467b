package parser

import (
	"github.com/sambeau/aql/pkg/aql/ast"
	perrors "github.com/sambeau/aql/pkg/aql/errors"
)

// frame is an array or object literal under construction.
type frame struct {
	node   ast.Handle
	kind   ast.NodeType // NodeArray or NodeObject
	key    string       // pending object key, set before its value is parsed
	keyPos ast.Position
	hasKey bool
}

// Stack assembles nested array and object literals without recursion. It
// holds one frame per open bracket; maxDepth > 0 bounds the frame count.
type Stack struct {
	arena    *ast.Arena
	frames   []frame
	maxDepth int
}

// NewStack creates a construction stack allocating from arena.
func NewStack(arena *ast.Arena, maxDepth int) *Stack {
	return &Stack{arena: arena, maxDepth: maxDepth}
}

// Depth returns the number of open frames.
func (s *Stack) Depth() int {
	return len(s.frames)
}

func (s *Stack) begin(kind ast.NodeType, pos ast.Position) error {
	if s.maxDepth > 0 && len(s.frames) >= s.maxDepth {
		return &ast.LimitError{Limit: "maximum nesting depth", Max: s.maxDepth}
	}
	h, err := s.arena.CreateNode(kind, pos, ast.Value{})
	if err != nil {
		return err
	}
	s.frames = append(s.frames, frame{node: h, kind: kind})
	return nil
}

// BeginArray opens an array frame.
func (s *Stack) BeginArray(pos ast.Position) error {
	return s.begin(ast.NodeArray, pos)
}

// BeginObject opens an object frame.
func (s *Stack) BeginObject(pos ast.Position) error {
	return s.begin(ast.NodeObject, pos)
}

func (s *Stack) top() *frame {
	perrors.Assert(len(s.frames) > 0, "construction stack is empty")
	return &s.frames[len(s.frames)-1]
}

// TopKind returns NodeArray or NodeObject for the innermost frame.
func (s *Stack) TopKind() ast.NodeType {
	return s.top().kind
}

// PushElement appends a value to the innermost array frame.
func (s *Stack) PushElement(h ast.Handle) {
	f := s.top()
	perrors.Assert(f.kind == ast.NodeArray, "array element pushed onto %s frame", f.kind)
	s.arena.AddChild(f.node, h)
}

// SetKey records the key of the object field whose value is parsed next.
func (s *Stack) SetKey(name string, pos ast.Position) {
	f := s.top()
	perrors.Assert(f.kind == ast.NodeObject, "object key set on %s frame", f.kind)
	perrors.Assert(!f.hasKey, "object key %q set twice", name)
	f.key, f.keyPos, f.hasKey = name, pos, true
}

// PushField appends a named value to the innermost object frame.
func (s *Stack) PushField(name string, pos ast.Position, h ast.Handle) error {
	f := s.top()
	perrors.Assert(f.kind == ast.NodeObject, "object field pushed onto %s frame", f.kind)

	el, err := s.arena.CreateNode(ast.NodeObjectElement, pos, ast.Name(name))
	if err != nil {
		return err
	}
	s.arena.AddChild(el, h)
	s.arena.Seal(el)
	s.arena.AddChild(f.node, el)
	return nil
}

// Push appends h to the innermost frame: as an element of an array, or as
// the value of the pending key of an object.
func (s *Stack) Push(h ast.Handle) error {
	f := s.top()
	if f.kind == ast.NodeArray {
		s.PushElement(h)
		return nil
	}

	perrors.Assert(f.hasKey, "object value pushed without a key")
	name, pos := f.key, f.keyPos
	f.key, f.hasKey = "", false
	return s.PushField(name, pos, h)
}

func (s *Stack) end(kind ast.NodeType) ast.Handle {
	f := s.top()
	perrors.Assert(f.kind == kind, "closing %s frame as %s", f.kind, kind)
	perrors.Assert(!f.hasKey, "object closed with pending key %q", f.key)

	s.frames = s.frames[:len(s.frames)-1]
	s.arena.Seal(f.node)
	return f.node
}

// EndArray closes the innermost array frame and returns the finished node.
func (s *Stack) EndArray() ast.Handle {
	return s.end(ast.NodeArray)
}

// EndObject closes the innermost object frame and returns the finished node.
func (s *Stack) EndObject() ast.Handle {
	return s.end(ast.NodeObject)
}

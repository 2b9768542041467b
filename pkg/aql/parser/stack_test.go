package parser

import (
	"errors"
	"testing"

	"github.com/sambeau/aql/pkg/aql/ast"
	perrors "github.com/sambeau/aql/pkg/aql/errors"
)

func value(t *testing.T, a *ast.Arena, i int64) ast.Handle {
	t.Helper()
	h, err := a.CreateNode(ast.NodeValue, ast.Position{}, ast.Int(i))
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func expectStackPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if _, ok := recover().(*perrors.ProgrammerError); !ok {
			t.Fatal("expected *ProgrammerError panic")
		}
	}()
	fn()
}

func TestStackBuildsNestedArrays(t *testing.T) {
	a := ast.NewArena(0)
	s := NewStack(a, 0)

	// [1, [2, 3], 4]
	if err := s.BeginArray(ast.Position{}); err != nil {
		t.Fatal(err)
	}
	s.PushElement(value(t, a, 1))
	if err := s.BeginArray(ast.Position{}); err != nil {
		t.Fatal(err)
	}
	s.PushElement(value(t, a, 2))
	s.PushElement(value(t, a, 3))
	inner := s.EndArray()
	if err := s.Push(inner); err != nil {
		t.Fatal(err)
	}
	s.PushElement(value(t, a, 4))
	outer := s.EndArray()

	if s.Depth() != 0 {
		t.Errorf("Depth() = %d after closing every frame", s.Depth())
	}
	if a.NumChildren(outer) != 3 || a.NumChildren(inner) != 2 {
		t.Errorf("children = %d/%d, want 3/2", a.NumChildren(outer), a.NumChildren(inner))
	}
	if a.Child(outer, 1) != inner {
		t.Error("inner array is not the second element")
	}
	if !a.IsSealed(outer) || !a.IsSealed(inner) {
		t.Error("finished literals must be sealed")
	}
}

func TestStackObjects(t *testing.T) {
	a := ast.NewArena(0)
	s := NewStack(a, 0)

	if err := s.BeginObject(ast.Position{}); err != nil {
		t.Fatal(err)
	}
	s.SetKey("b", ast.Position{})
	if err := s.Push(value(t, a, 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.PushField("a", ast.Position{}, value(t, a, 2)); err != nil {
		t.Fatal(err)
	}
	obj := s.EndObject()

	want := `{"type":"object","subNodes":[` +
		`{"type":"object element","name":"b","subNodes":[{"type":"value","value":1}]},` +
		`{"type":"object element","name":"a","subNodes":[{"type":"value","value":2}]}]}`
	if got := string(a.Serialize(obj)); got != want {
		t.Errorf("Serialize() =\n%s\nwant\n%s", got, want)
	}
}

func TestStackMaxDepth(t *testing.T) {
	a := ast.NewArena(0)
	s := NewStack(a, 2)

	for i := 0; i < 2; i++ {
		if err := s.BeginArray(ast.Position{}); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}

	err := s.BeginObject(ast.Position{})
	var le *ast.LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LimitError, got %v", err)
	}
	if s.Depth() != 2 {
		t.Errorf("Depth() = %d, a rejected frame must not be pushed", s.Depth())
	}
}

func TestStackAssertions(t *testing.T) {
	t.Run("push with no frame", func(t *testing.T) {
		a := ast.NewArena(0)
		s := NewStack(a, 0)
		expectStackPanic(t, func() { s.PushElement(value(t, a, 1)) })
	})

	t.Run("end with no frame", func(t *testing.T) {
		s := NewStack(ast.NewArena(0), 0)
		expectStackPanic(t, func() { s.EndArray() })
	})

	t.Run("mismatched close", func(t *testing.T) {
		s := NewStack(ast.NewArena(0), 0)
		_ = s.BeginArray(ast.Position{})
		expectStackPanic(t, func() { s.EndObject() })
	})

	t.Run("object value without key", func(t *testing.T) {
		a := ast.NewArena(0)
		s := NewStack(a, 0)
		_ = s.BeginObject(ast.Position{})
		expectStackPanic(t, func() { _ = s.Push(value(t, a, 1)) })
	})

	t.Run("element pushed onto object", func(t *testing.T) {
		a := ast.NewArena(0)
		s := NewStack(a, 0)
		_ = s.BeginObject(ast.Position{})
		expectStackPanic(t, func() { s.PushElement(value(t, a, 1)) })
	})
}

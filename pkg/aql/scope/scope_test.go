package scope

import (
	"errors"
	"reflect"
	"testing"

	perrors "github.com/sambeau/aql/pkg/aql/errors"
)

func TestDeclare(t *testing.T) {
	tr := New()
	tr.Enter(KindMain)

	if err := tr.Declare("x", 1); err != nil {
		t.Fatalf("first declaration failed: %v", err)
	}

	err := tr.Declare("x", 2)
	var dup *DuplicateVariableError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateVariableError, got %v", err)
	}
	if dup.Name != "x" {
		t.Errorf("Name = %q", dup.Name)
	}
}

func TestShadowingAcrossScopes(t *testing.T) {
	tr := New()
	tr.Enter(KindMain)
	if err := tr.Declare("x", 1); err != nil {
		t.Fatal(err)
	}

	tr.Enter(KindSubquery)
	if err := tr.Declare("x", 2); err != nil {
		t.Fatalf("shadowing should be legal: %v", err)
	}
	if h, _ := tr.Lookup("x"); h != 2 {
		t.Errorf("Lookup(x) = %d, want inner declaration", h)
	}

	tr.Leave()
	if h, _ := tr.Lookup("x"); h != 1 {
		t.Errorf("Lookup(x) = %d after leaving, want outer declaration", h)
	}
}

func TestIsInSubquery(t *testing.T) {
	tr := New()
	tr.Enter(KindMain)
	tr.Enter(KindFor)
	if tr.IsInSubquery() {
		t.Error("FOR scope is not a subquery")
	}

	tr.Enter(KindSubquery)
	tr.Enter(KindFor)
	if !tr.IsInSubquery() {
		t.Error("expected to be inside a subquery")
	}

	tr.LeaveNested()
	tr.Leave()
	if tr.IsInSubquery() {
		t.Error("subquery scope should be closed")
	}
}

func TestLeaveNested(t *testing.T) {
	tr := New()
	tr.Enter(KindMain)
	tr.Enter(KindFor)
	tr.Enter(KindFor)
	tr.Enter(KindCollect)

	if n := tr.LeaveNested(); n != 3 {
		t.Errorf("LeaveNested() = %d, want 3", n)
	}
	if tr.Current().Kind != KindMain {
		t.Errorf("current scope = %s, want main", tr.Current().Kind)
	}
	tr.Leave()
	if tr.NumActive() != 0 {
		t.Errorf("NumActive() = %d", tr.NumActive())
	}
}

func TestLeaveEmptyPanics(t *testing.T) {
	defer func() {
		if _, ok := recover().(*perrors.ProgrammerError); !ok {
			t.Fatal("expected *ProgrammerError")
		}
	}()
	New().Leave()
}

func TestCollectHidesLoopVariables(t *testing.T) {
	tr := New()
	tr.Enter(KindMain)
	_ = tr.Declare("limit", 1)
	tr.Enter(KindFor)
	_ = tr.Declare("doc", 2)
	tr.Enter(KindCollect)
	_ = tr.Declare("group", 3)

	tests := []struct {
		name    string
		visible bool
	}{
		{"group", true},
		{"doc", false},
		{"limit", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tr.Lookup(tt.name); ok != tt.visible {
				t.Errorf("Lookup(%q) visible = %v, want %v", tt.name, ok, tt.visible)
			}
		})
	}

	if got := tr.VariableNames(); !reflect.DeepEqual(got, []string{"group", "limit"}) {
		t.Errorf("VariableNames() = %v", got)
	}
}

func TestDepth(t *testing.T) {
	tr := New()
	if tr.Depth() != -1 {
		t.Errorf("Depth() = %d on empty tracker", tr.Depth())
	}
	s := tr.Enter(KindMain)
	if s.Depth != 0 || tr.Depth() != 0 {
		t.Errorf("main depth = %d/%d", s.Depth, tr.Depth())
	}
	s = tr.Enter(KindSubquery)
	if s.Depth != 1 {
		t.Errorf("subquery depth = %d", s.Depth)
	}
}

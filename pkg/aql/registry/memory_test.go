package registry

import "testing"

func TestMemoryEviction(t *testing.T) {
	m := newMemory(2)
	a, b, c := &Entry{Key: "a"}, &Entry{Key: "b"}, &Entry{Key: "c"}

	m.set("a", a)
	m.set("b", b)
	if _, ok := m.get("a"); !ok {
		t.Fatal("a missing")
	}
	m.set("c", c) // evicts b, the least recently used

	if _, ok := m.get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := m.get(k); !ok {
			t.Errorf("%s missing", k)
		}
	}
	if m.len() != 2 {
		t.Errorf("len() = %d, want 2", m.len())
	}
}

func TestMemoryReplace(t *testing.T) {
	m := newMemory(2)
	m.set("a", &Entry{Type: "read"})
	m.set("a", &Entry{Type: "insert"})

	e, _ := m.get("a")
	if e.Type != "insert" || m.len() != 1 {
		t.Errorf("replace kept %q with len %d", e.Type, m.len())
	}

	m.remove("a")
	m.clear()
	if m.len() != 0 {
		t.Error("clear() left entries")
	}
}

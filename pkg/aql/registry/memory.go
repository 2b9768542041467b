package registry

import (
	"container/list"
	"sync"
)

type memoryItem struct {
	key   string
	entry *Entry
}

// memory is a thread-safe LRU of entries. Once capacity is reached the
// least recently used entry is evicted.
type memory struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

func newMemory(capacity int) *memory {
	return &memory{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (m *memory) get(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	m.ll.MoveToFront(el)
	return el.Value.(*memoryItem).entry, true
}

func (m *memory) set(key string, e *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		el.Value.(*memoryItem).entry = e
		m.ll.MoveToFront(el)
		return
	}

	if m.ll.Len() >= m.capacity {
		m.evictLocked()
	}
	m.items[key] = m.ll.PushFront(&memoryItem{key: key, entry: e})
}

func (m *memory) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.ll.Remove(el)
		delete(m.items, key)
	}
}

func (m *memory) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ll.Init()
	m.items = make(map[string]*list.Element, m.capacity)
}

func (m *memory) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

// evictLocked removes the least recently used entry. m.mu must be held.
func (m *memory) evictLocked() {
	el := m.ll.Back()
	if el == nil {
		return
	}
	m.ll.Remove(el)
	delete(m.items, el.Value.(*memoryItem).key)
}

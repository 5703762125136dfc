package corecache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/reading"
)

type memoryEntry struct {
	key      string
	value    reading.CoreReading
	storedAt time.Time
}

// Memory is the process-local backend.
type Memory struct {
	mu    sync.Mutex
	opts  Options
	now   func() time.Time
	order *list.List
	items map[string]*list.Element
}

// NewMemory creates an in-process cache.
func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:  opts.withDefaults(),
		now:   time.Now,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// WithClock replaces the time source. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) (reading.CoreReading, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return reading.CoreReading{}, false, nil
	}
	entry := el.Value.(*memoryEntry)
	if m.now().Sub(entry.storedAt) > m.opts.TTL {
		m.remove(el)
		return reading.CoreReading{}, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Put(_ context.Context, key string, value reading.CoreReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.storedAt = m.now()
		return nil
	}

	m.items[key] = m.order.PushBack(&memoryEntry{key: key, value: value, storedAt: m.now()})
	for m.order.Len() > m.opts.Capacity {
		m.remove(m.order.Front())
	}
	return nil
}

func (m *Memory) Evict(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Sweep drops expired entries and reports how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for el := m.order.Front(); el != nil; {
		next := el.Next()
		if now.Sub(el.Value.(*memoryEntry).storedAt) > m.opts.TTL {
			m.remove(el)
			removed++
		}
		el = next
	}
	return removed
}

func (m *Memory) remove(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	delete(m.items, entry.key)
	m.order.Remove(el)
}

// Package nav abstracts the navigation surface the client core drives:
// where the user currently is, the query string they arrived with, and the
// two kinds of navigation the core performs (in-app replace and top-level
// assign to an external URL). The embedding page layer supplies the real
// implementation; Memory backs the standalone binary and tests.
package nav

import (
	"net/url"
	"sync"
)

type Navigator interface {
	// Path returns the current in-app path, without query string.
	Path() string
	// Query returns the current query values.
	Query() url.Values
	// Replace navigates to an in-app path replacing the current history
	// entry, so the guarded page never lands in the back stack.
	Replace(path string)
	// Assign performs a full top-level navigation, typically to an external
	// payment authorization URL.
	Assign(rawURL string)
}

// Memory records navigations instead of performing them.
type Memory struct {
	mu       sync.Mutex
	path     string
	query    url.Values
	replaced []string
	assigned []string
}

func NewMemory(path string) *Memory {
	return &Memory{path: path, query: url.Values{}}
}

// SetLocation moves the navigator to a new location, as if the embedder had
// loaded a page.
func (m *Memory) SetLocation(path string, query url.Values) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = path
	if query == nil {
		query = url.Values{}
	}
	m.query = query
}

func (m *Memory) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

func (m *Memory) Query() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := url.Values{}
	for k, vs := range m.query {
		q[k] = append([]string(nil), vs...)
	}
	return q
}

func (m *Memory) Replace(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = path
	m.query = url.Values{}
	m.replaced = append(m.replaced, path)
}

func (m *Memory) Assign(rawURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigned = append(m.assigned, rawURL)
}

// Replaced returns every in-app replace navigation performed so far.
func (m *Memory) Replaced() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.replaced...)
}

// Assigned returns every top-level navigation performed so far.
func (m *Memory) Assigned() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.assigned...)
}

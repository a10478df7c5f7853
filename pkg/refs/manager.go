// Package refs hands out component references and unnamed net names within
// a tree of scopes. Each scope records only into its own set; lookups read
// the sets of every scope in the tree so that references stay unique in the
// flattened design.
package refs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrAlreadyExists is returned when a reference is invalid or already in use.
	ErrAlreadyExists = errors.New("refs: reference already exists")
	// ErrInvalidFormat is returned for prefixes that do not start with a letter.
	ErrInvalidFormat = errors.New("refs: invalid reference format")
	// ErrGenerationFailed is returned when no free reference was found.
	ErrGenerationFailed = errors.New("refs: reference generation failed")
)

// MaxAttempts bounds the candidates tried by GenerateNextReference.
const MaxAttempts = 10000

// Manager tracks the references used in one scope.
type Manager struct {
	mu       *sync.RWMutex // shared by the whole tree
	parent   *Manager
	children []*Manager
	used     map[string]struct{}
	counters map[string]int
	netSeq   int
}

// NewManager returns an empty root scope.
func NewManager() *Manager {
	return newScope(&sync.RWMutex{}, nil)
}

func newScope(mu *sync.RWMutex, parent *Manager) *Manager {
	return &Manager{
		mu:       mu,
		parent:   parent,
		used:     make(map[string]struct{}),
		counters: make(map[string]int),
		netSeq:   1,
	}
}

// NewChild returns a nested scope. References registered in the child are
// recorded in the child only but are visible to validation in every scope
// of the tree.
func (m *Manager) NewChild() *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := newScope(m.mu, m)
	m.children = append(m.children, c)
	return c
}

// Parent returns the enclosing scope, or nil for a root.
func (m *Manager) Parent() *Manager {
	return m.parent
}

// ValidateReference reports whether ref is well formed and unused in this
// scope, its ancestors and their other descendants.
func (m *Manager) ValidateReference(ref string) bool {
	if !IsValidFormat(ref) {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.inUseLocked(ref)
}

func (m *Manager) root() *Manager {
	r := m
	for r.parent != nil {
		r = r.parent
	}
	return r
}

func (m *Manager) inUseLocked(ref string) bool {
	return m.root().holds(ref)
}

func (m *Manager) holds(ref string) bool {
	if _, ok := m.used[ref]; ok {
		return true
	}
	for _, c := range m.children {
		if c.holds(ref) {
			return true
		}
	}
	return false
}

// RegisterReference records ref in this scope.
func (m *Manager) RegisterReference(ref string) error {
	if !IsValidFormat(ref) {
		return fmt.Errorf("%w: %q is not a valid reference", ErrAlreadyExists, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inUseLocked(ref) {
		return fmt.Errorf("%w: %q", ErrAlreadyExists, ref)
	}
	m.used[ref] = struct{}{}
	return nil
}

// GenerateNextReference returns and registers the next free reference for
// prefix, continuing from the last number this scope handed out for it.
func (m *Manager) GenerateNextReference(prefix string) (string, error) {
	if prefix == "" || !isLetter(prefix[0]) || !IsValidFormat(prefix) {
		return "", fmt.Errorf("%w: prefix %q", ErrInvalidFormat, prefix)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.counters[prefix]
	if n < 1 {
		n = 1
	}
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s%d", prefix, n+attempt)
		if m.inUseLocked(candidate) {
			continue
		}
		m.used[candidate] = struct{}{}
		m.counters[prefix] = n + attempt + 1
		return candidate, nil
	}
	return "", fmt.Errorf("%w: prefix %q after %d attempts", ErrGenerationFailed, prefix, MaxAttempts)
}

// GenerateNextUnnamedNetName returns "N$<n>" with n increasing on every call.
func (m *Manager) GenerateNextUnnamedNetName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := fmt.Sprintf("N$%d", m.netSeq)
	m.netSeq++
	return name
}

// Used returns the references registered in this scope, sorted.
func (m *Manager) Used() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.used))
	for ref := range m.used {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// Reset forgets every reference and counter of this scope. Other scopes are
// untouched and the unnamed net sequence keeps counting.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used = make(map[string]struct{})
	m.counters = make(map[string]int)
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

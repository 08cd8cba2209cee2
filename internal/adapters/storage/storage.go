// Package storage implements browser.Storage backends: an in-memory map for
// session-scoped storage, BadgerDB for persistent storage, and wrappers for
// key namespacing and blocked storage.
package storage

import (
	"errors"
	"sync"

	"github.com/okian/convtrack/internal/domain/browser"
)

// ErrStorageUnavailable is returned by backends that refuse access, the way
// browsers throw on storage access in private modes.
var ErrStorageUnavailable = errors.New("storage unavailable")

var (
	_ browser.Storage = (*Memory)(nil)
	_ browser.Storage = (*Badger)(nil)
	_ browser.Storage = (*Namespaced)(nil)
	_ browser.Storage = Blocked{}
)

// Memory is a concurrency-safe in-memory storage.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty Memory storage.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Blocked fails every call with ErrStorageUnavailable.
type Blocked struct{}

func (Blocked) Get(string) (string, bool, error) { return "", false, ErrStorageUnavailable }
func (Blocked) Set(string, string) error         { return ErrStorageUnavailable }
func (Blocked) Remove(string) error              { return ErrStorageUnavailable }

// Namespaced prefixes every key, so several visitors can share one backend.
type Namespaced struct {
	prefix string
	next   browser.Storage
}

// NewNamespaced wraps next with keys prefixed by prefix and a colon.
func NewNamespaced(prefix string, next browser.Storage) *Namespaced {
	return &Namespaced{prefix: prefix + ":", next: next}
}

func (n *Namespaced) Get(key string) (string, bool, error) { return n.next.Get(n.prefix + key) }
func (n *Namespaced) Set(key, value string) error          { return n.next.Set(n.prefix+key, value) }
func (n *Namespaced) Remove(key string) error              { return n.next.Remove(n.prefix + key) }

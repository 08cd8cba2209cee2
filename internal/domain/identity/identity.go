// Package identity issues the opaque session and anonymous visitor tokens
// attached to every event.
package identity

import (
	"sync"

	"github.com/google/uuid"
	"github.com/okian/convtrack/internal/domain/browser"
	"github.com/okian/convtrack/internal/domain/schema"
)

// Storage keys.
const (
	SessionKey   = "analytics_session_id"
	AnonymousKey = "analytics_anon_id"
)

// Identity lazily creates and caches both tokens. When a storage is blocked
// the token lives only as long as the Identity.
type Identity struct {
	session browser.Storage
	local   browser.Storage
	newID   func() string

	mu          sync.Mutex
	sessionID   string
	anonymousID string
	returning   bool
}

// Option configures an Identity.
type Option func(*Identity)

// WithGenerator replaces the token generator.
func WithGenerator(fn func() string) Option {
	return func(i *Identity) {
		if fn != nil {
			i.newID = fn
		}
	}
}

// New returns an Identity reading session-scoped and persistent storage.
func New(session, local browser.Storage, opts ...Option) *Identity {
	i := &Identity{session: session, local: local, newID: func() string { return uuid.NewString() }}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Identity) load(s browser.Storage, key string) (string, bool) {
	if s == nil {
		return i.newID(), false
	}
	if v, ok, err := s.Get(key); err == nil && ok && v != "" {
		return v, true
	}
	id := i.newID()
	_ = s.Set(key, id)
	return id, false
}

// SessionID returns the per-tab session token.
func (i *Identity) SessionID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sessionID == "" {
		i.sessionID, _ = i.load(i.session, SessionKey)
	}
	return i.sessionID
}

// AnonymousID returns the long-lived visitor token.
func (i *Identity) AnonymousID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.anonymousID == "" {
		i.anonymousID, i.returning = i.load(i.local, AnonymousKey)
	}
	return i.anonymousID
}

// Returning reports whether the anonymous token existed before this page.
func (i *Identity) Returning() bool {
	_ = i.AnonymousID()
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.returning
}

// Base returns the identity fields every event carries.
func (i *Identity) Base() map[string]any {
	return map[string]any{schema.KeySessionID: i.SessionID(), schema.KeyAnonymousID: i.AnonymousID()}
}

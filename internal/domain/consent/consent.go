// Package consent persists the visitor's tracking consent decision and exposes
// the shared gate that decides whether analytics-only events are recorded.
package consent

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/okian/convtrack/internal/domain/browser"
)

// StorageKey is the persistent storage key of the consent record.
const StorageKey = "tracking_consent_v1"

// CurrentVersion is the schema version of the consent record. Records with
// another version are ignored so that visitors are asked again.
const CurrentVersion = 1

// ErrNoStorage is returned by Save when no storage is configured.
var ErrNoStorage = errors.New("consent storage not configured")

// Source records which control produced a decision.
type Source string

const (
	SourceAcceptAll      Source = "accept_all"
	SourceRejectOptional Source = "reject_optional"
	SourceCustomize      Source = "customize"
)

// Categories are the consent categories. Necessary is always true.
type Categories struct {
	Necessary bool `json:"necessary"`
	Analytics bool `json:"analytics"`
	Marketing bool `json:"marketing"`
}

// State is the persisted consent record.
type State struct {
	Version    int        `json:"version" validate:"required"`
	UpdatedAt  int64      `json:"updatedAt" validate:"gt=0"`
	Source     Source     `json:"source" validate:"required,oneof=accept_all reject_optional customize"`
	Categories Categories `json:"categories"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the stored decision. A missing, unreadable, malformed or
// outdated record reports false.
func Load(s browser.Storage) (State, bool) {
	if s == nil {
		return State{}, false
	}
	raw, ok, err := s.Get(StorageKey)
	if err != nil || !ok || raw == "" {
		return State{}, false
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, false
	}
	if st.Version != CurrentVersion {
		return State{}, false
	}
	if err := validate.Struct(st); err != nil {
		return State{}, false
	}
	st.Categories.Necessary = true
	return st, true
}

// Save writes a decision stamped with now. Necessary is forced on. The
// returned state is valid even when the write fails.
func Save(s browser.Storage, cats Categories, src Source, now time.Time) (State, error) {
	cats.Necessary = true
	st := State{Version: CurrentVersion, UpdatedAt: now.UnixMilli(), Source: src, Categories: cats}
	if s == nil {
		return st, ErrNoStorage
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return st, fmt.Errorf("encode consent: %w", err)
	}
	if err := s.Set(StorageKey, string(raw)); err != nil {
		return st, fmt.Errorf("store consent: %w", err)
	}
	return st, nil
}

// Clear removes the stored decision.
func Clear(s browser.Storage) error {
	if s == nil {
		return ErrNoStorage
	}
	return s.Remove(StorageKey)
}

// Gate is the single shared switch for analytics-only events.
type Gate struct {
	granted atomic.Bool
}

// Granted reports whether analytics consent is in effect.
func (g *Gate) Granted() bool { return g != nil && g.granted.Load() }

// Set changes the gate. It takes effect for the next tracked event.
func (g *Gate) Set(granted bool) { g.granted.Store(granted) }

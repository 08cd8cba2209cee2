package consent

import (
	"context"
	"sync"
	"time"

	"github.com/okian/convtrack/internal/domain/browser"
	"github.com/okian/convtrack/pkg/logger"
)

// Phase is the consent UI state.
type Phase int

const (
	// PhaseUninitialized means Init has not run.
	PhaseUninitialized Phase = iota
	// PhaseModalOpen means the visitor must be asked.
	PhaseModalOpen
	// PhaseDecided means a current decision exists; the UI shows only the
	// "manage consent" affordance.
	PhaseDecided
)

func (p Phase) String() string {
	switch p {
	case PhaseModalOpen:
		return "modal_open"
	case PhaseDecided:
		return "decided"
	default:
		return "uninitialized"
	}
}

// Manager drives the consent state machine and keeps the gate in sync with
// the stored decision.
type Manager struct {
	storage browser.Storage
	gate    *Gate
	now     func() time.Time
	log     logger.Logger

	mu        sync.Mutex
	phase     Phase
	state     State
	decided   bool
	listeners []func(State)
}

// NewManager returns a manager over storage that drives gate.
func NewManager(storage browser.Storage, gate *Gate, now func() time.Time) *Manager {
	if gate == nil {
		gate = &Gate{}
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{storage: storage, gate: gate, now: now, log: logger.OrNop().Named("consent")}
}

// Gate returns the gate driven by the manager.
func (m *Manager) Gate() *Gate { return m.gate }

// OnChange registers fn to run after every decision.
func (m *Manager) OnChange(fn func(State)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Init loads the stored decision and returns the resulting phase.
func (m *Manager) Init() Phase {
	st, ok := Load(m.storage)
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.state, m.decided, m.phase = st, true, PhaseDecided
		m.gate.Set(st.Categories.Analytics)
		return m.phase
	}
	m.gate.Set(false)
	m.phase = PhaseModalOpen
	return m.phase
}

// Phase returns the current phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// State returns the current decision, if any.
func (m *Manager) State() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.decided
}

// AcceptAll grants every category.
func (m *Manager) AcceptAll() State {
	return m.decide(Categories{Analytics: true, Marketing: true}, SourceAcceptAll)
}

// RejectOptional keeps only necessary storage.
func (m *Manager) RejectOptional() State {
	return m.decide(Categories{}, SourceRejectOptional)
}

// Customize stores an explicit category selection.
func (m *Manager) Customize(c Categories) State {
	return m.decide(c, SourceCustomize)
}

// Reopen shows the modal again without discarding the current decision.
func (m *Manager) Reopen() {
	m.mu.Lock()
	m.phase = PhaseModalOpen
	m.mu.Unlock()
}

func (m *Manager) decide(c Categories, src Source) State {
	st, err := Save(m.storage, c, src, m.now())
	if err != nil {
		m.log.Debug(context.Background(), "consent not persisted", logger.Error(err))
	}
	m.mu.Lock()
	m.state, m.decided, m.phase = st, true, PhaseDecided
	m.gate.Set(st.Categories.Analytics)
	fns := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
	return st
}

package sessionmon

import (
	"sync"

	"github.com/stephnangue/warrant/core"
)

// SessionState is what the monitor knows about one login session
type SessionState struct {
	Session core.SessionSubject
	Local   bool
	Active  bool
}

// StaticMonitor is an in-memory core.IdentityResolver fed by explicit Set*
// calls. It backs dev mode and tests; a production deployment would put a
// logind- or utmp-backed monitor behind the same interface.
type StaticMonitor struct {
	mu sync.RWMutex

	// users is keyed by subject string form
	users    map[string]core.Identity
	sessions map[string]core.SessionSubject
	states   map[string]SessionState

	// busOwners maps transport names to their owning process
	busOwners map[string]core.ProcessSubject
}

// NewStaticMonitor creates an empty monitor
func NewStaticMonitor() *StaticMonitor {
	return &StaticMonitor{
		users:     make(map[string]core.Identity),
		sessions:  make(map[string]core.SessionSubject),
		states:    make(map[string]SessionState),
		busOwners: make(map[string]core.ProcessSubject),
	}
}

// SetUser records the identity a subject runs as
func (m *StaticMonitor) SetUser(subject core.Subject, identity core.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[subject.String()] = identity
}

// SetSession records the login session a subject belongs to
func (m *StaticMonitor) SetSession(subject core.Subject, session core.SessionSubject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[subject.String()] = session
}

// SetSessionState records a session's locality and activity
func (m *StaticMonitor) SetSessionState(session core.SessionSubject, local, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[session.ID] = SessionState{Session: session, Local: local, Active: active}
}

// SetBusOwner records the process owning a transport name
func (m *StaticMonitor) SetBusOwner(name string, process core.ProcessSubject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busOwners[name] = process
}

// RemoveSubject forgets everything recorded for a subject
func (m *StaticMonitor) RemoveSubject(subject core.Subject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, subject.String())
	delete(m.sessions, subject.String())
}

// RemoveBusOwner forgets a transport name's owner
func (m *StaticMonitor) RemoveBusOwner(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.busOwners, name)
}

// UserForSubject implements core.IdentityResolver
func (m *StaticMonitor) UserForSubject(subject core.Subject) (core.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if identity, ok := m.users[subject.String()]; ok {
		return identity, nil
	}
	// A transport subject may be known only through its owning process
	if busName, ok := subject.(core.BusNameSubject); ok {
		if process, ok := m.busOwners[busName.Name]; ok {
			if identity, ok := m.users[process.String()]; ok {
				return identity, nil
			}
		}
	}
	return core.Identity{}, core.ErrIdentityUnknownf("no identity recorded for %s", subject)
}

// SessionForSubject implements core.IdentityResolver; nil means the subject
// has no login session.
func (m *StaticMonitor) SessionForSubject(subject core.Subject) (*core.SessionSubject, error) {
	if session, ok := subject.(core.SessionSubject); ok {
		return &session, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if session, ok := m.sessions[subject.String()]; ok {
		return &session, nil
	}
	if busName, ok := subject.(core.BusNameSubject); ok {
		if process, ok := m.busOwners[busName.Name]; ok {
			if session, ok := m.sessions[process.String()]; ok {
				return &session, nil
			}
		}
	}
	return nil, nil
}

// IsSessionLocal implements core.IdentityResolver
func (m *StaticMonitor) IsSessionLocal(session core.SessionSubject) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[session.ID].Local
}

// IsSessionActive implements core.IdentityResolver
func (m *StaticMonitor) IsSessionActive(session core.SessionSubject) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[session.ID].Active
}

// ProcessForBusName implements core.IdentityResolver
func (m *StaticMonitor) ProcessForBusName(name string) (*core.ProcessSubject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if process, ok := m.busOwners[name]; ok {
		return &process, nil
	}
	return nil, core.ErrNotFoundf("no process owns transport name %s", name)
}

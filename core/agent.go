package core

import (
	"sync"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/stephnangue/warrant/logger"
)

// AuthenticationAgent is the per-session process responsible for presenting
// challenges to the user. At most one agent exists per session.
type AuthenticationAgent struct {
	session SessionSubject
	locale  string

	// busName is the transport identity that registered the agent; only it
	// may unregister, and its disconnect tears the agent down
	busName string

	// address is the object/address challenges are delivered to
	address string

	// serial distinguishes successive registrations for the same session
	serial string

	transport AgentTransport

	mu       sync.Mutex
	sessions map[string]*AuthenticationSession // by cookie
}

// Session returns the session the agent serves
func (a *AuthenticationAgent) Session() SessionSubject {
	return a.session
}

// Locale returns the locale the agent registered with
func (a *AuthenticationAgent) Locale() string {
	return a.locale
}

// BusName returns the transport identity that registered the agent
func (a *AuthenticationAgent) BusName() string {
	return a.busName
}

// Address returns the address challenges are delivered to
func (a *AuthenticationAgent) Address() string {
	return a.address
}

func (a *AuthenticationAgent) addSession(session *AuthenticationSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[session.cookie] = session
}

func (a *AuthenticationAgent) removeSession(cookie string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, cookie)
}

func (a *AuthenticationAgent) sessionByCookie(cookie string) (*AuthenticationSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	session, ok := a.sessions[cookie]
	return session, ok
}

func (a *AuthenticationAgent) hasCookie(cookie string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sessions[cookie]
	return ok
}

// activeSessions returns a snapshot of the in-flight sessions, so callers
// can cancel them without holding the agent lock.
func (a *AuthenticationAgent) activeSessions() []*AuthenticationSession {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*AuthenticationSession, 0, len(a.sessions))
	for _, session := range a.sessions {
		out = append(out, session)
	}
	return out
}

// ActiveSessionCount returns the number of in-flight challenges
func (a *AuthenticationAgent) ActiveSessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// AuthenticationAgentRegistry tracks at most one registered interactive
// agent per session. It is a process-wide singleton mutated only under its
// own mutex.
type AuthenticationAgentRegistry struct {
	mu     sync.Mutex
	log    logger.Logger
	agents map[string]*AuthenticationAgent // by session id
}

// NewAuthenticationAgentRegistry creates a registry
func NewAuthenticationAgentRegistry(log logger.Logger) *AuthenticationAgentRegistry {
	return &AuthenticationAgentRegistry{
		log:    log,
		agents: make(map[string]*AuthenticationAgent),
	}
}

// Register stores an agent for a session. Registering a second agent for a
// session that already has one is a conflict; the original registration is
// unaffected.
func (r *AuthenticationAgentRegistry) Register(session SessionSubject, locale, busName, address string, transport AgentTransport) (*AuthenticationAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.agents[session.ID]; ok {
		return nil, ErrConflictf("an agent is already registered for session %s by %s",
			session.ID, existing.busName)
	}

	serial, err := uuid.GenerateUUID()
	if err != nil {
		return nil, WrapWithCode(CodeInternal, err)
	}

	agent := &AuthenticationAgent{
		session:   session,
		locale:    locale,
		busName:   busName,
		address:   address,
		serial:    serial,
		transport: transport,
		sessions:  make(map[string]*AuthenticationSession),
	}
	r.agents[session.ID] = agent

	r.log.Info("authentication agent registered",
		logger.String("session", session.ID),
		logger.String("bus_name", busName),
		logger.String("address", address),
		logger.String("locale", locale),
		logger.String("serial", serial))

	return agent, nil
}

// Unregister removes an agent. The caller's transport identity and address
// must match the registered agent exactly.
func (r *AuthenticationAgentRegistry) Unregister(session SessionSubject, busName, address string) (*AuthenticationAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[session.ID]
	if !ok {
		return nil, ErrNotFoundf("no agent registered for session %s", session.ID)
	}
	if agent.busName != busName || agent.address != address {
		return nil, ErrPermissionDeniedf("agent for session %s is owned by %s at %s",
			session.ID, agent.busName, agent.address)
	}

	delete(r.agents, session.ID)

	r.log.Info("authentication agent unregistered",
		logger.String("session", session.ID),
		logger.String("bus_name", busName),
		logger.String("serial", agent.serial))

	return agent, nil
}

// AgentForSession returns the agent registered for a session, if any
func (r *AuthenticationAgentRegistry) AgentForSession(session SessionSubject) (*AuthenticationAgent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[session.ID]
	return agent, ok
}

// RemoveAgentForBusName removes and returns the agent owned by a transport
// identity, or nil if that identity owns no agent.
func (r *AuthenticationAgentRegistry) RemoveAgentForBusName(busName string) *AuthenticationAgent {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, agent := range r.agents {
		if agent.busName == busName {
			delete(r.agents, sessionID)
			return agent
		}
	}
	return nil
}

// SessionByCookie finds an in-flight authentication session across all
// registered agents.
func (r *AuthenticationAgentRegistry) SessionByCookie(cookie string) (*AuthenticationSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, agent := range r.agents {
		if session, ok := agent.sessionByCookie(cookie); ok {
			return session, true
		}
	}
	return nil, false
}

// cookieInUse reports whether any active session uses the cookie
func (r *AuthenticationAgentRegistry) cookieInUse(cookie string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, agent := range r.agents {
		if agent.hasCookie(cookie) {
			return true
		}
	}
	return false
}

// allAgents returns a snapshot of the registered agents
func (r *AuthenticationAgentRegistry) allAgents() []*AuthenticationAgent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*AuthenticationAgent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, agent)
	}
	return out
}

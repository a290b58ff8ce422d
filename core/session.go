package core

import (
	"context"
	"errors"
	"sync"
)

// ErrAuthenticationDismissed is returned by agent transports when the
// operator dismissed the authentication dialog instead of answering it.
var ErrAuthenticationDismissed = errors.New("authentication dialog was dismissed")

// AuthenticationRequest is the challenge material delivered to an agent.
type AuthenticationRequest struct {
	// Cookie uniquely identifies the in-flight session between the
	// authority and the agent
	Cookie string

	ActionID string

	// Message and IconName are the localized challenge text, falling back
	// to the action's raw message/icon, falling back to empty
	Message  string
	IconName string

	Details Details

	// Identities the agent may authenticate as; responses asserting any
	// other identity are rejected
	Identities []Identity
}

// AgentTransport delivers challenges to one registered agent. The wire
// protocol behind it is the embedding's business; the in-process transport
// in the agent package is enough for tests and dev mode.
type AgentTransport interface {
	// BeginAuthentication blocks until the agent completes or abandons the
	// challenge, or ctx is cancelled. A nil return means the agent finished
	// the exchange; whether authentication actually succeeded is decided
	// solely by the verified response path on the authority.
	BeginAuthentication(ctx context.Context, req *AuthenticationRequest) error

	// CancelAuthentication tells the agent to tear down the dialog for an
	// in-flight cookie. Transports tolerate cancels for unknown cookies.
	CancelAuthentication(cookie string)
}

// AuthenticationAgentConnector builds a transport for a newly registered
// agent from its registering transport identity, address and locale.
type AuthenticationAgentConnector interface {
	Connect(busName, address, locale string) (AgentTransport, error)
}

// AuthenticationSessionOutcome is handed to the completion callback.
type AuthenticationSessionOutcome struct {
	// GainedAuthorization is true only if a verified agent response marked
	// the session authenticated and the transport call succeeded
	GainedAuthorization bool

	// AuthenticatedIdentity is the identity the operator authenticated as,
	// when GainedAuthorization is set
	AuthenticatedIdentity *Identity

	// Dismissed is true when the operator dismissed the dialog
	Dismissed bool
}

// AuthenticationSession is one in-flight challenge/response exchange with
// an agent, identified by a cookie. Completion happens exactly once, via
// the transport call returning or via cancellation, whichever comes first.
type AuthenticationSession struct {
	cookie        string
	subject       Subject
	userOfSubject Identity
	candidates    []Identity
	actionID      string
	level         ImplicitAuthorization

	// callerName is the transport identity that initiated the check; a
	// disconnect of that identity cancels the session
	callerName string

	agent *AuthenticationAgent

	mu                    sync.Mutex
	isAuthenticated       bool
	authenticatedIdentity *Identity

	cancelTransport context.CancelFunc

	completeOnce sync.Once
	onComplete   func(outcome AuthenticationSessionOutcome)
}

func newAuthenticationSession(
	cookie string,
	subject Subject,
	userOfSubject Identity,
	candidates []Identity,
	actionID string,
	level ImplicitAuthorization,
	callerName string,
	agent *AuthenticationAgent,
	onComplete func(outcome AuthenticationSessionOutcome),
) *AuthenticationSession {
	return &AuthenticationSession{
		cookie:        cookie,
		subject:       subject,
		userOfSubject: userOfSubject,
		candidates:    candidates,
		actionID:      actionID,
		level:         level,
		callerName:    callerName,
		agent:         agent,
		onComplete:    onComplete,
	}
}

// Cookie returns the session's unique token
func (s *AuthenticationSession) Cookie() string {
	return s.cookie
}

// Subject returns the subject being authenticated for
func (s *AuthenticationSession) Subject() Subject {
	return s.subject
}

// Candidates returns the identities acceptable for authenticating
func (s *AuthenticationSession) Candidates() []Identity {
	out := make([]Identity, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// IsAuthenticated reports whether a verified agent response has marked the
// session authenticated
func (s *AuthenticationSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAuthenticated
}

// markAuthenticated flips is_authenticated after verifying the asserted
// identity is in the pre-approved candidate list. This is the only path
// that can make a challenge succeed; it does not unblock the transport
// call, which completes on its own.
func (s *AuthenticationSession) markAuthenticated(identity Identity) error {
	if !ContainsIdentity(s.candidates, identity) {
		return ErrWrongIdentityf("identity %s was never offered for cookie %s", identity, s.cookie)
	}

	s.mu.Lock()
	s.isAuthenticated = true
	s.authenticatedIdentity = &identity
	s.mu.Unlock()
	return nil
}

// Cancel aborts the session: the agent is told to tear down the dialog and
// the outstanding transport call is cancelled, after which the normal
// completion path runs with gained_authorization = false. Cancelling twice
// is a no-op the second time; sibling sessions on the same agent are
// unaffected.
func (s *AuthenticationSession) Cancel() {
	s.mu.Lock()
	cancel := s.cancelTransport
	s.mu.Unlock()

	if s.agent != nil && s.agent.transport != nil {
		s.agent.transport.CancelAuthentication(s.cookie)
	}
	if cancel != nil {
		cancel()
	}
}

func (s *AuthenticationSession) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancelTransport = cancel
	s.mu.Unlock()
}

// finish runs the completion exactly once. callSucceeded is whether the
// transport call returned without error; the session only gained
// authorization if it was also marked authenticated by a verified response.
func (s *AuthenticationSession) finish(callSucceeded, dismissed bool) {
	s.completeOnce.Do(func() {
		if s.agent != nil {
			s.agent.removeSession(s.cookie)
		}

		s.mu.Lock()
		outcome := AuthenticationSessionOutcome{
			GainedAuthorization:   callSucceeded && s.isAuthenticated,
			AuthenticatedIdentity: s.authenticatedIdentity,
			Dismissed:             dismissed,
		}
		s.mu.Unlock()

		if s.onComplete != nil {
			s.onComplete(outcome)
		}
	})
}

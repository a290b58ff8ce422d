package core

import (
	"context"
	"time"

	"github.com/stephnangue/warrant/audit"
	"github.com/stephnangue/warrant/logger"
)

// AuthorityConfig configures an Authority
type AuthorityConfig struct {
	Logger   logger.Logger
	Actions  ActionDirectory
	Resolver IdentityResolver
	Checker  ProcessChecker

	// Override defaults to the identity override with uid 0 as the only
	// administrator
	Override PolicyOverride

	// Connector builds agent transports at registration time. Without one,
	// agent registration fails and every challenge stays unresolved.
	Connector AuthenticationAgentConnector

	// Clock defaults to the system clock
	Clock Clock

	GrantTTL         time.Duration
	LivenessInterval time.Duration

	// Audit is optional; without it incidents are only logged
	Audit *audit.Manager
}

// Authority is the authorization authority: the decision engine, the
// temporary authorization store, and the authentication agent machinery
// behind one administrative surface. All state is in-memory and dies with
// the process; durable grants belong elsewhere.
type Authority struct {
	log logger.Logger

	actions   ActionDirectory
	resolver  IdentityResolver
	override  PolicyOverride
	connector AuthenticationAgentConnector

	engine *Engine
	store  *TemporaryAuthorizationStore
	agents *AuthenticationAgentRegistry

	notifier *changeNotifier
	auditor  *audit.Manager

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewAuthority creates an authority
func NewAuthority(config AuthorityConfig) *Authority {
	if config.Override == nil {
		config.Override = NewDefaultPolicyOverride()
	}

	notifier := newChangeNotifier()

	store := NewTemporaryAuthorizationStore(TemporaryAuthorizationStoreConfig{
		Logger:           config.Logger.WithSubsystem("tempstore"),
		Resolver:         config.Resolver,
		Checker:          config.Checker,
		Clock:            config.Clock,
		GrantTTL:         config.GrantTTL,
		LivenessInterval: config.LivenessInterval,
		OnChanged:        notifier.Notify,
	})

	engine := NewEngine(config.Logger.WithSubsystem("engine"),
		config.Actions, config.Resolver, store, config.Override)

	agents := NewAuthenticationAgentRegistry(config.Logger.WithSubsystem("agents"))

	ctx, cancel := context.WithCancel(context.Background())

	return &Authority{
		log:        config.Logger,
		actions:    config.Actions,
		resolver:   config.Resolver,
		override:   config.Override,
		connector:  config.Connector,
		engine:     engine,
		store:      store,
		agents:     agents,
		notifier:   notifier,
		auditor:    config.Audit,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Store exposes the temporary authorization store
func (a *Authority) Store() *TemporaryAuthorizationStore {
	return a.store
}

// Subscribe registers an observer of the authority's changed event. The
// event fires whenever the set of temporary authorizations or the action
// set changes; it carries no payload.
func (a *Authority) Subscribe() (<-chan struct{}, func()) {
	return a.notifier.Subscribe()
}

// NotifyActionSetChanged propagates an action-pool reload to observers
func (a *Authority) NotifyActionSetChanged() {
	a.notifier.Notify()
}

// CheckAuthorization decides whether subject may perform actionID. When the
// verdict is a challenge and allowInteraction is set, the authority drives
// the agent protocol for the subject's session and the call does not return
// until the exchange completes or ctx is cancelled. With no registered
// agent, or with allowInteraction unset, the challenge is returned
// unresolved.
func (a *Authority) CheckAuthorization(ctx context.Context, caller, subject Subject, actionID string, details Details, allowInteraction bool) (*AuthorizationResult, error) {
	result, err := a.engine.CheckAuthorization(caller, subject, actionID, details)
	if err != nil {
		if GetErrorCode(err) == CodePermissionDenied {
			a.recordIncident(caller, subject, actionID, err.Error())
		}
		return nil, err
	}

	if !result.IsChallenge || !allowInteraction {
		return result, nil
	}

	session, serr := a.resolver.SessionForSubject(subject)
	if serr != nil || session == nil {
		return result, nil
	}

	agent, ok := a.agents.AgentForSession(*session)
	if !ok {
		// No agent to ask; surface the challenge verbatim
		return result, nil
	}

	return a.challenge(ctx, agent, caller, subject, actionID, result.ChallengeLevel, details)
}

// RegisterAuthenticationAgent registers an agent for a session. An agent
// may only register itself for the session it belongs to.
func (a *Authority) RegisterAuthenticationAgent(caller Subject, session SessionSubject, locale, address string) error {
	callerSession, err := a.resolver.SessionForSubject(caller)
	if err != nil || callerSession == nil {
		return ErrPermissionDeniedf("caller %s has no session to register an agent for", caller)
	}
	if *callerSession != session {
		return ErrPermissionDeniedf("caller %s belongs to session %s, not %s",
			caller, callerSession.ID, session.ID)
	}

	if a.connector == nil {
		return ErrConflictf("authority has no agent connector configured")
	}

	busName := transportName(caller)
	transport, err := a.connector.Connect(busName, address, locale)
	if err != nil {
		return WrapWithCode(CodeInternal, err)
	}

	_, err = a.agents.Register(session, locale, busName, address, transport)
	return err
}

// UnregisterAuthenticationAgent removes an agent; the caller's transport
// identity and address must match the registration exactly. Its in-flight
// sessions are cancelled.
func (a *Authority) UnregisterAuthenticationAgent(caller Subject, session SessionSubject, address string) error {
	agent, err := a.agents.Unregister(session, transportName(caller), address)
	if err != nil {
		return err
	}

	for _, sess := range agent.activeSessions() {
		sess.Cancel()
	}
	return nil
}

// AuthenticationAgentResponse verifies an agent's answer to a challenge.
// Only the trusted responder (uid 0) may call this; the asserted identity
// must be one the challenge offered. On success the session is marked
// authenticated; the pending challenge call itself completes when its
// transport call returns.
func (a *Authority) AuthenticationAgentResponse(caller Subject, cookie string, identity Identity) error {
	userOfCaller, err := a.resolver.UserForSubject(caller)
	if err != nil {
		return ErrIdentityUnknownf("cannot resolve identity of caller %s: %v", caller, err)
	}
	if !userOfCaller.IsRoot() {
		a.recordIncident(caller, nil, "", "non-root caller attempted to answer an authentication challenge")
		return ErrPermissionDeniedf("caller %s (%s) is not the trusted authentication responder",
			caller, userOfCaller)
	}

	session, ok := a.agents.SessionByCookie(cookie)
	if !ok {
		return ErrNotFoundf("no authentication session for cookie %q", cookie)
	}

	if err := session.markAuthenticated(identity); err != nil {
		a.log.Warn("agent asserted an identity that was never offered",
			logger.String("cookie", cookie),
			logger.String("identity", identity.String()),
			logger.String("action_id", session.actionID))
		return err
	}
	return nil
}

// EnumerateTemporaryAuthorizations lists the grants owned by session. A
// non-root caller may only list its own session.
func (a *Authority) EnumerateTemporaryAuthorizations(caller Subject, session SessionSubject) ([]*TemporaryAuthorization, error) {
	if err := a.checkSessionAccess(caller, session); err != nil {
		a.recordIncident(caller, nil, "", err.Error())
		return nil, err
	}
	return a.store.EnumerateForSession(session), nil
}

// RevokeTemporaryAuthorizations revokes every grant owned by session. A
// non-root caller may only clear its own session.
func (a *Authority) RevokeTemporaryAuthorizations(caller Subject, session SessionSubject) error {
	if err := a.checkSessionAccess(caller, session); err != nil {
		a.recordIncident(caller, nil, "", err.Error())
		return err
	}
	a.store.RemoveAllForSession(session)
	return nil
}

// RevokeTemporaryAuthorizationByID revokes one grant; the caller's session
// must own it.
func (a *Authority) RevokeTemporaryAuthorizationByID(caller Subject, id string) error {
	callerSession, err := a.resolver.SessionForSubject(caller)
	if err != nil || callerSession == nil {
		return ErrPermissionDeniedf("caller %s has no session", caller)
	}

	if err := a.store.RemoveByID(id, *callerSession); err != nil {
		if GetErrorCode(err) == CodePermissionDenied {
			a.recordIncident(caller, nil, "", err.Error())
		}
		return err
	}
	return nil
}

// HandleTransportDisconnect reacts to a transport identity vanishing. One
// disconnect can: tear down the agent that identity owned (cancelling its
// sessions), cancel sessions it initiated as caller, cancel sessions whose
// subject was that name, and revoke grants still keyed to the name. Each
// step is independent.
func (a *Authority) HandleTransportDisconnect(name string) {
	if agent := a.agents.RemoveAgentForBusName(name); agent != nil {
		a.log.Info("authentication agent vanished",
			logger.String("bus_name", name),
			logger.String("session", agent.session.ID),
			logger.Int("cancelled_sessions", agent.ActiveSessionCount()))
		for _, sess := range agent.activeSessions() {
			sess.Cancel()
		}
	}

	for _, agent := range a.agents.allAgents() {
		for _, sess := range agent.activeSessions() {
			if sess.callerName == name {
				sess.Cancel()
				continue
			}
			if busName, ok := sess.subject.(BusNameSubject); ok && busName.Name == name {
				sess.Cancel()
			}
		}
	}

	a.store.RemoveAllForBusName(name)
}

// Close shuts the authority down: pending challenges are cancelled and all
// grant timers stopped.
func (a *Authority) Close() {
	a.baseCancel()

	for _, agent := range a.agents.allAgents() {
		for _, sess := range agent.activeSessions() {
			sess.Cancel()
		}
	}
	a.store.Stop()
}

// checkSessionAccess enforces the session-ownership rule on the enumerate
// and bulk-revoke surface: root may touch any session, everyone else only
// their own.
func (a *Authority) checkSessionAccess(caller Subject, session SessionSubject) error {
	userOfCaller, err := a.resolver.UserForSubject(caller)
	if err != nil {
		return ErrIdentityUnknownf("cannot resolve identity of caller %s: %v", caller, err)
	}
	if userOfCaller.IsRoot() {
		return nil
	}

	callerSession, err := a.resolver.SessionForSubject(caller)
	if err != nil || callerSession == nil || *callerSession != session {
		return ErrPermissionDeniedf("caller %s may not access session %s", caller, session.ID)
	}
	return nil
}

func (a *Authority) recordIncident(caller, subject Subject, actionID, message string) {
	fields := []logger.TypedField{
		logger.String("caller", subjectString(caller)),
		logger.String("message", message),
	}
	if subject != nil {
		fields = append(fields, logger.String("subject", subject.String()))
	}
	if actionID != "" {
		fields = append(fields, logger.String("action_id", actionID))
	}
	a.log.Warn("authorization incident", fields...)

	if a.auditor == nil {
		return
	}
	entry := &audit.Entry{
		Type:     audit.EntryTypeIncident,
		ActionID: actionID,
		Caller:   subjectString(caller),
		Outcome:  "denied",
		Message:  message,
	}
	if subject != nil {
		entry.Subject = subject.String()
	}
	a.auditor.Record(a.baseCtx, entry)
}

// transportName returns the bus name for transport subjects and a stable
// string form for everything else.
func transportName(subject Subject) string {
	if busName, ok := subject.(BusNameSubject); ok {
		return busName.Name
	}
	return subject.String()
}

func subjectString(subject Subject) string {
	if subject == nil {
		return ""
	}
	return subject.String()
}

package core

import (
	"context"
	crand "crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid"
	"github.com/stephnangue/warrant/audit"
	"github.com/stephnangue/warrant/logger"
)

// challenge drives one interactive authentication exchange and blocks until
// it completes or ctx is cancelled. The verdict it returns replaces the
// engine's challenge verdict.
func (a *Authority) challenge(ctx context.Context, agent *AuthenticationAgent, caller, subject Subject, actionID string, level ImplicitAuthorization, details Details) (*AuthorizationResult, error) {
	userOfSubject, err := a.resolver.UserForSubject(subject)
	if err != nil {
		return nil, ErrIdentityUnknownf("cannot resolve identity of %s: %v", subject, err)
	}

	// Localized challenge text, falling back to the unlocalized action,
	// falling back to empty strings.
	var message, iconName string
	action, err := a.actions.Action(actionID, agent.locale)
	if err != nil {
		action, err = a.actions.Action(actionID, "")
	}
	if err == nil {
		message = action.Message
		iconName = action.IconName
	}

	var candidates []Identity
	if level.RequiresAdministrator() {
		candidates = a.override.AdminIdentities(action, subject)
		// An empty admin list must not degrade into a self-auth challenge;
		// fall back to uid 0
		if len(candidates) == 0 {
			candidates = []Identity{RootIdentity}
		}
	} else {
		candidates = []Identity{userOfSubject}
	}

	cookie, err := a.newCookie()
	if err != nil {
		return nil, WrapWithCode(CodeInternal, err)
	}

	done := make(chan AuthenticationSessionOutcome, 1)
	session := newAuthenticationSession(cookie, subject, userOfSubject, candidates,
		actionID, level, transportName(caller), agent,
		func(outcome AuthenticationSessionOutcome) {
			done <- outcome
		})

	// The cancel func must be in place before the session becomes visible
	// through the agent, or a concurrent Cancel finds nothing to cancel
	callCtx, cancel := context.WithCancel(a.baseCtx)
	session.setCancel(cancel)
	agent.addSession(session)

	a.log.Debug("initiating authentication challenge",
		logger.String("cookie", cookie),
		logger.String("action_id", actionID),
		logger.String("subject", subject.String()),
		logger.String("level", level.String()),
		logger.Int("candidates", len(candidates)))

	req := &AuthenticationRequest{
		Cookie:     cookie,
		ActionID:   actionID,
		Message:    message,
		IconName:   iconName,
		Details:    details.Copy(),
		Identities: candidates,
	}

	go func() {
		defer cancel()
		callErr := agent.transport.BeginAuthentication(callCtx, req)
		session.finish(callErr == nil, errors.Is(callErr, ErrAuthenticationDismissed))
	}()

	var outcome AuthenticationSessionOutcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		session.Cancel()
		outcome = <-done
	}

	return a.resolveChallengeOutcome(agent, subject, actionID, level, details, outcome), nil
}

// resolveChallengeOutcome turns a completed authentication session into the
// final verdict, inserting the retained grant when one was earned.
func (a *Authority) resolveChallengeOutcome(agent *AuthenticationAgent, subject Subject, actionID string, level ImplicitAuthorization, details Details, outcome AuthenticationSessionOutcome) *AuthorizationResult {
	resultDetails := details.Copy()
	if level.IsRetained() {
		resultDetails[DetailRetainsAuthorization] = "true"
	}

	authenticatedAs := ""
	if outcome.AuthenticatedIdentity != nil {
		authenticatedAs = outcome.AuthenticatedIdentity.String()
	}

	if !outcome.GainedAuthorization {
		if outcome.Dismissed {
			resultDetails[DetailDismissed] = "true"
		}
		a.log.Info("operator failed to authenticate",
			logger.String("subject", subject.String()),
			logger.String("action_id", actionID),
			logger.Bool("dismissed", outcome.Dismissed))
		a.recordAuthentication(agent, subject, actionID, "failed", authenticatedAs)
		return NotAuthorizedResult(resultDetails)
	}

	scope := "ONE-SHOT"
	if level.IsRetained() {
		scope = "TEMPORARY"
		if id, err := a.store.AddAuthorization(subject, agent.session, actionID); err == nil {
			resultDetails[DetailTempAuthzID] = id
		} else {
			a.log.Warn("failed to retain authorization after successful authentication",
				logger.String("subject", subject.String()),
				logger.String("action_id", actionID),
				logger.Err(err))
		}
	}

	a.log.Infof("operator of %s successfully authenticated as %s to gain %s authorization for action %s for %s",
		agent.session.String(), authenticatedAs, scope, actionID, subject)
	a.recordAuthentication(agent, subject, actionID, "gained", authenticatedAs)

	return AuthorizedResult(resultDetails)
}

func (a *Authority) recordAuthentication(agent *AuthenticationAgent, subject Subject, actionID, outcome, authenticatedAs string) {
	if a.auditor == nil {
		return
	}
	entry := &audit.Entry{
		Type:     audit.EntryTypeAuthentication,
		ActionID: actionID,
		Subject:  subject.String(),
		Session:  agent.session.ID,
		Outcome:  outcome,
	}
	if authenticatedAs != "" {
		entry.Metadata = map[string]string{"authenticated_as": authenticatedAs}
	}
	a.auditor.Record(a.baseCtx, entry)
}

// newCookie mints a cookie no in-flight session is using
func (a *Authority) newCookie() (string, error) {
	for {
		id, err := ulid.New(ulid.Timestamp(time.Now()), crand.Reader)
		if err != nil {
			return "", err
		}
		cookie := id.String()
		if !a.agents.cookieInUse(cookie) {
			return cookie, nil
		}
	}
}

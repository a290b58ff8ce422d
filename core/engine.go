package core

import (
	"github.com/stephnangue/warrant/logger"
)

// Engine turns a static per-action policy plus live session state into an
// authorization verdict. It never blocks: on a challenge verdict the
// interactive step is the caller's (the Authority's) to drive.
type Engine struct {
	log      logger.Logger
	actions  ActionDirectory
	resolver IdentityResolver
	store    *TemporaryAuthorizationStore
	override PolicyOverride
}

// NewEngine creates a decision engine
func NewEngine(log logger.Logger, actions ActionDirectory, resolver IdentityResolver, store *TemporaryAuthorizationStore, override PolicyOverride) *Engine {
	if override == nil {
		override = NewDefaultPolicyOverride()
	}
	return &Engine{
		log:      log,
		actions:  actions,
		resolver: resolver,
		store:    store,
		override: override,
	}
}

// CheckAuthorization computes the verdict for subject performing actionID.
//
// A caller may only check a subject owned by a different identity, or pass
// non-empty details, if the caller itself is uid 0; otherwise one
// unprivileged user could probe another's authorization state or spoof
// dialog content. Violations surface as permission-denied errors, never as
// silently downgraded results.
func (e *Engine) CheckAuthorization(caller, subject Subject, actionID string, details Details) (*AuthorizationResult, error) {
	action, err := e.actions.Action(actionID, "")
	if err != nil {
		return nil, err
	}

	userOfSubject, err := e.resolver.UserForSubject(subject)
	if err != nil {
		return nil, ErrIdentityUnknownf("cannot resolve identity of %s: %v", subject, err)
	}

	userOfCaller, err := e.resolver.UserForSubject(caller)
	if err != nil {
		return nil, ErrIdentityUnknownf("cannot resolve identity of caller %s: %v", caller, err)
	}

	if !userOfCaller.IsRoot() {
		if userOfCaller != userOfSubject {
			return nil, ErrPermissionDeniedf("caller %s (%s) may not check authorization of %s (%s)",
				caller, userOfCaller, subject, userOfSubject)
		}
		if len(details) > 0 {
			return nil, ErrPermissionDeniedf("caller %s (%s) may not supply details", caller, userOfCaller)
		}
	}

	// uid 0 is always authorized, for every action. This is the only
	// unconditional bypass.
	if userOfSubject.IsRoot() {
		return AuthorizedResult(details), nil
	}

	var isLocal, isActive bool
	session, err := e.resolver.SessionForSubject(subject)
	if err == nil && session != nil {
		isLocal = e.resolver.IsSessionLocal(*session)
		isActive = e.resolver.IsSessionActive(*session)
	}

	var level ImplicitAuthorization
	switch {
	case isLocal && isActive:
		level = action.ImplicitActive
	case isLocal:
		level = action.ImplicitInactive
	default:
		level = action.ImplicitAny
	}

	level = e.override.OverrideImplicit(action, subject, isLocal, isActive, level)

	e.log.Trace("computed implicit authorization",
		logger.String("action_id", actionID),
		logger.String("subject", subject.String()),
		logger.Bool("is_local", isLocal),
		logger.Bool("is_active", isActive),
		logger.String("level", level.String()))

	if level == Authorized {
		return AuthorizedResult(details), nil
	}

	if id, ok := e.store.HasAuthorization(subject, actionID); ok {
		resultDetails := details.Copy()
		resultDetails[DetailTempAuthzID] = id
		return AuthorizedResult(resultDetails), nil
	}

	if level == NotAuthorized {
		return NotAuthorizedResult(details), nil
	}

	resultDetails := details.Copy()
	if level.IsRetained() {
		resultDetails[DetailRetainsAuthorization] = "true"
	}
	return ChallengeResult(level, resultDetails), nil
}

package core

// ActionDescription is the static policy record for one action: the three
// implicit-authorization levels plus the human-readable material shown by
// authentication agents.
type ActionDescription struct {
	ID       string
	Message  string
	IconName string

	// Implicit levels selected by the subject's session locality:
	// local+active, local+inactive, and anything else (remote or no
	// session).
	ImplicitActive   ImplicitAuthorization
	ImplicitInactive ImplicitAuthorization
	ImplicitAny      ImplicitAuthorization
}

// ActionDirectory resolves action ids to their policy records. The on-disk
// action pool behind it is an external collaborator; the authority only
// depends on this lookup.
type ActionDirectory interface {
	// Action returns the description for actionID with message/icon
	// localized for locale where a translation exists. A not-found error
	// carries CodeActionUnknown.
	Action(actionID, locale string) (*ActionDescription, error)
}

// IdentityResolver maps subjects to their owning identity and session. How
// sessions are detected (and what local/active mean on a given platform)
// is the collaborator's business.
type IdentityResolver interface {
	// UserForSubject returns the identity the subject runs as
	UserForSubject(subject Subject) (Identity, error)

	// SessionForSubject returns the subject's login session, or nil if it
	// has none
	SessionForSubject(subject Subject) (*SessionSubject, error)

	// IsSessionLocal reports whether the session is on a local seat
	IsSessionLocal(session SessionSubject) bool

	// IsSessionActive reports whether the session is in the foreground
	IsSessionActive(session SessionSubject) bool

	// ProcessForBusName resolves a transport name to the process that
	// currently owns it
	ProcessForBusName(name string) (*ProcessSubject, error)
}

// ProcessChecker answers whether a process subject still exists. The check
// is soft: it is polled, so a vanished process is noticed within the poll
// interval, not instantly.
type ProcessChecker interface {
	ProcessExists(subject ProcessSubject) bool
}

package core

import "strings"

// ImplicitAuthorization is the static, per-action policy outcome before any
// interactive step. The values are ordered from least to most permissive.
type ImplicitAuthorization int

const (
	// NotAuthorized means the subject is never authorized
	NotAuthorized ImplicitAuthorization = iota

	// AuthenticationRequired means authentication as the subject's own
	// identity is required
	AuthenticationRequired

	// AuthenticationRequiredRetained is like AuthenticationRequired, but a
	// successful authentication is retained as a temporary authorization
	AuthenticationRequiredRetained

	// AdministratorAuthenticationRequired means authentication as an
	// administrator identity is required
	AdministratorAuthenticationRequired

	// AdministratorAuthenticationRequiredRetained is like
	// AdministratorAuthenticationRequired with retention
	AdministratorAuthenticationRequiredRetained

	// Authorized means the subject is authorized without interaction
	Authorized
)

// String returns the string representation of ImplicitAuthorization
func (ia ImplicitAuthorization) String() string {
	switch ia {
	case NotAuthorized:
		return "no"
	case AuthenticationRequired:
		return "auth_self"
	case AuthenticationRequiredRetained:
		return "auth_self_keep"
	case AdministratorAuthenticationRequired:
		return "auth_admin"
	case AdministratorAuthenticationRequiredRetained:
		return "auth_admin_keep"
	case Authorized:
		return "yes"
	default:
		return "no"
	}
}

// ParseImplicitAuthorization parses a policy string to an
// ImplicitAuthorization level. Unknown strings parse as NotAuthorized with
// ok set to false.
func ParseImplicitAuthorization(value string) (ImplicitAuthorization, bool) {
	switch strings.ToLower(value) {
	case "no":
		return NotAuthorized, true
	case "auth_self":
		return AuthenticationRequired, true
	case "auth_self_keep":
		return AuthenticationRequiredRetained, true
	case "auth_admin":
		return AdministratorAuthenticationRequired, true
	case "auth_admin_keep":
		return AdministratorAuthenticationRequiredRetained, true
	case "yes":
		return Authorized, true
	default:
		return NotAuthorized, false
	}
}

// IsRetained reports whether a successful authentication under this level
// should be remembered as a temporary authorization
func (ia ImplicitAuthorization) IsRetained() bool {
	return ia == AuthenticationRequiredRetained ||
		ia == AdministratorAuthenticationRequiredRetained
}

// RequiresAdministrator reports whether the identity required to
// authenticate is an administrator identity rather than the subject's own
func (ia ImplicitAuthorization) RequiresAdministrator() bool {
	return ia == AdministratorAuthenticationRequired ||
		ia == AdministratorAuthenticationRequiredRetained
}

// RequiresChallenge reports whether the level can be satisfied by
// interactive authentication
func (ia ImplicitAuthorization) RequiresChallenge() bool {
	return ia > NotAuthorized && ia < Authorized
}

package core

import "github.com/mitchellh/copystructure"

// Detail keys attached to authorization results
const (
	// DetailTempAuthzID carries the id of the temporary authorization that
	// satisfied (or resulted from) a check
	DetailTempAuthzID = "warrant.temporary_authorization_id"

	// DetailRetainsAuthorization is set to "true" on challenge outcomes
	// whose level retains the authorization after a successful challenge
	DetailRetainsAuthorization = "warrant.retains_authorization_after_challenge"

	// DetailDismissed is set to "true" when the operator dismissed the
	// authentication dialog
	DetailDismissed = "warrant.dismissed"
)

// Details is an opaque string map attached to checks and results
type Details map[string]string

// Copy returns a deep copy of the details, so callers and the authority
// never share a mutable map across an ownership boundary.
func (d Details) Copy() Details {
	if d == nil {
		return Details{}
	}
	copied, err := copystructure.Copy(map[string]string(d))
	if err != nil {
		// map[string]string cannot fail to copy; fall back to a manual copy
		out := make(Details, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	}
	return Details(copied.(map[string]string))
}

// AuthorizationResult is the outcome of a check: exactly one of authorized,
// challenge, or not authorized.
type AuthorizationResult struct {
	// IsAuthorized is true if the subject may perform the action
	IsAuthorized bool

	// IsChallenge is true if the subject is not authorized yet, but could
	// become authorized through interactive authentication
	IsChallenge bool

	// ChallengeLevel is the implicit-authorization level that triggered the
	// challenge; only meaningful when IsChallenge is set
	ChallengeLevel ImplicitAuthorization

	// Details carries optional out-of-band information, e.g. which
	// temporary authorization applied
	Details Details
}

// AuthorizedResult returns an authorized result carrying details
func AuthorizedResult(details Details) *AuthorizationResult {
	return &AuthorizationResult{IsAuthorized: true, Details: details.Copy()}
}

// NotAuthorizedResult returns a denial carrying details
func NotAuthorizedResult(details Details) *AuthorizationResult {
	return &AuthorizationResult{Details: details.Copy()}
}

// ChallengeResult returns an unresolved challenge at the given level
func ChallengeResult(level ImplicitAuthorization, details Details) *AuthorizationResult {
	return &AuthorizationResult{
		IsChallenge:    true,
		ChallengeLevel: level,
		Details:        details.Copy(),
	}
}

func (r *AuthorizationResult) String() string {
	switch {
	case r.IsAuthorized:
		return "authorized"
	case r.IsChallenge:
		return "challenge(" + r.ChallengeLevel.String() + ")"
	default:
		return "not-authorized"
	}
}

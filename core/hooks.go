package core

// PolicyOverride is the extension point of the decision engine. The default
// implementation keeps the policy level unchanged and offers uid 0 as the
// only administrator identity.
type PolicyOverride interface {
	// OverrideImplicit may replace the implicit-authorization level the
	// static policy selected for this check
	OverrideImplicit(action *ActionDescription, subject Subject, isLocal, isActive bool, level ImplicitAuthorization) ImplicitAuthorization

	// AdminIdentities returns the identities acceptable for satisfying an
	// administrator authentication challenge
	AdminIdentities(action *ActionDescription, subject Subject) []Identity
}

type defaultPolicyOverride struct {
	admins []Identity
}

// NewDefaultPolicyOverride returns the identity override with the given
// administrator identities. With no identities, uid 0 is the sole
// administrator.
func NewDefaultPolicyOverride(admins ...Identity) PolicyOverride {
	if len(admins) == 0 {
		admins = []Identity{RootIdentity}
	}
	return &defaultPolicyOverride{admins: admins}
}

func (d *defaultPolicyOverride) OverrideImplicit(action *ActionDescription, subject Subject, isLocal, isActive bool, level ImplicitAuthorization) ImplicitAuthorization {
	return level
}

func (d *defaultPolicyOverride) AdminIdentities(action *ActionDescription, subject Subject) []Identity {
	out := make([]Identity, len(d.admins))
	copy(out, d.admins)
	return out
}

package core

import (
	"fmt"
	"strconv"
	"strings"
)

// IdentityKind discriminates user and group identities
type IdentityKind string

const (
	IdentityKindUser  IdentityKind = "unix-user"
	IdentityKindGroup IdentityKind = "unix-group"
)

// Identity is the resolved user (or group) a Subject runs as. Identities
// are comparable values.
type Identity struct {
	Kind IdentityKind
	ID   uint32
}

// UserIdentity returns the identity of a unix user
func UserIdentity(uid uint32) Identity {
	return Identity{Kind: IdentityKindUser, ID: uid}
}

// GroupIdentity returns the identity of a unix group
func GroupIdentity(gid uint32) Identity {
	return Identity{Kind: IdentityKindGroup, ID: gid}
}

// RootIdentity is uid 0, which bypasses every policy check.
var RootIdentity = UserIdentity(0)

// IsRoot reports whether the identity is the unix superuser
func (i Identity) IsRoot() bool {
	return i.Kind == IdentityKindUser && i.ID == 0
}

func (i Identity) String() string {
	return fmt.Sprintf("%s:%d", i.Kind, i.ID)
}

// ParseIdentity parses the string form produced by String, accepting the
// "uid:"/"gid:" shorthands as well.
func ParseIdentity(s string) (Identity, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return Identity{}, fmt.Errorf("malformed identity %q", s)
	}

	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return Identity{}, fmt.Errorf("malformed identity %q: %v", s, err)
	}

	switch kind {
	case string(IdentityKindUser), "uid", "user":
		return UserIdentity(uint32(id)), nil
	case string(IdentityKindGroup), "gid", "group":
		return GroupIdentity(uint32(id)), nil
	}
	return Identity{}, fmt.Errorf("unknown identity kind %q", kind)
}

// ContainsIdentity reports whether identity appears in the list
func ContainsIdentity(list []Identity, identity Identity) bool {
	for _, candidate := range list {
		if candidate == identity {
			return true
		}
	}
	return false
}

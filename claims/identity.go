package claims

import "slices"

// Identity is a read-only view over a claim set. The zero value is the anonymous identity.
type Identity struct {
	claims Set
}

// Anonymous is the identity of a caller with no session.
var Anonymous = Identity{}

// NewIdentity wraps a claim set. An empty set yields the anonymous identity.
func NewIdentity(s Set) Identity {
	if len(s) == 0 {
		return Anonymous
	}
	return Identity{claims: s.Clone()}
}

func (i Identity) IsAuthenticated() bool {
	return len(i.claims) > 0
}

// Claims returns a copy of the underlying claim set.
func (i Identity) Claims() Set {
	return i.claims.Clone()
}

func (i Identity) Name() string {
	v, _ := i.claims.First(TypeName)
	return v
}

func (i Identity) Email() string {
	v, _ := i.claims.First(TypeEmail)
	return v
}

func (i Identity) Roles() []string {
	return i.claims.All(TypeRole)
}

func (i Identity) IsInRole(role string) bool {
	return slices.Contains(i.claims.All(TypeRole), role)
}

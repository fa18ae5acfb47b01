// Package claims maps a remote user profile into an ordered claim set and exposes the
// display identity built from it.
package claims

import (
	"strings"

	"github.com/jrsteele09/go-identity-client/users"
)

// Claim types, named after the standard OIDC claims.
const (
	TypeGivenName  = "given_name"
	TypeFamilyName = "family_name"
	TypeName       = "name"
	TypeEmail      = "email"
	TypeRole       = "role"
)

// DefaultName is the display name used when a profile has neither first nor last name.
const DefaultName = "User"

// Claim is a single typed fact about the signed-in user.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Set is an ordered list of claims. A type may repeat (one role claim per role).
type Set []Claim

// FromProfile builds the claim set for a profile. Order: given name, family name, display
// name, email, then one role claim per role in the profile's order. Blank fields are
// skipped; the others are stored as the profile has them.
func FromProfile(p users.Profile) Set {
	set := make(Set, 0, 4+len(p.Roles))

	if !isBlank(p.FirstName) {
		set = append(set, Claim{Type: TypeGivenName, Value: p.FirstName})
	}
	if !isBlank(p.LastName) {
		set = append(set, Claim{Type: TypeFamilyName, Value: p.LastName})
	}
	set = append(set, Claim{Type: TypeName, Value: DisplayName(p.FirstName, p.LastName)})

	if !isBlank(p.Email) {
		set = append(set, Claim{Type: TypeEmail, Value: p.Email})
	}
	for _, role := range p.Roles {
		set = append(set, Claim{Type: TypeRole, Value: role})
	}
	return set
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// DisplayName joins first and last with a single space, falling back to DefaultName.
func DisplayName(first, last string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return DefaultName
	}
	return name
}

// First returns the value of the first claim of the given type.
func (s Set) First(claimType string) (string, bool) {
	for _, c := range s {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// All returns every value for a claim type, in order.
func (s Set) All(claimType string) []string {
	var values []string
	for _, c := range s {
		if c.Type == claimType {
			values = append(values, c.Value)
		}
	}
	return values
}

// Clone returns a copy that does not share the backing array.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// Valid reports whether the set could have been produced by FromProfile: it must at
// least carry a non-empty display name.
func (s Set) Valid() bool {
	name, ok := s.First(TypeName)
	return ok && name != ""
}

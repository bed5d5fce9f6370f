// Package actor defines the resolved caller identity passed explicitly
// into every service call. Nothing request-scoped is smuggled through
// context values; the Actor value is the contract.
package actor

import "github.com/bwmarrin/snowflake"

// RoleRef is a resolved active role membership.
type RoleRef struct {
	ID   snowflake.ID
	Name string
}

// Actor is the authenticated identity performing an action.
type Actor struct {
	UserID    snowflake.ID
	Roles     []RoleRef
	IPAddress string
	UserAgent string
}

// IsZero reports whether no identity was resolved.
func (a Actor) IsZero() bool { return a.UserID == 0 }

func (a Actor) HasRole(name string) bool {
	for _, r := range a.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleIDs returns the actor's role IDs in membership order.
func (a Actor) RoleIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(a.Roles))
	for _, r := range a.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

// PrimaryRole is the first resolved role name, or "" without roles.
func (a Actor) PrimaryRole() string {
	if len(a.Roles) == 0 {
		return ""
	}
	return a.Roles[0].Name
}

// Package actor carries the authenticated caller identity through engine
// operations.
//
// Authentication itself is external: an upstream identity provider verifies
// the caller and hands the engine an actor id plus a role set. Nothing in the
// engine reads ambient session state.
package actor

import (
	"errors"
	"strings"
)

// Role names recognized by the engine.
const (
	RoleResident      = "resident"
	RoleGuard         = "guard"
	RoleAdmin         = "admin"
	RolePlatformAdmin = "platform-admin"
)

// ErrForbidden is returned when an actor lacks the role or ownership an
// operation requires. It is never downgraded by the engine.
var ErrForbidden = errors.New("forbidden")

// Actor is the verified caller of an engine operation.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor holds the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the actor holds at least one of the given roles.
func (a Actor) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor holds the admin or platform-admin role.
func (a Actor) IsAdmin() bool {
	return a.HasAnyRole(RoleAdmin, RolePlatformAdmin)
}

// IsGate reports whether the actor may operate the gate (guard or admin).
func (a Actor) IsGate() bool {
	return a.HasAnyRole(RoleGuard, RoleAdmin, RolePlatformAdmin)
}

// ParseRoles splits a comma-separated role list into a normalized slice.
// Empty entries are dropped; names are lower-cased and trimmed.
func ParseRoles(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

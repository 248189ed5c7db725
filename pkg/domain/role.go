package domain

import dErrors "gatepass/pkg/domain-errors"

// Role classifies the authenticated actor for authorization decisions.
// Invariant: the value must be one of the supported roles.
//
// Usage: construct via ParseRole at trust boundaries (token claims, request
// bodies); direct casting bypasses validation.
type Role string

// Supported actor roles.
const (
	// RoleResident is a building resident: may host visits and attest
	// name-only approvals for their own guests.
	RoleResident Role = "resident"

	// RoleSecurity staffs the entry desk: scans credentials, records
	// check-in/check-out, and decides pending visits.
	RoleSecurity Role = "security"

	// RoleBuildingAdmin manages a single building.
	RoleBuildingAdmin Role = "building_admin"

	// RoleSuperAdmin is the platform-wide operator role; it is the only
	// role that bypasses building scoping.
	RoleSuperAdmin Role = "super_admin"
)

// validRoles is the single source of truth for supported roles.
var validRoles = map[Role]bool{
	RoleResident:      true,
	RoleSecurity:      true,
	RoleBuildingAdmin: true,
	RoleSuperAdmin:    true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Actor is the authenticated principal attached to a request: who they are,
// what role they carry, and which building their session is scoped to.
// SuperAdmin actors may carry a nil BuildingID.
type Actor struct {
	ID         ActorID
	Role       Role
	BuildingID BuildingID
}

// IsZero reports whether no actor has been attached to the request.
func (a Actor) IsZero() bool {
	return a.ID.IsNil() && a.Role == ""
}

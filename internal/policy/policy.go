// Package policy owns the role to capability grant table. The table is
// built once at startup and injected into services, which keeps
// authorization rules out of the domain logic and lets tests swap in
// narrower grants.
package policy

import (
	"gatepass/pkg/domain"
)

// Capability names a single operation an actor may be granted.
type Capability string

const (
	CapVisitCreate       Capability = "visit.create"
	CapVisitRead         Capability = "visit.read"
	CapVisitDecide       Capability = "visit.decide"
	CapVisitDecideByName Capability = "visit.decide_by_name"
	CapVisitCheckIn      Capability = "visit.checkin"
	CapVisitCheckOut     Capability = "visit.checkout"
	CapVisitScan         Capability = "visit.scan"
	CapCredentialRead    Capability = "credential.read"
)

// Engine answers capability and building-scope questions for roles.
type Engine struct {
	grants map[domain.Role]map[Capability]struct{}
	bypass map[domain.Role]struct{}
}

// NewDefault builds the standard grant table:
//
//	resident        create, read, approve-by-name
//	security        create, read, decide, scan, check-in/out, credential
//	building_admin  create, read, decide, check-in/out, credential
//	super_admin     create, read, decide, credential, building-scope bypass
//
// Scanning stays exclusive to security because it is the only role
// physically present at the gate.
func NewDefault() *Engine {
	grants := map[domain.Role][]Capability{
		domain.RoleResident: {
			CapVisitCreate, CapVisitRead, CapVisitDecideByName,
		},
		domain.RoleSecurity: {
			CapVisitCreate, CapVisitRead, CapVisitDecide, CapVisitDecideByName,
			CapVisitCheckIn, CapVisitCheckOut, CapVisitScan, CapCredentialRead,
		},
		domain.RoleBuildingAdmin: {
			CapVisitCreate, CapVisitRead, CapVisitDecide, CapVisitDecideByName,
			CapVisitCheckIn, CapVisitCheckOut, CapCredentialRead,
		},
		domain.RoleSuperAdmin: {
			CapVisitCreate, CapVisitRead, CapVisitDecide, CapVisitDecideByName,
			CapCredentialRead,
		},
	}

	e := &Engine{
		grants: make(map[domain.Role]map[Capability]struct{}, len(grants)),
		bypass: map[domain.Role]struct{}{
			domain.RoleSuperAdmin: {},
		},
	}
	for role, caps := range grants {
		set := make(map[Capability]struct{}, len(caps))
		for _, c := range caps {
			set[c] = struct{}{}
		}
		e.grants[role] = set
	}
	return e
}

// Allow reports whether the role holds the capability.
func (e *Engine) Allow(role domain.Role, cap Capability) bool {
	set, ok := e.grants[role]
	if !ok {
		return false
	}
	_, ok = set[cap]
	return ok
}

// BypassesBuildingScope reports whether the role operates platform-wide,
// exempt from the per-building scope check.
func (e *Engine) BypassesBuildingScope(role domain.Role) bool {
	_, ok := e.bypass[role]
	return ok
}

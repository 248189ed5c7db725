// Package presence owns the physical side of a visit: recording arrival and
// departure. Like approval, it hands Validate/Apply closures to the
// orchestrator so precondition and mutation commit atomically; the duration
// math and the single-use arrival rule live on the aggregate itself.
package presence

import (
	"time"

	"gatepass/internal/policy"
	"gatepass/internal/visit/models"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// CheckIn records an arrival at the desk or gate.
type CheckIn struct {
	Actor       domain.Actor
	EvidenceRef string
	Notes       string
}

// CheckOut records a departure.
type CheckOut struct {
	Actor       domain.Actor
	EvidenceRef string
	Notes       string
}

// Coordinator validates and applies presence transitions.
type Coordinator struct {
	policy *policy.Engine
}

func New(p *policy.Engine) *Coordinator {
	return &Coordinator{policy: p}
}

// AuthorizeScan gates credential scanning, the desk's check-in entry point.
func (c *Coordinator) AuthorizeScan(actor domain.Actor) error {
	if !c.policy.Allow(actor.Role, policy.CapVisitScan) {
		return dErrors.Newf(dErrors.CodeForbidden, "role %s may not scan credentials", actor.Role)
	}
	return nil
}

// AuthorizeCheckIn gates the manual, visit-id-driven arrival path used when
// a visitor cannot present their credential at the desk.
func (c *Coordinator) AuthorizeCheckIn(actor domain.Actor) error {
	if !c.policy.Allow(actor.Role, policy.CapVisitCheckIn) {
		return dErrors.Newf(dErrors.CodeForbidden, "role %s may not check visitors in", actor.Role)
	}
	return nil
}

// AuthorizeCheckOut gates the departure recording.
func (c *Coordinator) AuthorizeCheckOut(actor domain.Actor) error {
	if !c.policy.Allow(actor.Role, policy.CapVisitCheckOut) {
		return dErrors.Newf(dErrors.CodeForbidden, "role %s may not check visitors out", actor.Role)
	}
	return nil
}

// ValidateCheckIn returns the Execute validate closure for a scan-triggered
// check-in: the visit must be approved, unused, and the credential window
// must still be open at the moment the row is locked. The window recheck
// matters because time passes between the pre-flight credential validation
// and the conditional update.
func (c *Coordinator) ValidateCheckIn(now time.Time) func(*models.Visit) error {
	return func(v *models.Visit) error {
		if err := v.CanCheckIn(); err != nil {
			return err
		}
		return c.ValidateCredentialWindow(now)(v)
	}
}

// ValidateCredentialWindow returns a closure refusing transitions whose
// credential window has lapsed. The decide path uses it on its own: an
// approval of a long-pending request is stale once the credential on file
// has expired, and must not produce a phantom check-in.
func (c *Coordinator) ValidateCredentialWindow(now time.Time) func(*models.Visit) error {
	return func(v *models.Visit) error {
		if v.CredentialExpired(now) {
			return dErrors.New(dErrors.CodeCredentialExpired, "credential expired")
		}
		return nil
	}
}

// ApplyCheckIn returns the Execute mutate closure recording the arrival.
func (c *Coordinator) ApplyCheckIn(cmd CheckIn, now time.Time) func(*models.Visit) {
	return func(v *models.Visit) {
		v.ApplyCheckIn(now, cmd.EvidenceRef)
		v.AddSecurityNote(cmd.Notes)
	}
}

// ValidateCheckOut returns the Execute validate closure for a departure:
// arrival recorded, departure not yet.
func (c *Coordinator) ValidateCheckOut() func(*models.Visit) error {
	return func(v *models.Visit) error {
		return v.CanCheckOut()
	}
}

// ApplyCheckOut returns the Execute mutate closure recording the departure
// and fixing the visit duration.
func (c *Coordinator) ApplyCheckOut(cmd CheckOut, now time.Time) func(*models.Visit) {
	return func(v *models.Visit) {
		v.ApplyCheckOut(now, cmd.EvidenceRef)
		v.AddSecurityNote(cmd.Notes)
	}
}

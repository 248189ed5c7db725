// Package approval owns the decision sub-state machine: who may decide a
// visit, what a decision needs to carry, and how it lands on the aggregate.
// The orchestrator feeds the closures built here into the store's Execute so
// the pending check and the transition commit atomically.
package approval

import (
	"strings"
	"time"

	"gatepass/internal/policy"
	"gatepass/internal/visit/models"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// ByRole is a standing-based decision: the actor's role authorizes any
// outcome. Rejections must carry a reason.
type ByRole struct {
	Actor   domain.Actor
	Outcome models.DecisionOutcome
	Reason  string
	Notes   string
}

// ByName approves on an attestation: the caller vouches for the host by
// name instead of deciding on their own standing. Used when the host has no
// account. Approve-only; the attested name is recorded in place of an actor
// identity.
type ByName struct {
	Actor    domain.Actor
	HostName string
	Notes    string
}

// Coordinator validates and applies decisions.
type Coordinator struct {
	policy *policy.Engine
}

func New(p *policy.Engine) *Coordinator {
	return &Coordinator{policy: p}
}

// AuthorizeByRole checks the request-level rules that do not depend on visit
// state: the role must hold the decide capability, the outcome must be one of
// the supported values, and a rejection must explain itself.
func (c *Coordinator) AuthorizeByRole(cmd ByRole) error {
	if !cmd.Outcome.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid decision outcome")
	}
	if !c.policy.Allow(cmd.Actor.Role, policy.CapVisitDecide) {
		return dErrors.Newf(dErrors.CodeForbidden, "role %s may not decide visits", cmd.Actor.Role)
	}
	if cmd.Outcome == models.OutcomeRejected && strings.TrimSpace(cmd.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "rejection requires a reason")
	}
	return nil
}

// AuthorizeByName checks the attestation variant: a wider role set (residents
// included) but only approval, and the claimed name must be present.
func (c *Coordinator) AuthorizeByName(cmd ByName) error {
	if !c.policy.Allow(cmd.Actor.Role, policy.CapVisitDecideByName) {
		return dErrors.Newf(dErrors.CodeForbidden, "role %s may not approve visits by host name", cmd.Actor.Role)
	}
	if strings.TrimSpace(cmd.HostName) == "" {
		return dErrors.New(dErrors.CodeValidation, "host name cannot be empty")
	}
	return nil
}

// Validate returns the Execute validate closure: the visit must still be
// pending. Deciding a terminal visit is an idempotent failure, never a
// silent no-op.
func (c *Coordinator) Validate() func(*models.Visit) error {
	return func(v *models.Visit) error {
		return v.CanDecide()
	}
}

// ApplyByRole returns the Execute mutate closure for a standing-based
// decision. Rejection and cancellation also cancel the lifecycle.
func (c *Coordinator) ApplyByRole(cmd ByRole, now time.Time) func(*models.Visit) {
	return func(v *models.Visit) {
		switch cmd.Outcome {
		case models.OutcomeApproved:
			actorID := cmd.Actor.ID
			v.ApplyApproval(&actorID, "", now)
		case models.OutcomeRejected:
			v.ApplyRejection(strings.TrimSpace(cmd.Reason), now)
		case models.OutcomeCancelled:
			v.ApplyCancellation(strings.TrimSpace(cmd.Reason), now)
		}
		v.AddSecurityNote(cmd.Notes)
	}
}

// ApplyByName returns the Execute mutate closure for an attested approval.
// The attestation replaces the actor identity on the record.
func (c *Coordinator) ApplyByName(cmd ByName, now time.Time) func(*models.Visit) {
	return func(v *models.Visit) {
		v.ApplyApproval(nil, strings.TrimSpace(cmd.HostName), now)
		v.AddSecurityNote(cmd.Notes)
	}
}

package service

import (
	"context"

	"gatepass/internal/notify"
	"gatepass/internal/visit/approval"
	"gatepass/internal/visit/models"
	"gatepass/internal/visit/presence"
	id "gatepass/pkg/domain"
	"gatepass/pkg/requestcontext"
)

// DecideByRoleRequest is a standing-based decision on a pending visit.
type DecideByRoleRequest struct {
	VisitID id.VisitID
	Actor   id.Actor
	Outcome models.DecisionOutcome
	Reason  string
	Notes   string
}

// DecideByNameRequest approves a pending visit on a host-name attestation.
type DecideByNameRequest struct {
	VisitID  id.VisitID
	Actor    id.Actor
	HostName string
	Notes    string
}

// DecideByRole settles a pending visit. Approval implies arrival: the visit
// is checked in within the same store transaction, after re-checking the
// credential window so a long-pending request cannot be approved into an
// already-lapsed pass. Rejection and cancellation cancel the lifecycle and
// leave presence untouched.
func (s *Service) DecideByRole(ctx context.Context, req DecideByRoleRequest) (*models.Visit, error) {
	cmd := approval.ByRole{Actor: req.Actor, Outcome: req.Outcome, Reason: req.Reason, Notes: req.Notes}
	if err := s.approvals.AuthorizeByRole(cmd); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	approving := req.Outcome == models.OutcomeApproved

	visit, err := s.visits.Execute(ctx, req.VisitID,
		func(v *models.Visit) error {
			if err := s.requireBuildingScope(req.Actor, v.BuildingID); err != nil {
				return err
			}
			if err := s.approvals.Validate()(v); err != nil {
				return err
			}
			if approving {
				return s.presence.ValidateCredentialWindow(now)(v)
			}
			return nil
		},
		func(v *models.Visit) {
			s.approvals.ApplyByRole(cmd, now)(v)
			if approving {
				s.presence.ApplyCheckIn(presence.CheckIn{Actor: req.Actor}, now)(v)
			}
			s.recordDecisionLedger(v, req.Outcome)
		},
	)
	if err != nil {
		return nil, wrapVisitErr(err)
	}

	s.afterDecision(ctx, visit, req.Outcome, "role")
	return visit, nil
}

// DecideByName approves a pending visit for a host without an account. The
// attested name is recorded in place of a decider identity; everything else
// follows the approved branch of DecideByRole, auto check-in included.
func (s *Service) DecideByName(ctx context.Context, req DecideByNameRequest) (*models.Visit, error) {
	cmd := approval.ByName{Actor: req.Actor, HostName: req.HostName, Notes: req.Notes}
	if err := s.approvals.AuthorizeByName(cmd); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)

	visit, err := s.visits.Execute(ctx, req.VisitID,
		func(v *models.Visit) error {
			if err := s.requireBuildingScope(req.Actor, v.BuildingID); err != nil {
				return err
			}
			if err := s.approvals.Validate()(v); err != nil {
				return err
			}
			return s.presence.ValidateCredentialWindow(now)(v)
		},
		func(v *models.Visit) {
			s.approvals.ApplyByName(cmd, now)(v)
			s.presence.ApplyCheckIn(presence.CheckIn{Actor: req.Actor}, now)(v)
			s.recordDecisionLedger(v, models.OutcomeApproved)
		},
	)
	if err != nil {
		return nil, wrapVisitErr(err)
	}

	s.afterDecision(ctx, visit, models.OutcomeApproved, "name")
	return visit, nil
}

// recordDecisionLedger stamps the notification flags inside the mutate
// callback so they ride the same write as the decision itself. Cancellation
// emits nothing, so it marks nothing.
func (s *Service) recordDecisionLedger(v *models.Visit, outcome models.DecisionOutcome) {
	switch outcome {
	case models.OutcomeApproved:
		if v.HostID != nil {
			v.Notifications.Host = true
		}
		v.Notifications.Admin = true
		v.Notifications.CheckIn = true
	case models.OutcomeRejected:
		if v.HostID != nil {
			v.Notifications.Host = true
		}
	}
}

// afterDecision fires the post-commit side effects. Approval tells the host
// at normal priority, the admin at low priority, and counts the implied
// check-in; rejection tells the host only.
func (s *Service) afterDecision(ctx context.Context, v *models.Visit, outcome models.DecisionOutcome, method string) {
	s.metrics.IncrementDecision(string(outcome), method)

	switch outcome {
	case models.OutcomeApproved:
		s.notify(ctx, v, notify.KindVisitApproved, notify.AudienceHost, notify.PriorityNormal,
			"visit approved, visitor checked in")
		s.notify(ctx, v, notify.KindVisitApproved, notify.AudienceAdmin, notify.PriorityLow,
			"visit approved")
		s.metrics.IncrementCheckIn("approval")
	case models.OutcomeRejected:
		s.notify(ctx, v, notify.KindVisitRejected, notify.AudienceHost, notify.PriorityNormal,
			"visit rejected: "+v.RejectionReason)
	}
}

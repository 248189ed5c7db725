package service

import (
	"context"
	"time"

	"gatepass/internal/policy"
	"gatepass/internal/visit/credential"
	"gatepass/internal/visit/models"
	visitstore "gatepass/internal/visit/store/visit"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/requestcontext"
)

// Get returns a single visit. The returned copy carries the effective status
// for "now", so a scheduled visit whose credential has lapsed reads as
// expired without any write.
func (s *Service) Get(ctx context.Context, actor id.Actor, visitID id.VisitID) (*models.Visit, error) {
	if !s.policy.Allow(actor.Role, policy.CapVisitRead) {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "role %s may not read visits", actor.Role)
	}

	visit, err := s.visits.FindByID(ctx, visitID)
	if err != nil {
		return nil, wrapVisitErr(err)
	}
	if err := s.requireBuildingScope(actor, visit.BuildingID); err != nil {
		return nil, err
	}
	return s.present(ctx, visit), nil
}

// GetByCode looks a visit up by its human-readable code, the path the front
// desk uses when a visitor reads the code off their phone.
func (s *Service) GetByCode(ctx context.Context, actor id.Actor, code string) (*models.Visit, error) {
	if !s.policy.Allow(actor.Role, policy.CapVisitRead) {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "role %s may not read visits", actor.Role)
	}

	visit, err := s.visits.FindByCode(ctx, code)
	if err != nil {
		return nil, wrapVisitErr(err)
	}
	if err := s.requireBuildingScope(actor, visit.BuildingID); err != nil {
		return nil, err
	}
	return s.present(ctx, visit), nil
}

// ListRequest narrows a building listing. Zero-value filters mean "any".
type ListRequest struct {
	Actor          id.Actor
	BuildingID     id.BuildingID
	Status         models.VisitStatus
	ApprovalStatus models.ApprovalStatus
	VisitType      models.VisitType
}

// List returns the building's visits, newest first. Status filtering is
// applied against the effective status: asking for "expired" returns
// scheduled visits whose credential window has lapsed, asking for
// "scheduled" excludes them.
func (s *Service) List(ctx context.Context, req ListRequest) ([]*models.Visit, error) {
	if !s.policy.Allow(req.Actor.Role, policy.CapVisitRead) {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "role %s may not read visits", req.Actor.Role)
	}
	if err := s.requireBuildingScope(req.Actor, req.BuildingID); err != nil {
		return nil, err
	}

	filter := visitstore.Filter{
		Status:         req.Status,
		ApprovalStatus: req.ApprovalStatus,
		VisitType:      req.VisitType,
	}
	// Expired is never stored; it is derived from scheduled rows at read
	// time, so both filters query the same stored status.
	derived := req.Status == models.StatusExpired || req.Status == models.StatusScheduled
	if derived {
		filter.Status = models.StatusScheduled
	}

	visits, err := s.visits.ListByBuilding(ctx, req.BuildingID, filter)
	if err != nil {
		return nil, wrapVisitErr(err)
	}

	now := requestcontext.Now(ctx)
	out := make([]*models.Visit, 0, len(visits))
	for _, v := range visits {
		v.Status = v.EffectiveStatus(now)
		if derived && v.Status != req.Status {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// CredentialIssue is what the credential read endpoints return: the bearer
// token plus the expiry the caller should display alongside it.
type CredentialIssue struct {
	VisitID   id.VisitID
	Code      string
	Token     string
	ExpiresAt time.Time
}

// Credential returns the visit's credential token. Only approved visits
// expose it; a pending or rejected visit has nothing a gate would accept.
func (s *Service) Credential(ctx context.Context, actor id.Actor, visitID id.VisitID) (*CredentialIssue, error) {
	if !s.policy.Allow(actor.Role, policy.CapCredentialRead) {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "role %s may not read credentials", actor.Role)
	}

	visit, err := s.visits.FindByID(ctx, visitID)
	if err != nil {
		return nil, wrapVisitErr(err)
	}
	if err := s.requireBuildingScope(actor, visit.BuildingID); err != nil {
		return nil, err
	}
	if visit.ApprovalStatus != models.ApprovalApproved {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "visit is not approved: %s", visit.ApprovalStatus)
	}

	return &CredentialIssue{
		VisitID:   visit.ID,
		Code:      visit.Code,
		Token:     visit.Credential,
		ExpiresAt: visit.CredentialExpiresAt,
	}, nil
}

// CredentialQR renders the credential as a PNG QR image for badge printing
// and visitor wallets. Same access rules as Credential.
func (s *Service) CredentialQR(ctx context.Context, actor id.Actor, visitID id.VisitID, size int) ([]byte, error) {
	issue, err := s.Credential(ctx, actor, visitID)
	if err != nil {
		return nil, err
	}
	png, err := credential.QRPNG(issue.Token, size)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render credential QR")
	}
	return png, nil
}

// present stamps the effective status on a fetched visit before returning it
// to callers. Stores hand out clones, so the write is local.
func (s *Service) present(ctx context.Context, v *models.Visit) *models.Visit {
	v.Status = v.EffectiveStatus(requestcontext.Now(ctx))
	return v
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gatepass/internal/notify"
	"gatepass/internal/policy"
	"gatepass/internal/visit/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/requestcontext"
)

// createAttempts bounds the retry loop for human-readable code collisions.
const createAttempts = 3

// CreateRequest is the intake command for a new visit.
type CreateRequest struct {
	Actor      id.Actor
	VisitorID  id.VisitorID
	HostID     *id.HostID
	BuildingID id.BuildingID
	Purpose    string
	VisitType  models.VisitType
	ExpectedAt *time.Time
}

// resolvedRefs carries the directory records gathered before intake.
type resolvedRefs struct {
	visitorName string
	hostName    string
	hostEmail   string
}

// Create mints a new visit: references resolved, approval state seeded per
// visit type, credential issued immediately with its fixed validity window.
// The host is notified when one is bound and the visit still needs a
// decision.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Visit, error) {
	start := time.Now()

	if !s.policy.Allow(req.Actor.Role, policy.CapVisitCreate) {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "role %s may not create visits", req.Actor.Role)
	}
	if err := s.requireBuildingScope(req.Actor, req.BuildingID); err != nil {
		return nil, err
	}

	refs, err := s.resolveReferences(ctx, req)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	visit, err := s.persistNewVisit(ctx, req, now)
	if err != nil {
		return nil, err
	}

	if visit.ApprovalStatus == models.ApprovalPending && visit.HostID != nil {
		// The flag was stamped before the insert so it rides the same write;
		// dispatch itself is best-effort.
		s.notify(ctx, visit, notify.KindVisitRequested, notify.AudienceHost, notify.PriorityNormal,
			refs.visitorName+" is requesting to visit")
	}

	s.metrics.IncrementCreated(string(visit.VisitType))
	s.metrics.ObserveCreateLatency(time.Since(start))
	return visit, nil
}

// resolveReferences checks visitor, building, and the optional host against
// the directory in parallel. Any unresolvable reference fails the intake
// with InvalidReference before anything is written.
func (s *Service) resolveReferences(ctx context.Context, req CreateRequest) (*resolvedRefs, error) {
	refs := &resolvedRefs{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		visitor, err := s.directory.Visitor(gctx, req.VisitorID)
		if err != nil {
			return translateDirectoryErr(err, "visitor")
		}
		refs.visitorName = visitor.Name
		return nil
	})

	g.Go(func() error {
		if _, err := s.directory.Building(gctx, req.BuildingID); err != nil {
			return translateDirectoryErr(err, "building")
		}
		return nil
	})

	if req.HostID != nil {
		hostID := *req.HostID
		g.Go(func() error {
			host, err := s.directory.Host(gctx, hostID)
			if err != nil {
				return translateDirectoryErr(err, "host")
			}
			refs.hostName = host.Name
			refs.hostEmail = host.Email
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

func translateDirectoryErr(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeInvalidReference, "%s cannot be resolved", what)
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "directory lookup failed")
}

// persistNewVisit builds and stores the aggregate, retrying with a fresh
// code (and credential) on the rare code collision.
func (s *Service) persistNewVisit(ctx context.Context, req CreateRequest, now time.Time) (*models.Visit, error) {
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := models.NewCode()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate visit code")
		}

		visit, err := models.NewVisit(models.NewVisitParams{
			ID:         id.VisitID(uuid.New()),
			Code:       code,
			VisitorID:  req.VisitorID,
			HostID:     req.HostID,
			BuildingID: req.BuildingID,
			Purpose:    req.Purpose,
			VisitType:  req.VisitType,
			ExpectedAt: req.ExpectedAt,
		}, now)
		if err != nil {
			// Constructor invariants read as input validation at the API edge.
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
			}
			return nil, err
		}

		token, expiresAt, err := s.credentials.Issue(visit.ID, visit.VisitorID, visit.BuildingID, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue credential")
		}
		if err := visit.AttachCredential(token, expiresAt); err != nil {
			return nil, err
		}

		if visit.ApprovalStatus == models.ApprovalPending && visit.HostID != nil {
			visit.Notifications.Host = true
		}

		if err := s.visits.Create(ctx, visit); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				lastErr = err
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create visit")
		}
		return visit, nil
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeInternal, "could not allocate a unique visit code")
}

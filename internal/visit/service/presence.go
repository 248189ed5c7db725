package service

import (
	"context"

	"gatepass/internal/notify"
	"gatepass/internal/visit/models"
	"gatepass/internal/visit/presence"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/requestcontext"
)

// ScanRequest presents a credential token at the gate.
type ScanRequest struct {
	Actor       id.Actor
	Token       string
	EvidenceRef string
	Notes       string
}

// CheckInRequest records an arrival by visit id, for visitors who cannot
// present their credential at the desk.
type CheckInRequest struct {
	VisitID     id.VisitID
	Actor       id.Actor
	EvidenceRef string
	Notes       string
}

// CheckOutRequest records a departure.
type CheckOutRequest struct {
	VisitID     id.VisitID
	Actor       id.Actor
	EvidenceRef string
	Notes       string
}

// Scan validates a presented credential and checks the visit in. The
// pre-flight validation gives the gate a precise refusal (unknown, expired,
// exhausted); the store transaction then re-runs the preconditions under
// lock, so two racing scans of the same credential admit exactly one.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*models.Visit, error) {
	if err := s.presence.AuthorizeScan(req.Actor); err != nil {
		return nil, err
	}

	found, err := s.credentials.Validate(ctx, req.Token, req.Actor.BuildingID)
	if err != nil {
		s.metrics.IncrementScanFailure(string(dErrors.CodeOf(err)))
		return nil, err
	}

	visit, err := s.admit(ctx, found.ID, presence.CheckIn{
		Actor:       req.Actor,
		EvidenceRef: req.EvidenceRef,
		Notes:       req.Notes,
	})
	if err != nil {
		s.metrics.IncrementScanFailure(string(dErrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.IncrementCheckIn("scan")
	return visit, nil
}

// CheckIn is the manual arrival path. Same preconditions as a scan, minus
// the token lookup: the visit must be approved, unused, and inside its
// credential window.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (*models.Visit, error) {
	if err := s.presence.AuthorizeCheckIn(req.Actor); err != nil {
		return nil, err
	}

	visit, err := s.admit(ctx, req.VisitID, presence.CheckIn{
		Actor:       req.Actor,
		EvidenceRef: req.EvidenceRef,
		Notes:       req.Notes,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCheckIn("manual")
	return visit, nil
}

// admit runs the shared check-in transaction and fires the arrival
// notifications.
func (s *Service) admit(ctx context.Context, visitID id.VisitID, cmd presence.CheckIn) (*models.Visit, error) {
	now := requestcontext.Now(ctx)

	visit, err := s.visits.Execute(ctx, visitID,
		func(v *models.Visit) error {
			if err := s.requireBuildingScope(cmd.Actor, v.BuildingID); err != nil {
				return err
			}
			return s.presence.ValidateCheckIn(now)(v)
		},
		func(v *models.Visit) {
			s.presence.ApplyCheckIn(cmd, now)(v)
			v.Notifications.CheckIn = true
		},
	)
	if err != nil {
		return nil, wrapVisitErr(err)
	}

	s.notify(ctx, visit, notify.KindVisitorArrived, notify.AudienceHost, notify.PriorityNormal,
		"visitor has arrived")
	s.notify(ctx, visit, notify.KindVisitorArrived, notify.AudienceAdmin, notify.PriorityLow,
		"visitor has arrived")
	return visit, nil
}

// CheckOut records the departure and closes the visit. Duration lands on the
// record in whole minutes; the host and admin are told the visitor left.
func (s *Service) CheckOut(ctx context.Context, req CheckOutRequest) (*models.Visit, error) {
	if err := s.presence.AuthorizeCheckOut(req.Actor); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	cmd := presence.CheckOut{Actor: req.Actor, EvidenceRef: req.EvidenceRef, Notes: req.Notes}

	visit, err := s.visits.Execute(ctx, req.VisitID,
		func(v *models.Visit) error {
			if err := s.requireBuildingScope(req.Actor, v.BuildingID); err != nil {
				return err
			}
			return s.presence.ValidateCheckOut()(v)
		},
		func(v *models.Visit) {
			s.presence.ApplyCheckOut(cmd, now)(v)
			v.Notifications.CheckOut = true
		},
	)
	if err != nil {
		return nil, wrapVisitErr(err)
	}

	s.notify(ctx, visit, notify.KindVisitorDeparted, notify.AudienceHost, notify.PriorityNormal,
		"visitor has departed")
	s.notify(ctx, visit, notify.KindVisitorDeparted, notify.AudienceAdmin, notify.PriorityLow,
		"visitor has departed")

	s.metrics.IncrementCheckOut()
	if visit.ActualDurationMinutes != nil {
		s.metrics.ObserveVisitDuration(*visit.ActualDurationMinutes)
	}
	return visit, nil
}

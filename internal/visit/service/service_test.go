package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gatepass/internal/directory"
	"gatepass/internal/notify"
	"gatepass/internal/policy"
	"gatepass/internal/visit/credential"
	"gatepass/internal/visit/models"
	visitstore "gatepass/internal/visit/store/visit"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/requestcontext"
)

// =============================================================================
// Visit Service Test Suite
// =============================================================================
// Justification for unit tests: the orchestrator composes the approval and
// presence coordinators, the credential manager, and the store's conditional
// update into single transitions. The composition rules (approve implies
// arrival, stale-approval rejection, notification ledger flags) only exist at
// this layer, so they are exercised here against the in-memory store.

type VisitServiceSuite struct {
	suite.Suite
	store      *visitstore.InMemory
	dir        *directory.Memory
	dispatcher *notify.Memory
	service    *Service

	building  id.BuildingID
	visitorID id.VisitorID
	hostID    id.HostID

	resident id.Actor
	security id.Actor
	admin    id.Actor
	super    id.Actor

	base time.Time
}

func TestVisitServiceSuite(t *testing.T) {
	suite.Run(t, new(VisitServiceSuite))
}

func (s *VisitServiceSuite) SetupTest() {
	s.store = visitstore.NewInMemory()
	s.dir = directory.NewMemory()
	s.dispatcher = notify.NewMemory()

	s.building = id.BuildingID(uuid.New())
	s.visitorID = id.VisitorID(uuid.New())
	s.hostID = id.HostID(uuid.New())

	s.dir.AddBuilding(directory.Building{ID: s.building, Name: "Harbor Point", Active: true})
	s.dir.AddVisitor(directory.Visitor{ID: s.visitorID, Name: "Dana Reyes", Active: true})
	s.dir.AddHost(directory.Host{ID: s.hostID, Name: "Priya Shah", Email: "priya@harborpoint.example", Unit: "14B", Active: true})

	s.resident = id.Actor{ID: id.ActorID(uuid.New()), Role: id.RoleResident, BuildingID: s.building}
	s.security = id.Actor{ID: id.ActorID(uuid.New()), Role: id.RoleSecurity, BuildingID: s.building}
	s.admin = id.Actor{ID: id.ActorID(uuid.New()), Role: id.RoleBuildingAdmin, BuildingID: s.building}
	s.super = id.Actor{ID: id.ActorID(uuid.New()), Role: id.RoleSuperAdmin, BuildingID: id.BuildingID(uuid.New())}

	credentials := credential.New("service-test-signing-key", 24*time.Hour, s.store)
	s.service = New(s.store, s.dir, credentials, policy.NewDefault(), WithDispatcher(s.dispatcher))

	s.base = time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
}

// at pins the request clock so transitions land on known instants.
func (s *VisitServiceSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *VisitServiceSuite) createWalkIn(t time.Time, host *id.HostID) *models.Visit {
	visit, err := s.service.Create(s.at(t), CreateRequest{
		Actor:      s.resident,
		VisitorID:  s.visitorID,
		HostID:     host,
		BuildingID: s.building,
		Purpose:    "package drop-off",
		VisitType:  models.VisitTypeWalkIn,
	})
	s.Require().NoError(err)
	return visit
}

func (s *VisitServiceSuite) createPreApproved(t time.Time) *models.Visit {
	visit, err := s.service.Create(s.at(t), CreateRequest{
		Actor:      s.resident,
		VisitorID:  s.visitorID,
		HostID:     &s.hostID,
		BuildingID: s.building,
		Purpose:    "dinner guest",
		VisitType:  models.VisitTypePreApproved,
	})
	s.Require().NoError(err)
	return visit
}

// =============================================================================
// Create
// =============================================================================

func (s *VisitServiceSuite) TestCreate() {
	s.Run("walk-in starts pending with a full credential window", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		s.Equal(models.ApprovalPending, visit.ApprovalStatus)
		s.Equal(models.StatusScheduled, visit.Status)
		s.NotEmpty(visit.Credential)
		s.True(visit.CredentialExpiresAt.Equal(s.base.Add(24 * time.Hour)))
		s.Regexp(`^V-[0-9A-Z]{6}$`, visit.Code)

		requested := s.dispatcher.ByKind(notify.KindVisitRequested)
		s.Require().Len(requested, 1)
		s.Equal(notify.AudienceHost, requested[0].Audience)
		s.Equal("Priya Shah", requested[0].HostName)
		s.Equal("priya@harborpoint.example", requested[0].HostEmail)
		s.True(visit.Notifications.Host)
	})

	s.Run("pre-approved skips the decision step", func() {
		visit := s.createPreApproved(s.base)

		s.Equal(models.ApprovalApproved, visit.ApprovalStatus)
		s.Require().NotNil(visit.ApprovedAt)
		s.True(visit.ApprovedAt.Equal(s.base))
		s.Nil(visit.CheckInTime)
		s.NotEmpty(visit.Credential)

		s.Empty(s.dispatcher.ByKind(notify.KindVisitRequested))
		s.False(visit.Notifications.Host)
	})

	s.Run("hostless visit notifies nobody", func() {
		visit := s.createWalkIn(s.base, nil)

		s.Nil(visit.HostID)
		s.False(visit.Notifications.Host)
		s.Empty(s.dispatcher.ByKind(notify.KindVisitRequested))
	})

	s.Run("unknown visitor fails before any write", func() {
		before, err := s.store.Count(context.Background())
		s.Require().NoError(err)

		_, err = s.service.Create(s.at(s.base), CreateRequest{
			Actor:      s.resident,
			VisitorID:  id.VisitorID(uuid.New()),
			BuildingID: s.building,
			Purpose:    "delivery",
			VisitType:  models.VisitTypeWalkIn,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidReference))
		s.Contains(err.Error(), "visitor")

		after, err := s.store.Count(context.Background())
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("unknown building fails with invalid reference", func() {
		_, err := s.service.Create(s.at(s.base), CreateRequest{
			Actor:      s.super,
			VisitorID:  s.visitorID,
			BuildingID: id.BuildingID(uuid.New()),
			Purpose:    "delivery",
			VisitType:  models.VisitTypeWalkIn,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidReference))
		s.Contains(err.Error(), "building")
	})

	s.Run("empty purpose reads as validation failure", func() {
		_, err := s.service.Create(s.at(s.base), CreateRequest{
			Actor:      s.resident,
			VisitorID:  s.visitorID,
			BuildingID: s.building,
			Purpose:    "   ",
			VisitType:  models.VisitTypeWalkIn,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("actors cannot create outside their building", func() {
		outsider := id.Actor{ID: id.ActorID(uuid.New()), Role: id.RoleResident, BuildingID: id.BuildingID(uuid.New())}
		_, err := s.service.Create(s.at(s.base), CreateRequest{
			Actor:      outsider,
			VisitorID:  s.visitorID,
			BuildingID: s.building,
			Purpose:    "delivery",
			VisitType:  models.VisitTypeWalkIn,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("platform role bypasses building scope", func() {
		_, err := s.service.Create(s.at(s.base), CreateRequest{
			Actor:      s.super,
			VisitorID:  s.visitorID,
			BuildingID: s.building,
			Purpose:    "inspection escort",
			VisitType:  models.VisitTypeWalkIn,
		})
		s.NoError(err)
	})

	s.Run("directory outage surfaces as unavailable", func() {
		svc := New(s.store, failingDirectory{err: errors.New("dial tcp: connection refused")},
			credential.New("service-test-signing-key", 24*time.Hour, s.store), policy.NewDefault())

		_, err := svc.Create(s.at(s.base), CreateRequest{
			Actor:      s.resident,
			VisitorID:  s.visitorID,
			BuildingID: s.building,
			Purpose:    "delivery",
			VisitType:  models.VisitTypeWalkIn,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

// failingDirectory simulates the external directory being down.
type failingDirectory struct{ err error }

func (f failingDirectory) Visitor(context.Context, id.VisitorID) (*directory.Visitor, error) {
	return nil, f.err
}
func (f failingDirectory) Host(context.Context, id.HostID) (*directory.Host, error) {
	return nil, f.err
}
func (f failingDirectory) Building(context.Context, id.BuildingID) (*directory.Building, error) {
	return nil, f.err
}

// =============================================================================
// DecideByRole
// =============================================================================

func (s *VisitServiceSuite) TestDecideByRole() {
	s.Run("approval checks the visitor in at the decision time", func() {
		visit := s.createWalkIn(s.base, &s.hostID)
		decidedAt := s.base.Add(30 * time.Minute)

		decided, err := s.service.DecideByRole(s.at(decidedAt), DecideByRoleRequest{
			VisitID: visit.ID,
			Actor:   s.security,
			Outcome: models.OutcomeApproved,
		})
		s.Require().NoError(err)

		s.Equal(models.ApprovalApproved, decided.ApprovalStatus)
		s.Equal(models.StatusInProgress, decided.Status)
		s.Require().NotNil(decided.CheckInTime)
		s.True(decided.CheckInTime.Equal(decidedAt))
		s.Require().NotNil(decided.ApprovedBy)
		s.Equal(s.security.ID, *decided.ApprovedBy)
		s.Require().NotNil(decided.ApprovedAt)
		s.True(decided.ApprovedAt.Equal(decidedAt))

		s.True(decided.Notifications.Host)
		s.True(decided.Notifications.Admin)
		s.True(decided.Notifications.CheckIn)

		approved := s.dispatcher.ByKind(notify.KindVisitApproved)
		s.Require().Len(approved, 2)
		s.Equal(notify.AudienceHost, approved[0].Audience)
		s.Equal(notify.PriorityNormal, approved[0].Priority)
		s.Equal(notify.AudienceAdmin, approved[1].Audience)
		s.Equal(notify.PriorityLow, approved[1].Priority)
	})

	s.Run("second decision is an idempotent failure", func() {
		visit := s.createWalkIn(s.base, &s.hostID)
		ctx := s.at(s.base.Add(time.Minute))

		first, err := s.service.DecideByRole(ctx, DecideByRoleRequest{
			VisitID: visit.ID, Actor: s.security, Outcome: models.OutcomeApproved,
		})
		s.Require().NoError(err)

		_, err = s.service.DecideByRole(s.at(s.base.Add(2*time.Minute)), DecideByRoleRequest{
			VisitID: visit.ID, Actor: s.admin, Outcome: models.OutcomeRejected, Reason: "changed my mind",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Contains(err.Error(), "already approved")

		unchanged, err := s.store.FindByID(context.Background(), visit.ID)
		s.Require().NoError(err)
		s.Equal(first, unchanged)
	})

	s.Run("rejection requires a reason", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		_, err := s.service.DecideByRole(s.at(s.base), DecideByRoleRequest{
			VisitID: visit.ID, Actor: s.security, Outcome: models.OutcomeRejected,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejection cancels the lifecycle and tells the host", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		rejected, err := s.service.DecideByRole(s.at(s.base.Add(time.Minute)), DecideByRoleRequest{
			VisitID: visit.ID, Actor: s.admin, Outcome: models.OutcomeRejected, Reason: "no appointment on file",
		})
		s.Require().NoError(err)

		s.Equal(models.ApprovalRejected, rejected.ApprovalStatus)
		s.Equal(models.StatusCancelled, rejected.Status)
		s.Equal("no appointment on file", rejected.RejectionReason)
		s.Nil(rejected.CheckInTime)

		events := s.dispatcher.ByKind(notify.KindVisitRejected)
		s.Require().Len(events, 1)
		s.Equal(notify.AudienceHost, events[0].Audience)
		s.Contains(events[0].Detail, "no appointment on file")
	})

	s.Run("cancellation emits no notification", func() {
		visit := s.createWalkIn(s.base, &s.hostID)
		s.dispatcher.Reset()

		cancelled, err := s.service.DecideByRole(s.at(s.base), DecideByRoleRequest{
			VisitID: visit.ID, Actor: s.admin, Outcome: models.OutcomeCancelled, Reason: "visitor no-show",
		})
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, cancelled.Status)
		s.Empty(s.dispatcher.Events())
	})

	s.Run("residents may not decide by role", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		_, err := s.service.DecideByRole(s.at(s.base), DecideByRoleRequest{
			VisitID: visit.ID, Actor: s.resident, Outcome: models.OutcomeApproved,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("stale approval is rejected, not checked in", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		_, err := s.service.DecideByRole(s.at(s.base.Add(25*time.Hour)), DecideByRoleRequest{
			VisitID: visit.ID, Actor: s.security, Outcome: models.OutcomeApproved,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialExpired))

		unchanged, err := s.store.FindByID(context.Background(), visit.ID)
		s.Require().NoError(err)
		s.Equal(models.ApprovalPending, unchanged.ApprovalStatus)
		s.Nil(unchanged.CheckInTime)
	})

	s.Run("deciders are scoped to their building", func() {
		visit := s.createWalkIn(s.base, &s.hostID)
		foreign := id.Actor{ID: id.ActorID(uuid.New()), Role: id.RoleSecurity, BuildingID: id.BuildingID(uuid.New())}

		_, err := s.service.DecideByRole(s.at(s.base), DecideByRoleRequest{
			VisitID: visit.ID, Actor: foreign, Outcome: models.OutcomeApproved,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("platform role decides across buildings", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		decided, err := s.service.DecideByRole(s.at(s.base), DecideByRoleRequest{
			VisitID: visit.ID, Actor: s.super, Outcome: models.OutcomeApproved,
		})
		s.Require().NoError(err)
		s.Equal(models.ApprovalApproved, decided.ApprovalStatus)
	})
}

// =============================================================================
// DecideByName
// =============================================================================

func (s *VisitServiceSuite) TestDecideByName() {
	s.Run("records the attested name in place of an identity", func() {
		visit := s.createWalkIn(s.base, &s.hostID)
		decidedAt := s.base.Add(10 * time.Minute)

		decided, err := s.service.DecideByName(s.at(decidedAt), DecideByNameRequest{
			VisitID:  visit.ID,
			Actor:    s.resident,
			HostName: "  Priya Shah  ",
		})
		s.Require().NoError(err)

		s.Equal(models.ApprovalApproved, decided.ApprovalStatus)
		s.Nil(decided.ApprovedBy)
		s.Equal("Priya Shah", decided.ApprovedByName)
		s.Equal(models.StatusInProgress, decided.Status)
		s.Require().NotNil(decided.CheckInTime)
		s.True(decided.CheckInTime.Equal(decidedAt))

		s.Len(s.dispatcher.ByKind(notify.KindVisitApproved), 2)
	})

	s.Run("attestation requires a name", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		_, err := s.service.DecideByName(s.at(s.base), DecideByNameRequest{
			VisitID: visit.ID, Actor: s.resident, HostName: "   ",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("stale attestation is rejected like any stale approval", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		_, err := s.service.DecideByName(s.at(s.base.Add(25*time.Hour)), DecideByNameRequest{
			VisitID: visit.ID, Actor: s.resident, HostName: "Priya Shah",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialExpired))
	})
}

// =============================================================================
// Scan
// =============================================================================

func (s *VisitServiceSuite) TestScan() {
	s.Run("admits an approved visitor", func() {
		visit := s.createPreApproved(s.base)
		arrivedAt := s.base.Add(2 * time.Hour)

		admitted, err := s.service.Scan(s.at(arrivedAt), ScanRequest{
			Actor: s.security,
			Token: visit.Credential,
		})
		s.Require().NoError(err)

		s.Equal(models.StatusInProgress, admitted.Status)
		s.Require().NotNil(admitted.CheckInTime)
		s.True(admitted.CheckInTime.Equal(arrivedAt))
		s.True(admitted.Notifications.CheckIn)

		arrived := s.dispatcher.ByKind(notify.KindVisitorArrived)
		s.Require().Len(arrived, 2)
		s.Equal(notify.AudienceHost, arrived[0].Audience)
		s.Equal(notify.AudienceAdmin, arrived[1].Audience)
	})

	s.Run("expired credential is refused even on first use", func() {
		visit := s.createPreApproved(s.base)

		_, err := s.service.Scan(s.at(s.base.Add(25*time.Hour)), ScanRequest{
			Actor: s.security,
			Token: visit.Credential,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialExpired))

		unchanged, ferr := s.store.FindByID(context.Background(), visit.ID)
		s.Require().NoError(ferr)
		s.Nil(unchanged.CheckInTime)
		s.Equal(models.StatusScheduled, unchanged.Status)
	})

	s.Run("credential is single use", func() {
		visit := s.createPreApproved(s.base)
		ctx := s.at(s.base.Add(time.Hour))

		_, err := s.service.Scan(ctx, ScanRequest{Actor: s.security, Token: visit.Credential})
		s.Require().NoError(err)

		_, err = s.service.Scan(s.at(s.base.Add(2*time.Hour)), ScanRequest{Actor: s.security, Token: visit.Credential})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialExhausted))
	})

	s.Run("unknown token is not recognized", func() {
		_, err := s.service.Scan(s.at(s.base), ScanRequest{Actor: s.security, Token: "not-a-credential"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialNotFound))
	})

	s.Run("credential is bound to its building", func() {
		visit := s.createPreApproved(s.base)
		foreign := id.Actor{ID: id.ActorID(uuid.New()), Role: id.RoleSecurity, BuildingID: id.BuildingID(uuid.New())}

		_, err := s.service.Scan(s.at(s.base), ScanRequest{Actor: foreign, Token: visit.Credential})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialNotFound))
	})

	s.Run("pending visit cannot be scanned in", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		_, err := s.service.Scan(s.at(s.base.Add(time.Hour)), ScanRequest{Actor: s.security, Token: visit.Credential})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Contains(err.Error(), "not approved")
	})

	s.Run("only security scans", func() {
		visit := s.createPreApproved(s.base)

		for _, actor := range []id.Actor{s.resident, s.admin, s.super} {
			_, err := s.service.Scan(s.at(s.base), ScanRequest{Actor: actor, Token: visit.Credential})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		}
	})
}

// =============================================================================
// Manual check-in
// =============================================================================

func (s *VisitServiceSuite) TestCheckIn() {
	s.Run("records an arrival by visit id", func() {
		visit := s.createPreApproved(s.base)
		arrivedAt := s.base.Add(time.Hour)

		admitted, err := s.service.CheckIn(s.at(arrivedAt), CheckInRequest{
			VisitID:     visit.ID,
			Actor:       s.admin,
			EvidenceRef: "photo/2025/11/03/8842.jpg",
		})
		s.Require().NoError(err)

		s.Equal(models.StatusInProgress, admitted.Status)
		s.Equal("photo/2025/11/03/8842.jpg", admitted.CheckInEvidence)
		s.Len(s.dispatcher.ByKind(notify.KindVisitorArrived), 2)
	})

	s.Run("respects the credential window", func() {
		visit := s.createPreApproved(s.base)

		_, err := s.service.CheckIn(s.at(s.base.Add(25*time.Hour)), CheckInRequest{
			VisitID: visit.ID, Actor: s.security,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCredentialExpired))
	})

	s.Run("double arrival is refused", func() {
		visit := s.createPreApproved(s.base)

		_, err := s.service.CheckIn(s.at(s.base), CheckInRequest{VisitID: visit.ID, Actor: s.security})
		s.Require().NoError(err)

		_, err = s.service.CheckIn(s.at(s.base.Add(time.Minute)), CheckInRequest{VisitID: visit.ID, Actor: s.security})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Contains(err.Error(), "already checked in")
	})

	s.Run("desk roles only", func() {
		visit := s.createPreApproved(s.base)

		for _, actor := range []id.Actor{s.resident, s.super} {
			_, err := s.service.CheckIn(s.at(s.base), CheckInRequest{VisitID: visit.ID, Actor: actor})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		}
	})
}

// =============================================================================
// CheckOut
// =============================================================================

func (s *VisitServiceSuite) TestCheckOut() {
	s.Run("closes the visit and records whole-minute duration", func() {
		visit := s.createPreApproved(s.base)

		_, err := s.service.Scan(s.at(s.base), ScanRequest{Actor: s.security, Token: visit.Credential})
		s.Require().NoError(err)

		departedAt := s.base.Add(45 * time.Minute)
		closed, err := s.service.CheckOut(s.at(departedAt), CheckOutRequest{
			VisitID: visit.ID,
			Actor:   s.security,
		})
		s.Require().NoError(err)

		s.Equal(models.StatusCompleted, closed.Status)
		s.Require().NotNil(closed.CheckOutTime)
		s.True(closed.CheckOutTime.Equal(departedAt))
		s.Require().NotNil(closed.ActualDurationMinutes)
		s.Equal(45, *closed.ActualDurationMinutes)
		s.True(closed.Notifications.CheckOut)

		departed := s.dispatcher.ByKind(notify.KindVisitorDeparted)
		s.Require().Len(departed, 2)
	})

	s.Run("departure before arrival is refused", func() {
		visit := s.createPreApproved(s.base)

		_, err := s.service.CheckOut(s.at(s.base), CheckOutRequest{VisitID: visit.ID, Actor: s.security})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Contains(err.Error(), "has not checked in")
	})

	s.Run("double departure is refused", func() {
		visit := s.createPreApproved(s.base)
		_, err := s.service.Scan(s.at(s.base), ScanRequest{Actor: s.security, Token: visit.Credential})
		s.Require().NoError(err)
		_, err = s.service.CheckOut(s.at(s.base.Add(time.Hour)), CheckOutRequest{VisitID: visit.ID, Actor: s.security})
		s.Require().NoError(err)

		_, err = s.service.CheckOut(s.at(s.base.Add(2*time.Hour)), CheckOutRequest{VisitID: visit.ID, Actor: s.security})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Contains(err.Error(), "already checked out")
	})

	s.Run("desk roles only", func() {
		visit := s.createPreApproved(s.base)
		_, err := s.service.Scan(s.at(s.base), ScanRequest{Actor: s.security, Token: visit.Credential})
		s.Require().NoError(err)

		for _, actor := range []id.Actor{s.resident, s.super} {
			_, err := s.service.CheckOut(s.at(s.base.Add(time.Hour)), CheckOutRequest{VisitID: visit.ID, Actor: actor})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		}
	})
}

// =============================================================================
// Notification failures
// =============================================================================

func (s *VisitServiceSuite) TestNotificationFailuresNeverAbortTransitions() {
	s.dispatcher.FailWith(errors.New("smtp relay down"))

	visit := s.createWalkIn(s.base, &s.hostID)

	decided, err := s.service.DecideByRole(s.at(s.base.Add(time.Minute)), DecideByRoleRequest{
		VisitID: visit.ID, Actor: s.security, Outcome: models.OutcomeApproved,
	})
	s.Require().NoError(err)
	s.Equal(models.ApprovalApproved, decided.ApprovalStatus)
	s.Equal(models.StatusInProgress, decided.Status)

	// Ledger flags mark the attempt, not the delivery.
	s.True(decided.Notifications.Host)
	s.True(decided.Notifications.Admin)

	_, err = s.service.CheckOut(s.at(s.base.Add(time.Hour)), CheckOutRequest{VisitID: visit.ID, Actor: s.security})
	s.NoError(err)
}

// =============================================================================
// Reads
// =============================================================================

func (s *VisitServiceSuite) TestReads() {
	s.Run("get reports the effective status", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		fresh, err := s.service.Get(s.at(s.base.Add(time.Hour)), s.security, visit.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusScheduled, fresh.Status)

		lapsed, err := s.service.Get(s.at(s.base.Add(25*time.Hour)), s.security, visit.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, lapsed.Status)
		s.Equal(models.ApprovalPending, lapsed.ApprovalStatus)

		// Derivation is a read-time view, never a write.
		stored, err := s.store.FindByID(context.Background(), visit.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusScheduled, stored.Status)
	})

	s.Run("get by code is case-insensitive", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		found, err := s.service.GetByCode(s.at(s.base), s.security, "  "+strings.ToLower(visit.Code)+" ")
		s.Require().NoError(err)
		s.Equal(visit.ID, found.ID)
	})

	s.Run("unknown visit reads as not found", func() {
		_, err := s.service.Get(s.at(s.base), s.security, id.VisitID(uuid.New()))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("reads are scoped to the actor's building", func() {
		visit := s.createWalkIn(s.base, &s.hostID)
		foreign := id.Actor{ID: id.ActorID(uuid.New()), Role: id.RoleSecurity, BuildingID: id.BuildingID(uuid.New())}

		_, err := s.service.Get(s.at(s.base), foreign, visit.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.Get(s.at(s.base), s.super, visit.ID)
		s.NoError(err)
	})
}

func (s *VisitServiceSuite) TestList() {
	stale := s.createWalkIn(s.base.Add(-25*time.Hour), &s.hostID)
	pending := s.createWalkIn(s.base, &s.hostID)
	approved := s.createPreApproved(s.base)
	_, err := s.service.Scan(s.at(s.base), ScanRequest{Actor: s.security, Token: approved.Credential})
	s.Require().NoError(err)

	ctx := s.at(s.base)

	s.Run("lists everything newest first", func() {
		visits, err := s.service.List(ctx, ListRequest{Actor: s.security, BuildingID: s.building})
		s.Require().NoError(err)
		s.Len(visits, 3)
	})

	s.Run("scheduled excludes lapsed windows", func() {
		visits, err := s.service.List(ctx, ListRequest{
			Actor: s.security, BuildingID: s.building, Status: models.StatusScheduled,
		})
		s.Require().NoError(err)
		s.Require().Len(visits, 1)
		s.Equal(pending.ID, visits[0].ID)
	})

	s.Run("expired is derived from lapsed scheduled visits", func() {
		visits, err := s.service.List(ctx, ListRequest{
			Actor: s.security, BuildingID: s.building, Status: models.StatusExpired,
		})
		s.Require().NoError(err)
		s.Require().Len(visits, 1)
		s.Equal(stale.ID, visits[0].ID)
		s.Equal(models.StatusExpired, visits[0].Status)
	})

	s.Run("stored statuses filter directly", func() {
		visits, err := s.service.List(ctx, ListRequest{
			Actor: s.security, BuildingID: s.building, Status: models.StatusInProgress,
		})
		s.Require().NoError(err)
		s.Require().Len(visits, 1)
		s.Equal(approved.ID, visits[0].ID)
	})

	s.Run("approval filter narrows to pending", func() {
		visits, err := s.service.List(ctx, ListRequest{
			Actor: s.security, BuildingID: s.building, ApprovalStatus: models.ApprovalPending,
		})
		s.Require().NoError(err)
		s.Len(visits, 2)
	})

	s.Run("listing another building is forbidden", func() {
		_, err := s.service.List(ctx, ListRequest{Actor: s.security, BuildingID: id.BuildingID(uuid.New())})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// =============================================================================
// Credential surface
// =============================================================================

func (s *VisitServiceSuite) TestCredential() {
	s.Run("approved visit exposes token and expiry", func() {
		visit := s.createPreApproved(s.base)

		issue, err := s.service.Credential(s.at(s.base), s.security, visit.ID)
		s.Require().NoError(err)
		s.Equal(visit.Credential, issue.Token)
		s.True(issue.ExpiresAt.Equal(visit.CredentialExpiresAt))
		s.Equal(visit.Code, issue.Code)
	})

	s.Run("pending visit has no credential to show", func() {
		visit := s.createWalkIn(s.base, &s.hostID)

		_, err := s.service.Credential(s.at(s.base), s.security, visit.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("residents may not read credentials", func() {
		visit := s.createPreApproved(s.base)

		_, err := s.service.Credential(s.at(s.base), s.resident, visit.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("qr renders the token as png", func() {
		visit := s.createPreApproved(s.base)

		png, err := s.service.CredentialQR(s.at(s.base), s.admin, visit.ID, 256)
		s.Require().NoError(err)
		s.True(len(png) > 8)
		s.Equal("\x89PNG", string(png[:4]))
	})
}

// =============================================================================
// Concurrency
// =============================================================================

// TestConcurrentScans drives racing scans of one credential through the full
// service path. Exactly one must admit the visitor; every loser must fail a
// precondition, never double-admit.
func (s *VisitServiceSuite) TestConcurrentScans() {
	visit := s.createPreApproved(s.base)
	ctx := s.at(s.base.Add(time.Hour))

	const attempts = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		refusals  atomic.Int32
	)

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := s.service.Scan(ctx, ScanRequest{Actor: s.security, Token: visit.Credential})
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeInvalidState) || dErrors.HasCode(err, dErrors.CodeCredentialExhausted):
				refusals.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(attempts-1), refusals.Load())

	final, err := s.store.FindByID(context.Background(), visit.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, final.Status)
	s.NotNil(final.CheckInTime)
}

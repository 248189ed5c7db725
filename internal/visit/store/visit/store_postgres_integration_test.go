//go:build integration

package visit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gatepass/internal/visit/models"
	visitstore "gatepass/internal/visit/store/visit"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *visitstore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = visitstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "visits")
	s.Require().NoError(err)
}

func newTestVisit(t *testing.T, buildingID id.BuildingID) *models.Visit {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	code, err := models.NewCode()
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	hostID := id.HostID(uuid.New())
	v, err := models.NewVisit(models.NewVisitParams{
		ID:         id.VisitID(uuid.New()),
		Code:       code,
		VisitorID:  id.VisitorID(uuid.New()),
		HostID:     &hostID,
		BuildingID: buildingID,
		Purpose:    "site survey",
		VisitType:  models.VisitTypePreApproved,
	}, now)
	if err != nil {
		t.Fatalf("new visit: %v", err)
	}
	if err := v.AttachCredential("cred-"+uuid.NewString(), now.Add(24*time.Hour)); err != nil {
		t.Fatalf("attach credential: %v", err)
	}
	return v
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	v := newTestVisit(s.T(), id.BuildingID(uuid.New()))

	s.Require().NoError(s.store.Create(ctx, v))

	found, err := s.store.FindByID(ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(v.Code, found.Code)
	s.Equal(v.Purpose, found.Purpose)
	s.Equal(v.Credential, found.Credential)
	s.Equal(models.ApprovalApproved, found.ApprovalStatus)
	s.Require().NotNil(found.HostID)
	s.Equal(*v.HostID, *found.HostID)
	s.Require().NotNil(found.ApprovedAt)
	s.WithinDuration(*v.ApprovedAt, *found.ApprovedAt, time.Millisecond)

	byCode, err := s.store.FindByCode(ctx, v.Code)
	s.Require().NoError(err)
	s.Equal(v.ID, byCode.ID)

	byCred, err := s.store.FindByCredential(ctx, v.Credential)
	s.Require().NoError(err)
	s.Equal(v.ID, byCred.ID)
}

func (s *PostgresStoreSuite) TestUniqueConstraints() {
	ctx := context.Background()
	building := id.BuildingID(uuid.New())

	first := newTestVisit(s.T(), building)
	s.Require().NoError(s.store.Create(ctx, first))

	dupCode := newTestVisit(s.T(), building)
	dupCode.Code = first.Code
	s.ErrorIs(s.store.Create(ctx, dupCode), sentinel.ErrAlreadyUsed)

	dupCred := newTestVisit(s.T(), building)
	dupCred.Credential = first.Credential
	s.ErrorIs(s.store.Create(ctx, dupCred), sentinel.ErrAlreadyUsed)

	dupID := newTestVisit(s.T(), building)
	dupID.ID = first.ID
	s.ErrorIs(s.store.Create(ctx, dupID), sentinel.ErrConflict)
}

// TestConcurrentCheckIn verifies the row lock serializes racing conditional
// updates: exactly one check-in wins, every other attempt is refused with the
// already-checked-in state error.
func (s *PostgresStoreSuite) TestConcurrentCheckIn() {
	ctx := context.Background()
	v := newTestVisit(s.T(), id.BuildingID(uuid.New()))
	s.Require().NoError(s.store.Create(ctx, v))

	const goroutines = 25
	var wg sync.WaitGroup
	var successCount, refusedCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := s.store.Execute(ctx, v.ID,
				func(cur *models.Visit) error { return cur.CanCheckIn() },
				func(cur *models.Visit) { cur.ApplyCheckIn(time.Now().UTC(), "") },
			)
			switch {
			case err == nil:
				successCount.Add(1)
			case dErrors.Is(err, dErrors.CodeInvalidState):
				refusedCount.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one check-in should succeed")
	s.Equal(int32(goroutines-1), refusedCount.Load(), "all others should see invalid state")

	found, err := s.store.FindByID(ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, found.Status)
	s.NotNil(found.CheckInTime)
}

func (s *PostgresStoreSuite) TestExecutePersistsFullDecision() {
	ctx := context.Background()
	building := id.BuildingID(uuid.New())

	v := newTestVisit(s.T(), building)
	v.ApprovalStatus = models.ApprovalPending
	v.ApprovedAt = nil
	s.Require().NoError(s.store.Create(ctx, v))

	decider := id.ActorID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := s.store.Execute(ctx, v.ID,
		func(cur *models.Visit) error { return cur.CanDecide() },
		func(cur *models.Visit) {
			cur.ApplyApproval(&decider, "", now)
			cur.ApplyCheckIn(now, "photo://desk/42")
			cur.Notifications.Host = true
			cur.Notifications.CheckIn = true
		},
	)
	s.Require().NoError(err)
	s.Equal(models.ApprovalApproved, updated.ApprovalStatus)

	found, err := s.store.FindByID(ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(models.ApprovalApproved, found.ApprovalStatus)
	s.Equal(models.StatusInProgress, found.Status)
	s.Require().NotNil(found.ApprovedBy)
	s.Equal(decider, *found.ApprovedBy)
	s.Equal("photo://desk/42", found.CheckInEvidence)
	s.True(found.Notifications.Host)
	s.True(found.Notifications.CheckIn)
	s.False(found.Notifications.CheckOut)
}

func (s *PostgresStoreSuite) TestListByBuilding() {
	ctx := context.Background()
	building := id.BuildingID(uuid.New())

	pending := newTestVisit(s.T(), building)
	pending.VisitType = models.VisitTypeWalkIn
	pending.ApprovalStatus = models.ApprovalPending
	pending.ApprovedAt = nil
	pending.CreatedAt = pending.CreatedAt.Add(-time.Hour)
	pending.UpdatedAt = pending.CreatedAt

	approved := newTestVisit(s.T(), building)
	other := newTestVisit(s.T(), id.BuildingID(uuid.New()))

	for _, v := range []*models.Visit{pending, approved, other} {
		s.Require().NoError(s.store.Create(ctx, v))
	}

	all, err := s.store.ListByBuilding(ctx, building, visitstore.Filter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(approved.ID, all[0].ID, "newest first")

	pendingOnly, err := s.store.ListByBuilding(ctx, building, visitstore.Filter{
		ApprovalStatus: models.ApprovalPending,
	})
	s.Require().NoError(err)
	s.Require().Len(pendingOnly, 1)
	s.Equal(pending.ID, pendingOnly[0].ID)

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(3, count)
}

func (s *PostgresStoreSuite) TestNotFound() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, id.VisitID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByCode(ctx, "V-MISSIN")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByCredential(ctx, "cred-missing")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Execute(ctx, id.VisitID(uuid.New()),
		func(*models.Visit) error { return nil },
		func(*models.Visit) {},
	)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

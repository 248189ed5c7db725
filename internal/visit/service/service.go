// Package service orchestrates the visit lifecycle: intake, decision,
// presence, and the credential surface. It owns nothing domain-specific
// itself; rules live in the approval and presence coordinators and on the
// aggregate, and every transition commits through the store's Execute.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gatepass/internal/directory"
	"gatepass/internal/notify"
	"gatepass/internal/policy"
	"gatepass/internal/visit/approval"
	visitmetrics "gatepass/internal/visit/metrics"
	"gatepass/internal/visit/models"
	"gatepass/internal/visit/presence"
	visitstore "gatepass/internal/visit/store/visit"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/requestcontext"
)

// VisitStore persists visit aggregates. Execute must run validate and mutate
// against current state with no concurrent writer in between; the memory
// store holds its write lock, the postgres store a row lock.
type VisitStore interface {
	Create(ctx context.Context, v *models.Visit) error
	FindByID(ctx context.Context, visitID id.VisitID) (*models.Visit, error)
	FindByCode(ctx context.Context, code string) (*models.Visit, error)
	ListByBuilding(ctx context.Context, buildingID id.BuildingID, f visitstore.Filter) ([]*models.Visit, error)
	Execute(ctx context.Context, visitID id.VisitID, validate func(*models.Visit) error, mutate func(*models.Visit)) (*models.Visit, error)
}

// Directory resolves visitor, host, and building references against the
// managed-building directory.
type Directory interface {
	Visitor(ctx context.Context, visitorID id.VisitorID) (*directory.Visitor, error)
	Host(ctx context.Context, hostID id.HostID) (*directory.Host, error)
	Building(ctx context.Context, buildingID id.BuildingID) (*directory.Building, error)
}

// CredentialManager mints and validates entry credentials.
type CredentialManager interface {
	Issue(visitID id.VisitID, visitorID id.VisitorID, buildingID id.BuildingID, issuedAt time.Time) (string, time.Time, error)
	Validate(ctx context.Context, token string, buildingID id.BuildingID) (*models.Visit, error)
}

// Dispatcher delivers notification events. Dispatch failures never propagate
// out of this package; they are logged and swallowed.
type Dispatcher interface {
	Dispatch(ctx context.Context, e notify.Event) error
}

// Service is the visit lifecycle orchestrator.
type Service struct {
	visits      VisitStore
	directory   Directory
	credentials CredentialManager
	policy      *policy.Engine
	approvals   *approval.Coordinator
	presence    *presence.Coordinator
	dispatcher  Dispatcher
	logger      *slog.Logger
	metrics     *visitmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

func WithMetrics(m *visitmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service. The policy engine also seeds the approval and
// presence coordinators so every role gate resolves from one table.
func New(visits VisitStore, dir Directory, credentials CredentialManager, pol *policy.Engine, opts ...Option) *Service {
	s := &Service{
		visits:      visits,
		directory:   dir,
		credentials: credentials,
		policy:      pol,
		approvals:   approval.New(pol),
		presence:    presence.New(pol),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// requireBuildingScope refuses cross-building access. The platform-wide role
// bypasses the check; everyone else operates inside their own building only.
func (s *Service) requireBuildingScope(actor id.Actor, buildingID id.BuildingID) error {
	if s.policy.BypassesBuildingScope(actor.Role) {
		return nil
	}
	if actor.BuildingID != buildingID {
		return dErrors.New(dErrors.CodeForbidden, "operation is outside the actor's building")
	}
	return nil
}

// wrapVisitErr translates store errors for callers: missing rows become
// NotFound, domain errors pass through untouched, anything else is an
// internal failure.
func wrapVisitErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "visit not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "visit store failure")
}

// notify dispatches one event, best-effort. Host-audience events resolve the
// host's contact through the directory; a failed lookup just sends the event
// without contact details so sinks that don't need them still fire.
func (s *Service) notify(ctx context.Context, v *models.Visit, kind notify.Kind, audience notify.Audience, priority notify.Priority, detail string) {
	if s.dispatcher == nil {
		return
	}
	if audience == notify.AudienceHost && v.HostID == nil {
		return
	}

	e := notify.Event{
		Kind:       kind,
		Priority:   priority,
		Audience:   audience,
		VisitID:    v.ID,
		VisitCode:  v.Code,
		BuildingID: v.BuildingID,
		Detail:     detail,
		OccurredAt: requestcontext.Now(ctx),
		RequestID:  requestcontext.RequestID(ctx),
	}
	if audience == notify.AudienceHost {
		if host, err := s.directory.Host(ctx, *v.HostID); err == nil {
			e.HostName = host.Name
			e.HostEmail = host.Email
		}
		if visitor, err := s.directory.Visitor(ctx, v.VisitorID); err == nil {
			e.VisitorName = visitor.Name
		}
	}

	if err := s.dispatcher.Dispatch(ctx, e); err != nil {
		s.warn(ctx, "notification dispatch failed",
			"kind", string(kind),
			"audience", string(audience),
			"visit_id", v.ID.String(),
			"error", err,
		)
	}
}

func (s *Service) warn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gatepass/internal/visit/models"
	"gatepass/internal/visit/service"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/httputil"
	"gatepass/pkg/requestcontext"
)

// Service defines the interface for visit lifecycle operations.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Visit, error)
	Get(ctx context.Context, actor id.Actor, visitID id.VisitID) (*models.Visit, error)
	GetByCode(ctx context.Context, actor id.Actor, code string) (*models.Visit, error)
	List(ctx context.Context, req service.ListRequest) ([]*models.Visit, error)
	DecideByRole(ctx context.Context, req service.DecideByRoleRequest) (*models.Visit, error)
	DecideByName(ctx context.Context, req service.DecideByNameRequest) (*models.Visit, error)
	Scan(ctx context.Context, req service.ScanRequest) (*models.Visit, error)
	CheckIn(ctx context.Context, req service.CheckInRequest) (*models.Visit, error)
	CheckOut(ctx context.Context, req service.CheckOutRequest) (*models.Visit, error)
	Credential(ctx context.Context, actor id.Actor, visitID id.VisitID) (*service.CredentialIssue, error)
	CredentialQR(ctx context.Context, actor id.Actor, visitID id.VisitID, size int) ([]byte, error)
}

// Handler wires visit endpoints to the visit service.
type Handler struct {
	service   Service
	logger    *slog.Logger
	scanLimit func(http.Handler) http.Handler
}

// Option configures optional handler behavior.
type Option func(h *Handler)

// WithScanLimiter installs a middleware guarding the scan endpoint, the one
// route exposed to high-frequency gate hardware.
func WithScanLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.scanLimit = mw
	}
}

// New constructs a visit handler with its dependencies.
func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts visit endpoints on the router. Callers are expected to
// have installed actor authentication upstream.
func (h *Handler) Register(r chi.Router) {
	r.Route("/visits", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/code/{code}", h.HandleGetByCode)

		if h.scanLimit != nil {
			r.With(h.scanLimit).Post("/scan", h.HandleScan)
		} else {
			r.Post("/scan", h.HandleScan)
		}

		r.Route("/{visitID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/decision", h.HandleDecide)
			r.Post("/approve-by-name", h.HandleApproveByName)
			r.Post("/checkin", h.HandleCheckIn)
			r.Post("/checkout", h.HandleCheckOut)
			r.Get("/credential", h.HandleCredential)
			r.Get("/credential/qr", h.HandleCredentialQR)
		})
	})
}

// actor pulls the authenticated actor placed in context by the auth
// middleware. A missing actor means the route was mounted without it.
func (h *Handler) actor(ctx context.Context, w http.ResponseWriter) (id.Actor, bool) {
	actor, ok := requestcontext.Actor(ctx)
	if !ok || actor.IsZero() {
		h.logger.ErrorContext(ctx, "actor missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.Actor{}, false
	}
	return actor, true
}

func (h *Handler) visitID(w http.ResponseWriter, r *http.Request) (id.VisitID, bool) {
	visitID, err := id.ParseVisitID(chi.URLParam(r, "visitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.VisitID{}, false
	}
	return visitID, true
}

// writeServiceError logs and writes a failed service call. Domain refusals
// are expected traffic and log at warn; anything uncoded is an internal
// failure and logs at error.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed", "request_id", requestID, "error", err)
	} else {
		h.logger.WarnContext(ctx, op+" refused", "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}

// HandleCreate handles POST /visits requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateVisitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	visit, err := h.service.Create(ctx, service.CreateRequest{
		Actor:      actor,
		VisitorID:  req.ParsedVisitorID(),
		HostID:     req.ParsedHostID(),
		BuildingID: req.ParsedBuildingID(),
		Purpose:    req.Purpose,
		VisitType:  req.ParsedVisitType(),
		ExpectedAt: req.ExpectedAt,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "visit creation", err)
		return
	}

	h.logger.InfoContext(ctx, "visit created",
		"request_id", requestID,
		"visit_id", visit.ID,
		"visit_type", visit.VisitType,
		"approval_status", visit.ApprovalStatus,
	)
	httputil.WriteJSON(w, http.StatusCreated, visit)
}

// HandleGet handles GET /visits/{visitID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}

	visit, err := h.service.Get(ctx, actor, visitID)
	if err != nil {
		h.writeServiceError(ctx, w, "visit lookup", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, visit)
}

// HandleGetByCode handles GET /visits/code/{code} requests.
func (h *Handler) HandleGetByCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}

	visit, err := h.service.GetByCode(ctx, actor, chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(ctx, w, "visit lookup", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, visit)
}

// HandleList handles GET /visits requests for the actor's building.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}

	req := service.ListRequest{Actor: actor, BuildingID: actor.BuildingID}

	q := r.URL.Query()
	if raw := q.Get("building_id"); raw != "" {
		buildingID, err := id.ParseBuildingID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.BuildingID = buildingID
	}
	if raw := q.Get("status"); raw != "" {
		status, err := models.ParseVisitStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.Status = status
	}
	if raw := q.Get("approval"); raw != "" {
		approval, err := models.ParseApprovalStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.ApprovalStatus = approval
	}
	if raw := q.Get("type"); raw != "" {
		visitType, err := models.ParseVisitType(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.VisitType = visitType
	}

	visits, err := h.service.List(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "visit listing", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Visits: visits, Count: len(visits)})
}

// HandleDecide handles POST /visits/{visitID}/decision requests.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[DecideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	visit, err := h.service.DecideByRole(ctx, service.DecideByRoleRequest{
		VisitID: visitID,
		Actor:   actor,
		Outcome: req.ParsedOutcome(),
		Reason:  req.Reason,
		Notes:   req.Notes,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "visit decision", err)
		return
	}

	h.logger.InfoContext(ctx, "visit decided",
		"request_id", requestID,
		"visit_id", visit.ID,
		"outcome", req.ParsedOutcome(),
		"approval_status", visit.ApprovalStatus,
	)
	httputil.WriteJSON(w, http.StatusOK, visit)
}

// HandleApproveByName handles POST /visits/{visitID}/approve-by-name requests.
func (h *Handler) HandleApproveByName(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[ApproveByNameRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	visit, err := h.service.DecideByName(ctx, service.DecideByNameRequest{
		VisitID:  visitID,
		Actor:    actor,
		HostName: req.HostName,
		Notes:    req.Notes,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "visit approval by name", err)
		return
	}

	h.logger.InfoContext(ctx, "visit approved by host name",
		"request_id", requestID,
		"visit_id", visit.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, visit)
}

// HandleScan handles POST /visits/scan requests.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[ScanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	visit, err := h.service.Scan(ctx, service.ScanRequest{
		Actor:       actor,
		Token:       req.Token,
		EvidenceRef: req.EvidenceRef,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "credential scan", err)
		return
	}

	h.logger.InfoContext(ctx, "visitor admitted",
		"request_id", requestID,
		"visit_id", visit.ID,
		"device", requestcontext.Device(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, visit)
}

// HandleCheckIn handles POST /visits/{visitID}/checkin requests. The body is
// optional; without one the arrival is recorded with no evidence reference.
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}

	req := &PresenceRequest{}
	if r.ContentLength > 0 {
		req, ok = httputil.DecodeAndPrepare[PresenceRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
	}

	visit, err := h.service.CheckIn(ctx, service.CheckInRequest{
		VisitID:     visitID,
		Actor:       actor,
		EvidenceRef: req.EvidenceRef,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "check-in", err)
		return
	}

	h.logger.InfoContext(ctx, "visitor checked in",
		"request_id", requestID,
		"visit_id", visit.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, visit)
}

// HandleCheckOut handles POST /visits/{visitID}/checkout requests. The body
// is optional, as with check-in.
func (h *Handler) HandleCheckOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}

	req := &PresenceRequest{}
	if r.ContentLength > 0 {
		req, ok = httputil.DecodeAndPrepare[PresenceRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
	}

	visit, err := h.service.CheckOut(ctx, service.CheckOutRequest{
		VisitID:     visitID,
		Actor:       actor,
		EvidenceRef: req.EvidenceRef,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "check-out", err)
		return
	}

	h.logger.InfoContext(ctx, "visitor checked out",
		"request_id", requestID,
		"visit_id", visit.ID,
		"duration_minutes", visit.ActualDurationMinutes,
	)
	httputil.WriteJSON(w, http.StatusOK, visit)
}

// HandleCredential handles GET /visits/{visitID}/credential requests.
func (h *Handler) HandleCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}

	issue, err := h.service.Credential(ctx, actor, visitID)
	if err != nil {
		h.writeServiceError(ctx, w, "credential lookup", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromCredentialIssue(issue))
}

// HandleCredentialQR handles GET /visits/{visitID}/credential/qr requests.
func (h *Handler) HandleCredentialQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}

	size := qrDefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < qrMinSize || parsed > qrMaxSize {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation,
				"size must be an integer between %d and %d", qrMinSize, qrMaxSize))
			return
		}
		size = parsed
	}

	png, err := h.service.CredentialQR(ctx, actor, visitID, size)
	if err != nil {
		h.writeServiceError(ctx, w, "credential qr", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

const (
	qrDefaultSize = 256
	qrMinSize     = 128
	qrMaxSize     = 1024
)

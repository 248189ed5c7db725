package handler

import (
	"strings"
	"time"

	"gatepass/internal/visit/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// CreateVisitRequest is the HTTP request body for POST /visits.
type CreateVisitRequest struct {
	VisitorID  string     `json:"visitor_id"`
	HostID     string     `json:"host_id,omitempty"`
	BuildingID string     `json:"building_id"`
	Purpose    string     `json:"purpose"`
	VisitType  string     `json:"visit_type"`
	ExpectedAt *time.Time `json:"expected_at,omitempty"`

	// Parsed values (populated by Validate)
	parsedVisitorID  id.VisitorID
	parsedHostID     *id.HostID
	parsedBuildingID id.BuildingID
	parsedVisitType  models.VisitType
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateVisitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	visitorID, err := id.ParseVisitorID(strings.TrimSpace(r.VisitorID))
	if err != nil {
		return err
	}
	r.parsedVisitorID = visitorID

	buildingID, err := id.ParseBuildingID(strings.TrimSpace(r.BuildingID))
	if err != nil {
		return err
	}
	r.parsedBuildingID = buildingID

	if hostID := strings.TrimSpace(r.HostID); hostID != "" {
		parsed, err := id.ParseHostID(hostID)
		if err != nil {
			return err
		}
		r.parsedHostID = &parsed
	}

	r.Purpose = strings.TrimSpace(r.Purpose)
	if r.Purpose == "" {
		return dErrors.New(dErrors.CodeValidation, "purpose is required")
	}

	visitType, err := models.ParseVisitType(strings.TrimSpace(r.VisitType))
	if err != nil {
		return err
	}
	r.parsedVisitType = visitType

	return nil
}

// ParsedVisitorID returns the validated visitor reference.
func (r *CreateVisitRequest) ParsedVisitorID() id.VisitorID { return r.parsedVisitorID }

// ParsedHostID returns the validated host reference, nil when absent.
func (r *CreateVisitRequest) ParsedHostID() *id.HostID { return r.parsedHostID }

// ParsedBuildingID returns the validated building reference.
func (r *CreateVisitRequest) ParsedBuildingID() id.BuildingID { return r.parsedBuildingID }

// ParsedVisitType returns the validated visit type.
func (r *CreateVisitRequest) ParsedVisitType() models.VisitType { return r.parsedVisitType }

// DecideRequest is the HTTP request body for POST /visits/{id}/decision.
type DecideRequest struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	Notes   string `json:"notes,omitempty"`

	parsedOutcome models.DecisionOutcome
}

// Validate validates and parses the request. The rejection-reason rule lives
// in the approval coordinator; here only the shape is checked.
func (r *DecideRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	outcome, err := models.ParseDecisionOutcome(strings.TrimSpace(r.Outcome))
	if err != nil {
		return err
	}
	r.parsedOutcome = outcome

	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

// ParsedOutcome returns the validated decision outcome.
func (r *DecideRequest) ParsedOutcome() models.DecisionOutcome { return r.parsedOutcome }

// ApproveByNameRequest is the HTTP request body for
// POST /visits/{id}/approve-by-name.
type ApproveByNameRequest struct {
	HostName string `json:"host_name"`
	Notes    string `json:"notes,omitempty"`
}

// Validate validates the request.
func (r *ApproveByNameRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.HostName = strings.TrimSpace(r.HostName)
	if r.HostName == "" {
		return dErrors.New(dErrors.CodeValidation, "host_name is required")
	}
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

// ScanRequest is the HTTP request body for POST /visits/scan.
type ScanRequest struct {
	Token       string `json:"token"`
	EvidenceRef string `json:"evidence_ref,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Validate validates the request.
func (r *ScanRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	r.EvidenceRef = strings.TrimSpace(r.EvidenceRef)
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

// PresenceRequest is the optional HTTP request body for the check-in and
// check-out endpoints. An empty body is equivalent to no evidence.
type PresenceRequest struct {
	EvidenceRef string `json:"evidence_ref,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Validate normalizes the request.
func (r *PresenceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.EvidenceRef = strings.TrimSpace(r.EvidenceRef)
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

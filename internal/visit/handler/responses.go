package handler

import (
	"time"

	"gatepass/internal/visit/models"
	"gatepass/internal/visit/service"
)

// ListResponse is the HTTP response for GET /visits.
type ListResponse struct {
	Visits []*models.Visit `json:"visits"`
	Count  int             `json:"count"`
}

// CredentialResponse is the HTTP response for GET /visits/{id}/credential.
// This is the only surface that ever serializes the token.
type CredentialResponse struct {
	VisitID   string    `json:"visit_id"`
	Code      string    `json:"code"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FromCredentialIssue converts the service result to an HTTP response.
func FromCredentialIssue(issue *service.CredentialIssue) *CredentialResponse {
	return &CredentialResponse{
		VisitID:   issue.VisitID.String(),
		Code:      issue.Code,
		Token:     issue.Token,
		ExpiresAt: issue.ExpiresAt,
	}
}

package models

import (
	"math"
	"strings"
	"time"

	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// purposeMaxLen bounds the free-text purpose field.
const purposeMaxLen = 280

// NotificationLedger records which notifications have already been sent for
// a visit. Dispatch is fire-and-forget, so the flags are best-effort dedup,
// not delivery receipts.
type NotificationLedger struct {
	Host     bool `json:"host"`
	Admin    bool `json:"admin"`
	CheckIn  bool `json:"check_in"`
	CheckOut bool `json:"check_out"`
}

// Visit is the aggregate root for one visitor's passage through a building:
// the request, the decision about it, the entry credential, and the recorded
// presence window.
//
// Invariants:
//   - Purpose is non-empty (after trimming) and at most 280 characters
//   - ApprovalStatus moves exactly once: pending → approved|rejected|cancelled
//   - CheckInTime set ⇒ ApprovalStatus is approved
//   - CheckOutTime set ⇒ CheckInTime is set and not after CheckOutTime
//   - Credential is issued exactly once, at creation; it is never reissued
//     and never extended
//   - ActualDurationMinutes is written exactly once, at check-out
//   - Status expired is derived at read time, never persisted
//
// Mutations go through the Can/Apply pairs inside a store Execute callback so
// the precondition check and the write happen under the same lock or row
// lock. Callers outside Execute get the combined methods.
type Visit struct {
	ID         id.VisitID    `json:"id"`
	Code       string        `json:"code"`
	VisitorID  id.VisitorID  `json:"visitor_id"`
	HostID     *id.HostID    `json:"host_id,omitempty"`
	BuildingID id.BuildingID `json:"building_id"`

	Purpose   string    `json:"purpose"`
	VisitType VisitType `json:"visit_type"`

	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Status         VisitStatus    `json:"status"`

	Credential          string    `json:"-"`
	CredentialExpiresAt time.Time `json:"credential_expires_at"`

	ApprovedBy      *id.ActorID `json:"approved_by,omitempty"`
	ApprovedByName  string      `json:"approved_by_name,omitempty"`
	ApprovedAt      *time.Time  `json:"approved_at,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	SecurityNotes   string      `json:"security_notes,omitempty"`

	CheckInTime           *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime          *time.Time `json:"check_out_time,omitempty"`
	CheckInEvidence       string     `json:"check_in_evidence,omitempty"`
	CheckOutEvidence      string     `json:"check_out_evidence,omitempty"`
	ActualDurationMinutes *int       `json:"actual_duration_minutes,omitempty"`

	ExpectedAt *time.Time `json:"expected_at,omitempty"`

	Notifications NotificationLedger `json:"notifications_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewVisitParams carries the validated-at-the-boundary inputs for NewVisit.
type NewVisitParams struct {
	ID         id.VisitID
	Code       string
	VisitorID  id.VisitorID
	HostID     *id.HostID
	BuildingID id.BuildingID
	Purpose    string
	VisitType  VisitType
	ExpectedAt *time.Time
}

// NewVisit constructs a visit in its initial state. Pre-approved visits start
// approved with ApprovedAt stamped to creation time; every other type starts
// pending. The credential is attached separately via AttachCredential.
func NewVisit(p NewVisitParams, now time.Time) (*Visit, error) {
	if p.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "visit id cannot be nil")
	}
	if p.Code == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "visit code cannot be empty")
	}
	if p.VisitorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "visitor id cannot be nil")
	}
	if p.BuildingID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "building id cannot be nil")
	}
	purpose := strings.TrimSpace(p.Purpose)
	if purpose == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "purpose cannot be empty")
	}
	if len(purpose) > purposeMaxLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "purpose must be 280 characters or less")
	}
	if !p.VisitType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid visit type")
	}

	v := &Visit{
		ID:             p.ID,
		Code:           p.Code,
		VisitorID:      p.VisitorID,
		HostID:         p.HostID,
		BuildingID:     p.BuildingID,
		Purpose:        purpose,
		VisitType:      p.VisitType,
		ApprovalStatus: p.VisitType.InitialApprovalStatus(),
		Status:         StatusScheduled,
		ExpectedAt:     p.ExpectedAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if v.ApprovalStatus == ApprovalApproved {
		approvedAt := now
		v.ApprovedAt = &approvedAt
	}
	return v, nil
}

// AttachCredential binds the entry credential to the visit. A visit carries
// exactly one credential for its whole life.
func (v *Visit) AttachCredential(token string, expiresAt time.Time) error {
	if v.Credential != "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "credential already issued")
	}
	if token == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "credential cannot be empty")
	}
	v.Credential = token
	v.CredentialExpiresAt = expiresAt
	return nil
}

// AddSecurityNote appends a desk note to the visit, newline-separated.
// Blank notes are dropped.
func (v *Visit) AddSecurityNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if v.SecurityNotes == "" {
		v.SecurityNotes = note
		return
	}
	v.SecurityNotes += "\n" + note
}

// CredentialExpired reports whether the credential window has lapsed. The
// stored expiry is authoritative; token-internal claims are not consulted.
func (v *Visit) CredentialExpired(now time.Time) bool {
	return now.After(v.CredentialExpiresAt)
}

// EffectiveStatus derives the externally visible lifecycle state. A visit
// still sitting in scheduled whose credential window has lapsed reads as
// expired; nothing is written back.
func (v *Visit) EffectiveStatus(now time.Time) VisitStatus {
	if v.Status == StatusScheduled && v.CredentialExpired(now) {
		return StatusExpired
	}
	return v.Status
}

// CanDecide checks whether the visit is still awaiting a decision.
// Use with ApplyApproval/ApplyRejection/ApplyCancellation in Execute callbacks.
func (v *Visit) CanDecide() error {
	if v.ApprovalStatus.IsTerminal() {
		return dErrors.Newf(dErrors.CodeInvalidState, "visit is already %s", v.ApprovalStatus)
	}
	return nil
}

// ApplyApproval transitions the visit to approved, recording who decided.
// For attested approvals, by is nil and byName carries the claimed host name.
// Call CanDecide first to validate the transition.
func (v *Visit) ApplyApproval(by *id.ActorID, byName string, now time.Time) {
	v.ApprovalStatus = ApprovalApproved
	v.ApprovedBy = by
	v.ApprovedByName = byName
	approvedAt := now
	v.ApprovedAt = &approvedAt
	v.UpdatedAt = now
}

// ApplyRejection transitions the visit to rejected and cancels the lifecycle.
// Call CanDecide first to validate the transition; the coordinator enforces
// that reason is present.
func (v *Visit) ApplyRejection(reason string, now time.Time) {
	v.ApprovalStatus = ApprovalRejected
	v.RejectionReason = reason
	v.Status = StatusCancelled
	v.UpdatedAt = now
}

// ApplyCancellation withdraws a pending visit and cancels the lifecycle.
// The reason is optional.
// Call CanDecide first to validate the transition.
func (v *Visit) ApplyCancellation(reason string, now time.Time) {
	v.ApprovalStatus = ApprovalCancelled
	v.RejectionReason = reason
	v.Status = StatusCancelled
	v.UpdatedAt = now
}

// CanCheckIn checks whether the visitor may be admitted: the visit must be
// approved and not yet checked in. The credential window is checked by the
// credential manager, not here.
// Use with ApplyCheckIn in Execute callbacks.
func (v *Visit) CanCheckIn() error {
	if v.ApprovalStatus != ApprovalApproved {
		return dErrors.Newf(dErrors.CodeInvalidState, "visit is not approved: %s", v.ApprovalStatus)
	}
	if v.CheckInTime != nil {
		return dErrors.New(dErrors.CodeInvalidState, "visitor already checked in")
	}
	return nil
}

// ApplyCheckIn records the visitor's arrival and moves the lifecycle to
// in_progress. evidenceRef is an opaque pointer to whatever the desk captured
// (photo, badge scan); empty is fine.
// Call CanCheckIn first to validate the transition.
func (v *Visit) ApplyCheckIn(now time.Time, evidenceRef string) {
	checkIn := now
	v.CheckInTime = &checkIn
	v.CheckInEvidence = evidenceRef
	v.Status = StatusInProgress
	v.UpdatedAt = now
}

// CheckIn validates and applies a check-in in one call.
// Prefer CanCheckIn + ApplyCheckIn for the Execute callback pattern.
func (v *Visit) CheckIn(now time.Time, evidenceRef string) error {
	if err := v.CanCheckIn(); err != nil {
		return err
	}
	v.ApplyCheckIn(now, evidenceRef)
	return nil
}

// CanCheckOut checks whether the visitor may be checked out: arrival must be
// recorded and departure must not be.
// Use with ApplyCheckOut in Execute callbacks.
func (v *Visit) CanCheckOut() error {
	if v.CheckInTime == nil {
		return dErrors.New(dErrors.CodeInvalidState, "visitor has not checked in")
	}
	if v.CheckOutTime != nil {
		return dErrors.New(dErrors.CodeInvalidState, "visitor already checked out")
	}
	return nil
}

// ApplyCheckOut records the visitor's departure, completes the lifecycle and
// fixes the actual duration, rounded to the nearest whole minute.
// Call CanCheckOut first to validate the transition.
func (v *Visit) ApplyCheckOut(now time.Time, evidenceRef string) {
	checkOut := now
	v.CheckOutTime = &checkOut
	v.CheckOutEvidence = evidenceRef
	minutes := int(math.Round(now.Sub(*v.CheckInTime).Minutes()))
	v.ActualDurationMinutes = &minutes
	v.Status = StatusCompleted
	v.UpdatedAt = now
}

// CheckOut validates and applies a check-out in one call.
// Prefer CanCheckOut + ApplyCheckOut for the Execute callback pattern.
func (v *Visit) CheckOut(now time.Time, evidenceRef string) error {
	if err := v.CanCheckOut(); err != nil {
		return err
	}
	v.ApplyCheckOut(now, evidenceRef)
	return nil
}

// Clone returns a deep copy. The memory store hands out clones so callers
// can never mutate shared state outside Execute.
func (v *Visit) Clone() *Visit {
	if v == nil {
		return nil
	}
	out := *v
	out.HostID = clonePtr(v.HostID)
	out.ApprovedBy = clonePtr(v.ApprovedBy)
	out.ApprovedAt = clonePtr(v.ApprovedAt)
	out.CheckInTime = clonePtr(v.CheckInTime)
	out.CheckOutTime = clonePtr(v.CheckOutTime)
	out.ActualDurationMinutes = clonePtr(v.ActualDurationMinutes)
	out.ExpectedAt = clonePtr(v.ExpectedAt)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

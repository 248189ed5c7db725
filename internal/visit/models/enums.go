package models

import dErrors "gatepass/pkg/domain-errors"

// VisitType classifies how a visit entered the system. The type is fixed at
// creation and drives the initial approval state: pre-approved visits skip
// the pending decision step entirely.
type VisitType string

// Supported visit types.
const (
	// VisitTypePreApproved is created by someone already authorized to admit
	// the visitor; it starts approved and needs no decision.
	VisitTypePreApproved VisitType = "pre_approved"

	// VisitTypeWalkIn is recorded at the desk for a visitor who showed up
	// unannounced; it starts pending.
	VisitTypeWalkIn VisitType = "walk_in"

	// VisitTypeScheduled is requested ahead of time for a future arrival;
	// it starts pending.
	VisitTypeScheduled VisitType = "scheduled"
)

// validVisitTypes is the single source of truth for supported visit types.
var validVisitTypes = map[VisitType]bool{
	VisitTypePreApproved: true,
	VisitTypeWalkIn:      true,
	VisitTypeScheduled:   true,
}

// ParseVisitType constructs a VisitType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseVisitType(s string) (VisitType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "visit type cannot be empty")
	}
	t := VisitType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid visit type: must be 'pre_approved', 'walk_in' or 'scheduled'")
	}
	return t, nil
}

// IsValid checks if the visit type is one of the supported enum values.
func (t VisitType) IsValid() bool {
	return validVisitTypes[t]
}

// String returns the string representation of the visit type.
func (t VisitType) String() string {
	return string(t)
}

// InitialApprovalStatus returns the approval state a freshly created visit
// of this type starts in.
func (t VisitType) InitialApprovalStatus() ApprovalStatus {
	if t == VisitTypePreApproved {
		return ApprovalApproved
	}
	return ApprovalPending
}

// ApprovalStatus is the decision sub-state of a visit. It moves exactly once:
// pending visits may be approved, rejected or cancelled; every other state is
// terminal.
type ApprovalStatus string

// Supported approval states.
const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

// validApprovalStatuses is the single source of truth for approval states.
var validApprovalStatuses = map[ApprovalStatus]bool{
	ApprovalPending:   true,
	ApprovalApproved:  true,
	ApprovalRejected:  true,
	ApprovalCancelled: true,
}

// ParseApprovalStatus constructs an ApprovalStatus from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "approval status cannot be empty")
	}
	a := ApprovalStatus(s)
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid approval status")
	}
	return a, nil
}

// IsValid checks if the approval status is one of the supported enum values.
func (a ApprovalStatus) IsValid() bool {
	return validApprovalStatuses[a]
}

// String returns the string representation of the approval status.
func (a ApprovalStatus) String() string {
	return string(a)
}

// IsTerminal reports whether the approval state can no longer change.
func (a ApprovalStatus) IsTerminal() bool {
	return a != ApprovalPending
}

// CanTransitionTo checks whether the approval state machine permits moving
// to next. Only pending visits may be decided, and a decision never leads
// back to pending.
func (a ApprovalStatus) CanTransitionTo(next ApprovalStatus) bool {
	return a == ApprovalPending && next.IsValid() && next != ApprovalPending
}

// VisitStatus is the presence lifecycle of a visit: where the visitor is
// relative to the building. It is distinct from ApprovalStatus, which tracks
// the decision; the two advance together through the coordinator layer.
type VisitStatus string

// Supported lifecycle states.
const (
	StatusScheduled  VisitStatus = "scheduled"
	StatusInProgress VisitStatus = "in_progress"
	StatusCompleted  VisitStatus = "completed"
	StatusCancelled  VisitStatus = "cancelled"

	// StatusExpired is derived at read time for scheduled visits whose
	// credential window has lapsed; it is never written to the store.
	StatusExpired VisitStatus = "expired"
)

// validVisitStatuses is the single source of truth for lifecycle states.
var validVisitStatuses = map[VisitStatus]bool{
	StatusScheduled:  true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusCancelled:  true,
	StatusExpired:    true,
}

// ParseVisitStatus constructs a VisitStatus from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseVisitStatus(s string) (VisitStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "visit status cannot be empty")
	}
	v := VisitStatus(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid visit status")
	}
	return v, nil
}

// IsValid checks if the visit status is one of the supported enum values.
func (v VisitStatus) IsValid() bool {
	return validVisitStatuses[v]
}

// String returns the string representation of the visit status.
func (v VisitStatus) String() string {
	return string(v)
}

// DecisionOutcome is the requested result of a decide operation. It is a
// strict subset of ApprovalStatus: pending cannot be requested.
type DecisionOutcome string

// Supported decision outcomes.
const (
	OutcomeApproved  DecisionOutcome = "approved"
	OutcomeRejected  DecisionOutcome = "rejected"
	OutcomeCancelled DecisionOutcome = "cancelled"
)

// validOutcomes is the single source of truth for decision outcomes.
var validOutcomes = map[DecisionOutcome]bool{
	OutcomeApproved:  true,
	OutcomeRejected:  true,
	OutcomeCancelled: true,
}

// ParseDecisionOutcome constructs a DecisionOutcome from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseDecisionOutcome(s string) (DecisionOutcome, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "decision outcome cannot be empty")
	}
	o := DecisionOutcome(s)
	if !o.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid decision outcome: must be 'approved', 'rejected' or 'cancelled'")
	}
	return o, nil
}

// IsValid checks if the outcome is one of the supported enum values.
func (o DecisionOutcome) IsValid() bool {
	return validOutcomes[o]
}

// String returns the string representation of the outcome.
func (o DecisionOutcome) String() string {
	return string(o)
}

// ApprovalStatus maps the outcome onto the approval state it produces.
func (o DecisionOutcome) ApprovalStatus() ApprovalStatus {
	return ApprovalStatus(o)
}

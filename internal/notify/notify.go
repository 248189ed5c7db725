// Package notify delivers visit lifecycle events to interested parties.
// The engine treats dispatch as fire-and-forget: a failed delivery is
// logged by the orchestrator and never aborts a state transition.
package notify

import (
	"context"
	"time"

	"gatepass/pkg/domain"
)

// Kind tags the lifecycle transition an event describes.
type Kind string

const (
	KindVisitRequested  Kind = "visit_requested"
	KindVisitApproved   Kind = "visit_approved"
	KindVisitRejected   Kind = "visit_rejected"
	KindVisitorArrived  Kind = "visitor_arrived"
	KindVisitorDeparted Kind = "visitor_departed"
)

// Priority lets downstream channels decide how urgently to deliver.
// Admin copies of approval events are low priority; everything else is
// normal.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Audience names the party the event is addressed to.
type Audience string

const (
	AudienceHost  Audience = "host"
	AudienceAdmin Audience = "admin"
)

// Event is one notification about a visit. It is transport-agnostic;
// dispatchers render it for their channel.
type Event struct {
	Kind       Kind              `json:"kind"`
	Priority   Priority          `json:"priority"`
	Audience   Audience          `json:"audience"`
	VisitID    domain.VisitID    `json:"visit_id"`
	VisitCode  string            `json:"visit_code"`
	BuildingID domain.BuildingID `json:"building_id"`

	// Denormalized display fields so channels need no directory access.
	VisitorName string `json:"visitor_name,omitempty"`
	HostName    string `json:"host_name,omitempty"`
	HostEmail   string `json:"-"`

	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Dispatcher delivers notification events to one channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

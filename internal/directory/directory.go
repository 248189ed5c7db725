// Package directory provides read-only lookups against the building
// directory service that owns visitor, host, and building records. The
// engine treats these as side-effect-free reads; records are resolved at
// visit creation and their display fields denormalized onto the visit.
package directory

import (
	"context"

	"gatepass/pkg/domain"
)

// Visitor is a visitor record in the external directory.
type Visitor struct {
	ID     domain.VisitorID `json:"id"`
	Name   string           `json:"name"`
	Email  string           `json:"email"`
	Phone  string           `json:"phone"`
	Active bool             `json:"active"`
}

// Host is a resident record in the external directory.
type Host struct {
	ID     domain.HostID `json:"id"`
	Name   string        `json:"name"`
	Email  string        `json:"email"`
	Unit   string        `json:"unit"`
	Active bool          `json:"active"`
}

// Building is a building record in the external directory.
type Building struct {
	ID     domain.BuildingID `json:"id"`
	Name   string            `json:"name"`
	Active bool              `json:"active"`
}

// Service resolves directory references. Lookups return
// sentinel.ErrNotFound for unknown or inactive records; callers translate
// that into their own error vocabulary. Implementations must be safe for
// concurrent use.
type Service interface {
	Visitor(ctx context.Context, id domain.VisitorID) (*Visitor, error)
	Host(ctx context.Context, id domain.HostID) (*Host, error)
	Building(ctx context.Context, id domain.BuildingID) (*Building, error)
}

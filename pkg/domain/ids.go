// Package domain holds the typed identifiers and enums shared across the
// engine. IDs are distinct types over uuid.UUID so a visitor reference can
// never be passed where a building reference is expected; the compiler
// enforces what would otherwise be a runtime mixup.
package domain

import (
	"github.com/google/uuid"

	dErrors "gatepass/pkg/domain-errors"
)

// Typed identifiers. Construct via the Parse helpers at trust boundaries;
// direct conversion is reserved for values that are already validated
// (store rows, freshly generated UUIDs).
type (
	// VisitID identifies a single visit request.
	VisitID uuid.UUID

	// VisitorID references a visitor record in the external directory.
	VisitorID uuid.UUID

	// HostID references a resident record in the external directory.
	HostID uuid.UUID

	// BuildingID references a building record in the external directory.
	BuildingID uuid.UUID

	// ActorID identifies the authenticated actor performing an operation.
	ActorID uuid.UUID
)

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. Every Parse helper funnels through here so all ID types
// reject malformed input identically.
func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id cannot be nil")
	}
	return u, nil
}

// ParseVisitID validates and converts an external string into a VisitID.
func ParseVisitID(s string) (VisitID, error) {
	u, err := parseUUID(s, "visit")
	return VisitID(u), err
}

// ParseVisitorID validates and converts an external string into a VisitorID.
func ParseVisitorID(s string) (VisitorID, error) {
	u, err := parseUUID(s, "visitor")
	return VisitorID(u), err
}

// ParseHostID validates and converts an external string into a HostID.
func ParseHostID(s string) (HostID, error) {
	u, err := parseUUID(s, "host")
	return HostID(u), err
}

// ParseBuildingID validates and converts an external string into a BuildingID.
func ParseBuildingID(s string) (BuildingID, error) {
	u, err := parseUUID(s, "building")
	return BuildingID(u), err
}

// ParseActorID validates and converts an external string into an ActorID.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor")
	return ActorID(u), err
}

func (id VisitID) String() string    { return uuid.UUID(id).String() }
func (id VisitorID) String() string  { return uuid.UUID(id).String() }
func (id HostID) String() string     { return uuid.UUID(id).String() }
func (id BuildingID) String() string { return uuid.UUID(id).String() }
func (id ActorID) String() string    { return uuid.UUID(id).String() }

func (id VisitID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id VisitorID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id HostID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id BuildingID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText/UnmarshalText keep the typed IDs JSON-transparent: they render
// as plain UUID strings in request and response bodies.
func (id VisitID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *VisitID) UnmarshalText(b []byte) error {
	parsed, err := ParseVisitID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id VisitorID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *VisitorID) UnmarshalText(b []byte) error {
	parsed, err := ParseVisitorID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id HostID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *HostID) UnmarshalText(b []byte) error {
	parsed, err := ParseHostID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id BuildingID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *BuildingID) UnmarshalText(b []byte) error {
	parsed, err := ParseBuildingID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ActorID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *ActorID) UnmarshalText(b []byte) error {
	parsed, err := ParseActorID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Package visit persists the visit aggregate. Two implementations share the
// same semantics: InMemory for development and tests, PostgresStore for
// production. Both guarantee that Execute runs its validate and mutate
// callbacks against the current row with no concurrent writer in between,
// which is what makes single-use credentials single-use.
package visit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gatepass/internal/visit/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// Filter narrows ListByBuilding. Zero values mean "any".
type Filter struct {
	Status         models.VisitStatus
	ApprovalStatus models.ApprovalStatus
	VisitType      models.VisitType
}

func (f Filter) matches(v *models.Visit) bool {
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if f.ApprovalStatus != "" && v.ApprovalStatus != f.ApprovalStatus {
		return false
	}
	if f.VisitType != "" && v.VisitType != f.VisitType {
		return false
	}
	return true
}

// InMemory is a mutex-guarded map store. Reads hand out clones so callers can
// never mutate shared state; writes go through Create and Execute only.
type InMemory struct {
	mu           sync.RWMutex
	visits       map[id.VisitID]*models.Visit
	byCode       map[string]id.VisitID
	byCredential map[string]id.VisitID
}

func NewInMemory() *InMemory {
	return &InMemory{
		visits:       make(map[id.VisitID]*models.Visit),
		byCode:       make(map[string]id.VisitID),
		byCredential: make(map[string]id.VisitID),
	}
}

// Create stores a new visit. Codes are matched case-insensitively so a desk
// officer typing "v-8f3kq2" hits the same record the badge shows.
//
// Errors: sentinel.ErrAlreadyUsed when the code or credential is taken,
// sentinel.ErrConflict when the visit ID already exists.
func (s *InMemory) Create(_ context.Context, v *models.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visits[v.ID]; ok {
		return fmt.Errorf("visit %s: %w", v.ID, sentinel.ErrConflict)
	}
	code := normalizeCode(v.Code)
	if _, ok := s.byCode[code]; ok {
		return fmt.Errorf("visit code %s: %w", v.Code, sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.byCredential[v.Credential]; ok {
		return fmt.Errorf("credential: %w", sentinel.ErrAlreadyUsed)
	}

	s.visits[v.ID] = v.Clone()
	s.byCode[code] = v.ID
	s.byCredential[v.Credential] = v.ID
	return nil
}

// FindByID returns the visit or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, visitID id.VisitID) (*models.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.visits[visitID]
	if !ok {
		return nil, fmt.Errorf("visit %s: %w", visitID, sentinel.ErrNotFound)
	}
	return v.Clone(), nil
}

// FindByCode returns the visit carrying the human-readable code, or
// sentinel.ErrNotFound.
func (s *InMemory) FindByCode(_ context.Context, code string) (*models.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visitID, ok := s.byCode[normalizeCode(code)]
	if !ok {
		return nil, fmt.Errorf("visit code %s: %w", code, sentinel.ErrNotFound)
	}
	return s.visits[visitID].Clone(), nil
}

// FindByCredential returns the visit bound to the credential token, or
// sentinel.ErrNotFound. Token matching is exact.
func (s *InMemory) FindByCredential(_ context.Context, token string) (*models.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visitID, ok := s.byCredential[token]
	if !ok {
		return nil, fmt.Errorf("credential: %w", sentinel.ErrNotFound)
	}
	return s.visits[visitID].Clone(), nil
}

// ListByBuilding returns the building's visits matching the filter, newest
// first.
func (s *InMemory) ListByBuilding(_ context.Context, buildingID id.BuildingID, f Filter) ([]*models.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Visit
	for _, v := range s.visits {
		if v.BuildingID != buildingID || !f.matches(v) {
			continue
		}
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Execute runs a conditional update: validate inspects the current state and
// may refuse, mutate applies the change. The write lock is held across both,
// so two racing Executes serialize and the loser revalidates against the
// winner's result.
//
// Errors: sentinel.ErrNotFound when the visit does not exist; otherwise
// whatever validate returned, unwrapped.
func (s *InMemory) Execute(_ context.Context, visitID id.VisitID, validate func(*models.Visit) error, mutate func(*models.Visit)) (*models.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visits[visitID]
	if !ok {
		return nil, fmt.Errorf("visit %s: %w", visitID, sentinel.ErrNotFound)
	}
	if err := validate(v.Clone()); err != nil {
		return nil, err
	}
	next := v.Clone()
	mutate(next)
	s.visits[visitID] = next
	return next.Clone(), nil
}

// Count returns the number of stored visits.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visits), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

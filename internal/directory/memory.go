package directory

import (
	"context"
	"sync"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// Memory is an in-memory directory used by tests and local development.
type Memory struct {
	mu        sync.RWMutex
	visitors  map[domain.VisitorID]*Visitor
	hosts     map[domain.HostID]*Host
	buildings map[domain.BuildingID]*Building
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		visitors:  make(map[domain.VisitorID]*Visitor),
		hosts:     make(map[domain.HostID]*Host),
		buildings: make(map[domain.BuildingID]*Building),
	}
}

// AddVisitor registers a visitor record.
func (m *Memory) AddVisitor(v Visitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visitors[v.ID] = &v
}

// AddHost registers a resident record.
func (m *Memory) AddHost(h Host) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[h.ID] = &h
}

// AddBuilding registers a building record.
func (m *Memory) AddBuilding(b Building) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buildings[b.ID] = &b
}

// Visitor implements Service. Deactivated records read as missing.
func (m *Memory) Visitor(_ context.Context, id domain.VisitorID) (*Visitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.visitors[id]
	if !ok || !v.Active {
		return nil, sentinel.ErrNotFound
	}
	copy := *v
	return &copy, nil
}

// Host implements Service.
func (m *Memory) Host(_ context.Context, id domain.HostID) (*Host, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hosts[id]
	if !ok || !h.Active {
		return nil, sentinel.ErrNotFound
	}
	copy := *h
	return &copy, nil
}

// Building implements Service.
func (m *Memory) Building(_ context.Context, id domain.BuildingID) (*Building, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buildings[id]
	if !ok || !b.Active {
		return nil, sentinel.ErrNotFound
	}
	copy := *b
	return &copy, nil
}

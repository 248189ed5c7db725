package notify

import (
	"context"
	"sync"
)

// Memory records dispatched events for assertions in tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

// NewMemory creates an empty in-memory dispatcher.
func NewMemory() *Memory {
	return &Memory{}
}

// FailWith makes every subsequent Dispatch return err. Used to verify
// that the orchestrator swallows dispatch failures.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Dispatch implements Dispatcher.
func (m *Memory) Dispatch(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything dispatched so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByKind returns the dispatched events with the given kind.
func (m *Memory) ByKind(kind Kind) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears recorded events.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.fail = nil
}

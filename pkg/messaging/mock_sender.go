package messaging

import (
	"context"
	"sync"
)

// MockEventSender records sent events in memory for testing.
type MockEventSender struct {
	mu     sync.Mutex
	events []*Event
}

// NewMockEventSender creates a new MockEventSender.
func NewMockEventSender() *MockEventSender {
	return &MockEventSender{}
}

// Send records the event.
func (m *MockEventSender) Send(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything sent so far.
func (m *MockEventSender) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfType returns sent events with the given type.
func (m *MockEventSender) EventsOfType(t EventType) []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Close does nothing.
func (m *MockEventSender) Close() error {
	return nil
}

// Ensure MockEventSender implements EventSender
var _ EventSender = (*MockEventSender)(nil)

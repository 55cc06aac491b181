package monitor

import (
	"time"

	"github.com/google/uuid"
)

// EventType names the monitor's event stream entries.
type EventType string

const (
	EventCheckStart        EventType = "check-start"
	EventCheckComplete     EventType = "check-complete"
	EventViolationDetected EventType = "violation-detected"
	EventRepairStart       EventType = "repair-start"
	EventRepairComplete    EventType = "repair-complete"
	EventDriftDetected     EventType = "drift-detected"
	EventSnapshotCreated   EventType = "snapshot-created"
	EventStatusChange      EventType = "status-change"
	EventError             EventType = "error"
)

// Event is one entry in the monitor's append-only history.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

func newEvent(t EventType, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Listener receives monitor events. A panicking listener is recovered and
// logged; it never affects the emitter or other listeners.
type Listener func(Event)

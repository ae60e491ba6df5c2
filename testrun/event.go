package testrun

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// EventKind classifies an event in a run's log.
type EventKind string

const (
	EventLoad          EventKind = "load"
	EventClick         EventKind = "click"
	EventInput         EventKind = "input"
	EventVulnerability EventKind = "vulnerability"
	EventError         EventKind = "error"
	EventInfo          EventKind = "info"
)

// IsValid checks if the event kind is known.
func (k EventKind) IsValid() bool {
	switch k {
	case EventLoad, EventClick, EventInput, EventVulnerability, EventError, EventInfo:
		return true
	}
	return false
}

// Detail is optional structured data attached to an event.
type Detail map[string]interface{}

// Event is an immutable record in a run's append-only log.
type Event struct {
	Kind      EventKind `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Detail    Detail    `json:"details,omitempty"`
}

// EventLog is the ordered event list stored as a JSON column.
type EventLog []Event

func (l EventLog) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Event{})
	}
	return json.Marshal([]Event(l))
}

func (l *EventLog) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if data == nil {
		*l = EventLog{}
		return nil
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return err
	}
	*l = events
	return nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("failed to scan JSON column: unsupported type")
	}
}

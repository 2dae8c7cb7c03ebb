package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventDueCreated      EventType = "due.created"
	EventDuesBulkCreated EventType = "dues.bulk_created"
	EventDuePaid         EventType = "due.paid"
	EventExpenseCreated  EventType = "expense.created"
)

const currentVersion = 1

// LedgerEvent announces committed ledger writes. It carries ids only; the
// consumer loads the records from the database.
type LedgerEvent struct {
	Type           EventType `json:"type"`
	OrganizationID string    `json:"organization_id"`
	IDs            []string  `json:"ids"`
	Version        int       `json:"version"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewLedgerEvent(t EventType, orgID string, ids ...string) *LedgerEvent {
	return &LedgerEvent{
		Type:           t,
		OrganizationID: orgID,
		IDs:            ids,
		Version:        currentVersion,
		Timestamp:      time.Now().UTC(),
	}
}

// IsDueEvent reports whether the ids refer to dues.
func (e *LedgerEvent) IsDueEvent() bool {
	switch e.Type {
	case EventDueCreated, EventDuesBulkCreated, EventDuePaid:
		return true
	}
	return false
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and sanity-checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventDueCreated, EventDuesBulkCreated, EventDuePaid, EventExpenseCreated:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if len(e.IDs) == 0 {
		return nil, fmt.Errorf("event %s carries no ids", e.Type)
	}
	return &e, nil
}

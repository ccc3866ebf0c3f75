// Package audit records who changed which catalog entity. Catalog mutations
// call a Hook after their store write commits; the Recorder turns each change
// into an Entry and persists it without failing the mutation.
package audit

import (
	"encoding/json"
	"time"

	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/geo"
)

// Actions recorded for catalog mutations.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDeactivate = "deactivate"
	ActionDelete     = "delete"
)

// Entry is one persisted audit log row.
type Entry struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// LogEntry is the input for a new Entry.
type LogEntry struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Changes    json.RawMessage
	IPAddress  string
	RequestID  string
}

// FilterTime implements filter.Record.
func (e Entry) FilterTime() (time.Time, bool) { return e.CreatedAt, true }

// FilterValue implements filter.Record.
func (e Entry) FilterValue(k filter.Key) (string, bool) {
	switch k {
	case filter.KeyActor:
		return e.ActorID, true
	case filter.KeyAction:
		return e.Action, true
	case filter.KeyEntityType:
		return e.EntityType, true
	}
	return "", false
}

// FilterLocation implements filter.Record. Audit entries have no location.
func (e Entry) FilterLocation() (geo.Location, bool) { return geo.Location{}, false }

// Columns maps the filter vocabulary onto audit_logs (alias al).
var Columns = filter.Columns{
	filter.KeyStartDate:  "al.created_at",
	filter.KeyEndDate:    "al.created_at",
	filter.KeyActor:      "al.user_id",
	filter.KeyAction:     "al.action",
	filter.KeyEntityType: "al.table_name",
}

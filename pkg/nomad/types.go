package nomad

import (
	"encoding/json"
)

// Client statuses that still produce logs
const (
	ClientStatusRunning = "running"
	ClientStatusPending = "pending"
)

// Defaults applied when the API omits a field
const (
	DefaultJobID     = "unknown"
	DefaultTaskGroup = "unknown"
	DefaultStatus    = "unknown"
	DefaultNamespace = "default"
)

// Allocation is the subset of a Nomad allocation used to derive targets
type Allocation struct {
	ID           string
	JobID        string
	TaskGroup    string
	Namespace    string
	ClientStatus string
	NodeID       string

	// TaskStates is keyed by task name. Only the keys are consumed.
	TaskStates map[string]json.RawMessage
}

// Eligible reports whether the allocation's tasks should be scraped
func (a Allocation) Eligible() bool {
	return a.ClientStatus == ClientStatusRunning || a.ClientStatus == ClientStatusPending
}

// TaskNames returns the task names in no particular order
func (a Allocation) TaskNames() []string {
	names := make([]string, 0, len(a.TaskStates))
	for name := range a.TaskStates {
		names = append(names, name)
	}
	return names
}

// UnmarshalJSON decodes a Nomad allocation leniently: every field is decoded
// on its own, so a missing or mistyped field falls back to its default
// instead of rejecting the whole record.
func (a *Allocation) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Allocation{
		ID:           stringField(raw, "ID", ""),
		JobID:        stringField(raw, "JobID", DefaultJobID),
		TaskGroup:    stringField(raw, "TaskGroup", DefaultTaskGroup),
		Namespace:    stringField(raw, "Namespace", DefaultNamespace),
		ClientStatus: stringField(raw, "ClientStatus", DefaultStatus),
		NodeID:       stringField(raw, "NodeID", ""),
	}

	if states, ok := raw["TaskStates"]; ok {
		var taskStates map[string]json.RawMessage
		if err := json.Unmarshal(states, &taskStates); err == nil {
			a.TaskStates = taskStates
		}
	}

	return nil
}

func stringField(raw map[string]json.RawMessage, key, fallback string) string {
	value, ok := raw[key]
	if !ok || string(value) == "null" {
		return fallback
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return fallback
	}
	return s
}

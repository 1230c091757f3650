package models

import "time"

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ExecutionRecord is the history entry kept for each finished call.
type ExecutionRecord struct {
	ID              string          `json:"id"`
	ConnectionID    string          `json:"connection_id"`
	RegionName      string          `json:"region_name"`
	FunctionID      string          `json:"function_id"`
	Topology        string          `json:"topology,omitempty"`
	HasResult       bool            `json:"has_result"`
	IsReExecute     bool            `json:"is_re_execute"`
	Filter          []string        `json:"filter,omitempty"`
	ExcludedMembers []string        `json:"excluded_members,omitempty"`
	Status          ExecutionStatus `json:"status"`
	FailureKind     string          `json:"failure_kind,omitempty"`
	Error           string          `json:"error,omitempty"`
	Chunks          int             `json:"chunks"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     time.Time       `json:"completed_at"`
}

func (r ExecutionRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
